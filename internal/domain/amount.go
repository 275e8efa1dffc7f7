package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DropsPerXRP is the number of drops in one XRP. A drop is the smallest
// transferable unit on the XRP Ledger.
const DropsPerXRP = 1_000_000

// Drops is an XRP amount in integer drops. All internal accounting uses
// drops so 6-decimal rounding at the ledger boundary is exact; JSON
// encoding converts to a decimal XRP number.
type Drops int64

// XRP returns the display amount in XRP.
func (d Drops) XRP() float64 {
	return float64(d) / DropsPerXRP
}

// String formats the amount as a decimal XRP literal with trailing zeros
// trimmed, e.g. 135, 0.5, 134.999999.
func (d Drops) String() string {
	neg := d < 0
	v := int64(d)
	if neg {
		v = -v
	}
	whole := v / DropsPerXRP
	frac := v % DropsPerXRP

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatInt(whole, 10))
	if frac != 0 {
		f := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
		b.WriteByte('.')
		b.WriteString(f)
	}
	return b.String()
}

// MarshalJSON encodes the amount as a JSON number in XRP.
func (d Drops) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts a JSON number or string in XRP.
func (d *Drops) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseXRP(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseXRP parses a decimal XRP string into drops. At most 6 fractional
// digits are accepted.
func ParseXRP(s string) (Drops, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("domain: empty amount")
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	wholeStr, fracStr, _ := strings.Cut(s, ".")
	if wholeStr == "" {
		wholeStr = "0"
	}
	if len(fracStr) > 6 {
		return 0, fmt.Errorf("domain: amount %q has more than 6 decimal places", s)
	}

	whole, err := strconv.ParseInt(wholeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: invalid amount %q", s)
	}

	frac := int64(0)
	if fracStr != "" {
		frac, err = strconv.ParseInt(fracStr+strings.Repeat("0", 6-len(fracStr)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("domain: invalid amount %q", s)
		}
	}

	if whole > (math.MaxInt64-frac)/DropsPerXRP {
		return 0, fmt.Errorf("domain: amount %q exceeds the representable range", s)
	}

	v := whole*DropsPerXRP + frac
	if neg {
		v = -v
	}
	return Drops(v), nil
}
