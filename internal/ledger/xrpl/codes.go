package xrpl

import "strings"

// Engine result codes come in classes identified by prefix. tes means the
// transaction was provisionally applied; tel (local) and ter (retry) may
// succeed if resubmitted; tem (malformed), tef (failure), and tec (fee
// claimed) are final for this transaction.

// isSuccessCode reports whether code indicates provisional or final
// success.
func isSuccessCode(code string) bool {
	return strings.HasPrefix(code, "tes")
}

// isRetryableCode reports whether a rejection with this code may succeed
// on a later submission attempt.
func isRetryableCode(code string) bool {
	return strings.HasPrefix(code, "tel") || strings.HasPrefix(code, "ter")
}
