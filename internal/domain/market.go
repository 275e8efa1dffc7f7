package domain

import "time"

// MarketStatus represents the lifecycle state of the market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusResolved MarketStatus = "resolved"
)

// OptionID identifies one of the two possible outcomes.
type OptionID string

const (
	OptionYes OptionID = "yes"
	OptionNo  OptionID = "no"
)

// ValidOption reports whether id is one of the two accepted outcomes.
func ValidOption(id OptionID) bool {
	return id == OptionYes || id == OptionNo
}

// TransactionRecord is one confirmed on-ledger payment attributed to a
// voter. Records are append-only once written.
type TransactionRecord struct {
	Hash      string    `json:"hash"`
	Amount    Drops     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Voter is an address that staked funds on an option. An address staking
// more than once on the same option accumulates into a single Voter entry.
type Voter struct {
	Address      string              `json:"address"`
	Amount       Drops               `json:"amount"`
	Transactions []TransactionRecord `json:"transactions"`
}

// Option is one side of the binary market, with its own fund-collection
// address and voter ledger.
type Option struct {
	ID               OptionID `json:"id"`
	Text             string   `json:"text"`
	Votes            int      `json:"votes"`
	Amount           Drops    `json:"amount"`
	Address          string   `json:"address"`
	Voters           []Voter  `json:"voters"`
	TotalReceived    Drops    `json:"totalReceived"`
	TotalDistributed Drops    `json:"totalDistributed,omitempty"`
}

// Voter returns the voter entry for addr, or nil if addr has not staked
// on this option.
func (o *Option) Voter(addr string) *Voter {
	for i := range o.Voters {
		if o.Voters[i].Address == addr {
			return &o.Voters[i]
		}
	}
	return nil
}

// Market is the single prediction instance with two mutually exclusive
// options. Invariant: Resolved == true iff Status == resolved iff
// WinningOption != "".
type Market struct {
	ID            string            `json:"id"`
	Question      string            `json:"question"`
	Status        MarketStatus      `json:"status"`
	Resolved      bool              `json:"resolved"`
	WinningOption OptionID          `json:"winningOption,omitempty"`
	Resolution    *ResolutionResult `json:"resolution,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	EndTime       time.Time         `json:"endTime"`
	Options       []Option          `json:"options"`
	TotalVotes    int               `json:"totalVotes"`
	TotalAmount   Drops             `json:"totalAmount"`
}

// Option returns the option with the given id, or nil.
func (m *Market) Option(id OptionID) *Option {
	for i := range m.Options {
		if m.Options[i].ID == id {
			return &m.Options[i]
		}
	}
	return nil
}

// Pool is the total stake across all options in drops, summed over every
// voter ledger. The losing side's stakes fund part of the winners' payout.
func (m *Market) Pool() Drops {
	var total Drops
	for i := range m.Options {
		for _, v := range m.Options[i].Voters {
			total += v.Amount
		}
	}
	return total
}
