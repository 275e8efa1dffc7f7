package domain

import "time"

// RewardStatus tracks the outcome of one payout transfer.
type RewardStatus string

const (
	RewardStatusCompleted RewardStatus = "completed"
	RewardStatusFailed    RewardStatus = "failed"
)

// RewardRecord is one payout attempt to a winning voter, in attempt order.
type RewardRecord struct {
	To        string       `json:"to"`
	Amount    Drops        `json:"amount"`
	TxHash    string       `json:"txHash,omitempty"`
	Status    RewardStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// FailureRecord summarizes a failed payout so callers can retry out of band.
type FailureRecord struct {
	Voter  string `json:"voter"`
	Amount Drops  `json:"amount"`
	Error  string `json:"error"`
}

// ResolutionResult is the immutable outcome of settling the market. It is
// created exactly once by the settlement engine.
type ResolutionResult struct {
	ResolutionID       string          `json:"resolutionId"`
	WinningOption      OptionID        `json:"winningOption"`
	TotalPool          Drops           `json:"totalPool"`
	TotalPayout        Drops           `json:"totalPayout"`
	WinnerCount        int             `json:"winnerCount"`
	RewardPerWinner    Drops           `json:"rewardPerWinner"`
	Rewards            []RewardRecord  `json:"rewards"`
	FailedTransactions []FailureRecord `json:"failedTransactions"`
	SuccessCount       int             `json:"successCount"`
	FailedCount        int             `json:"failedCount"`
	Timestamp          time.Time       `json:"timestamp"`
}

// PayoutStatus tracks a durable per-winner payout idempotency record.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// PayoutRecord is the durable idempotency marker for one
// (resolution, voter) payout. It is written before the transfer is first
// attempted so a crash-and-retry of resolution never double-pays.
type PayoutRecord struct {
	ResolutionID string
	Voter        string
	Amount       Drops
	Status       PayoutStatus
	TxHash       string
	Error        string
	UpdatedAt    time.Time
}
