package domain

// VoteReceipt is returned to the caller after a stake is confirmed and
// recorded. Totals reflect the option after this vote.
type VoteReceipt struct {
	TransactionHash string   `json:"transactionHash,omitempty"`
	Option          OptionID `json:"option"`
	Amount          Drops    `json:"amount"`
	SenderAddress   string   `json:"senderAddress"`
	TotalVotes      int      `json:"totalVotes"`
	TotalAmount     Drops    `json:"totalAmount"`
}
