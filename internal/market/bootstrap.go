package market

import (
	"time"

	"xrpredict/internal/domain"
)

// DefaultMarketID is the document key for the single process-wide market.
const DefaultMarketID = "prediction"

// New builds a fresh active market from configuration. It is used at
// startup when no persisted market document exists.
func New(question string, duration time.Duration, yesAddress, noAddress string, now time.Time) domain.Market {
	return domain.Market{
		ID:        DefaultMarketID,
		Question:  question,
		Status:    domain.MarketStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		EndTime:   now.Add(duration),
		Options: []domain.Option{
			{ID: domain.OptionYes, Text: "Yes", Address: yesAddress, Voters: []domain.Voter{}},
			{ID: domain.OptionNo, Text: "No", Address: noAddress, Voters: []domain.Voter{}},
		},
	}
}
