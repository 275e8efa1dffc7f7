// Package market owns the single prediction market's mutable state. Every
// mutation is funneled through State, a mutex-guarded single-writer handle
// that is injected into the intake, monitor, and settlement components.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"xrpredict/internal/domain"
)

// Persister saves the market document on every successful mutation so
// state survives restarts.
type Persister interface {
	Save(ctx context.Context, m domain.Market) error
}

// State guards the one domain.Market instance. Reads through Snapshot are
// consistent with respect to concurrent mutations, and the settlement
// critical section blocks all mutation between BeginSettlement and
// CompleteSettlement/AbortSettlement.
type State struct {
	mu       sync.Mutex
	m        domain.Market
	seen     map[string]struct{}
	settling bool

	persist Persister
	logger  *slog.Logger
}

// NewState wraps m in a state handle. The seen-hash set is rebuilt from
// the market's transaction records so restarts keep exactly-once
// recording per transfer hash.
func NewState(m domain.Market, persist Persister, logger *slog.Logger) *State {
	seen := make(map[string]struct{})
	for i := range m.Options {
		for _, v := range m.Options[i].Voters {
			for _, tx := range v.Transactions {
				if tx.Hash != "" {
					seen[tx.Hash] = struct{}{}
				}
			}
		}
	}
	recomputeTotals(&m)

	return &State{
		m:       m,
		seen:    seen,
		persist: persist,
		logger:  logger.With(slog.String("component", "market_state")),
	}
}

// Snapshot returns a deep copy of the market with totals up to date.
func (s *State) Snapshot() domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMarket(s.m)
}

// RecordTransfer records one confirmed payment of amount from voter to the
// given option's collection address. It increments the vote count, adds
// the amount to the option and voter totals, and appends a transaction
// record. A hash that was already recorded returns ErrDuplicateTransfer;
// mutation during settlement returns ErrResolutionInProgress, and a
// settled market rejects all further stakes with ErrAlreadyResolved.
func (s *State) RecordTransfer(ctx context.Context, optionID domain.OptionID, voter string, amount domain.Drops, hash string, ts time.Time) (domain.VoteReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m.Resolved {
		return domain.VoteReceipt{}, domain.ErrAlreadyResolved
	}
	if s.settling {
		return domain.VoteReceipt{}, domain.ErrResolutionInProgress
	}
	if amount <= 0 {
		return domain.VoteReceipt{}, domain.ErrInvalidAmount
	}
	if hash != "" {
		if _, dup := s.seen[hash]; dup {
			return domain.VoteReceipt{}, domain.ErrDuplicateTransfer
		}
	}

	opt := s.m.Option(optionID)
	if opt == nil {
		return domain.VoteReceipt{}, fmt.Errorf("%w: option %q missing after validation", domain.ErrInvariant, optionID)
	}

	opt.Votes++
	opt.Amount += amount
	opt.TotalReceived += amount

	v := opt.Voter(voter)
	if v == nil {
		opt.Voters = append(opt.Voters, domain.Voter{Address: voter})
		v = &opt.Voters[len(opt.Voters)-1]
	}
	v.Amount += amount
	v.Transactions = append(v.Transactions, domain.TransactionRecord{
		Hash:      hash,
		Amount:    amount,
		Timestamp: ts,
	})

	if hash != "" {
		s.seen[hash] = struct{}{}
	}
	s.m.UpdatedAt = ts
	recomputeTotals(&s.m)

	s.save(ctx)

	return domain.VoteReceipt{
		TransactionHash: hash,
		Option:          optionID,
		Amount:          amount,
		SenderAddress:   voter,
		TotalVotes:      opt.Votes,
		TotalAmount:     opt.TotalReceived,
	}, nil
}

// BeginSettlement enters the settlement critical section and returns a
// consistent snapshot for pool and winner-set computation. Votes are
// rejected until CompleteSettlement or AbortSettlement is called.
func (s *State) BeginSettlement() (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m.Resolved {
		return domain.Market{}, domain.ErrAlreadyResolved
	}
	if s.settling {
		return domain.Market{}, domain.ErrResolutionInProgress
	}
	s.settling = true
	return copyMarket(s.m), nil
}

// AbortSettlement leaves the critical section without resolving, for
// precondition failures. The market is untouched and resolve may be
// retried later.
func (s *State) AbortSettlement() {
	s.mu.Lock()
	s.settling = false
	s.mu.Unlock()
}

// CompleteSettlement applies the resolution result, marks the market
// resolved, and leaves the critical section. The returned snapshot is the
// final market state.
func (s *State) CompleteSettlement(ctx context.Context, result *domain.ResolutionResult) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settling {
		return domain.Market{}, fmt.Errorf("%w: settlement completed outside critical section", domain.ErrInvariant)
	}
	s.settling = false

	now := result.Timestamp
	s.m.Resolved = true
	s.m.Status = domain.MarketStatusResolved
	s.m.WinningOption = result.WinningOption
	s.m.Resolution = result
	s.m.UpdatedAt = now

	if opt := s.m.Option(result.WinningOption); opt != nil {
		opt.TotalDistributed += result.RewardPerWinner * domain.Drops(result.SuccessCount)
	}

	s.save(ctx)
	return copyMarket(s.m), nil
}

// save persists the current market document. The in-memory record is the
// source of truth for this process; a persistence failure is logged, not
// propagated, because the funds movement it describes already happened.
func (s *State) save(ctx context.Context) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(ctx, copyMarket(s.m)); err != nil {
		s.logger.WarnContext(ctx, "market persist failed",
			slog.String("market_id", s.m.ID),
			slog.String("error", err.Error()),
		)
	}
}

// recomputeTotals refreshes the denormalized market-level aggregates.
func recomputeTotals(m *domain.Market) {
	m.TotalVotes = 0
	m.TotalAmount = 0
	for i := range m.Options {
		m.TotalVotes += m.Options[i].Votes
		m.TotalAmount += m.Options[i].Amount
	}
}

// copyMarket deep-copies a market so snapshots never alias internal state.
func copyMarket(m domain.Market) domain.Market {
	out := m
	out.Options = make([]domain.Option, len(m.Options))
	for i, opt := range m.Options {
		co := opt
		co.Voters = make([]domain.Voter, len(opt.Voters))
		for j, v := range opt.Voters {
			cv := v
			cv.Transactions = append([]domain.TransactionRecord(nil), v.Transactions...)
			co.Voters[j] = cv
		}
		out.Options[i] = co
	}
	if m.Resolution != nil {
		res := *m.Resolution
		res.Rewards = append([]domain.RewardRecord(nil), m.Resolution.Rewards...)
		res.FailedTransactions = append([]domain.FailureRecord(nil), m.Resolution.FailedTransactions...)
		out.Resolution = &res
	}
	return out
}
