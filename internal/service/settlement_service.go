package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xrpredict/internal/domain"
	"xrpredict/internal/market"
)

// Payout keeps 90% of the pool for winners; the remaining 10% is the
// platform fee.
const (
	payoutNumerator   = 9
	payoutDenominator = 10
)

// SettlementConfig holds the admin credential, the treasury wallet, and
// the payout pacing policy.
type SettlementConfig struct {
	// AdminSecret is the bearer token that authorizes resolution.
	AdminSecret string

	// WalletAddress is the treasury account payouts are drawn from.
	WalletAddress string

	// WalletSecret signs payout transfers. It may be absent until
	// resolution time.
	WalletSecret string

	// PayoutDelay is the pause between consecutive winner transfers,
	// skipped after the last one.
	PayoutDelay time.Duration

	// LockTTL bounds how long the distributed resolve lock is held.
	LockTTL time.Duration
}

// SettlementService resolves the market: it computes the pool and the
// winner set under the settlement critical section, pays each winner from
// the treasury wallet, and persists the immutable resolution result.
type SettlementService struct {
	state       *market.State
	dialer      domain.GatewayDialer
	settlements domain.SettlementStore
	locks       domain.LockManager
	archiver    domain.ResolutionArchiver
	audit       domain.AuditStore
	cfg         SettlementConfig
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService. locks and archiver may
// be nil for single-process deployments without object storage.
func NewSettlementService(
	state *market.State,
	dialer domain.GatewayDialer,
	settlements domain.SettlementStore,
	locks domain.LockManager,
	archiver domain.ResolutionArchiver,
	audit domain.AuditStore,
	cfg SettlementConfig,
	logger *slog.Logger,
) *SettlementService {
	if cfg.PayoutDelay < 0 {
		cfg.PayoutDelay = 0
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &SettlementService{
		state:       state,
		dialer:      dialer,
		settlements: settlements,
		locks:       locks,
		archiver:    archiver,
		audit:       audit,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "settlement")),
	}
}

// Resolve settles the market on the given outcome. On success it returns
// the resolution result and the final market snapshot. Precondition
// failures leave the market untouched and resolve may be retried; a retry
// after a partial payout skips winners whose durable payout record is
// already completed.
func (s *SettlementService) Resolve(ctx context.Context, outcome domain.OptionID, adminSecret string) (domain.ResolutionResult, domain.Market, error) {
	if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(s.cfg.AdminSecret)) != 1 {
		return domain.ResolutionResult{}, domain.Market{}, domain.ErrUnauthorized
	}

	var unlock func()
	if s.locks != nil {
		var err error
		unlock, err = s.locks.Acquire(ctx, "resolve", s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.ResolutionResult{}, domain.Market{}, domain.ErrResolutionInProgress
			}
			return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("settlement: acquire resolve lock: %w", err)
		}
		defer unlock()
	}

	snap, err := s.state.BeginSettlement()
	if err != nil {
		return domain.ResolutionResult{}, domain.Market{}, err
	}
	committed := false
	defer func() {
		if !committed {
			s.state.AbortSettlement()
		}
	}()

	if !domain.ValidOption(outcome) {
		return domain.ResolutionResult{}, domain.Market{}, domain.ErrInvalidOutcome
	}

	winning := snap.Option(outcome)
	if winning == nil {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("%w: option %q missing after validation", domain.ErrInvariant, outcome)
	}

	var winners []domain.Voter
	for _, v := range winning.Voters {
		if v.Amount > 0 {
			winners = append(winners, v)
		}
	}
	if len(winners) == 0 {
		return domain.ResolutionResult{}, domain.Market{}, domain.ErrNoWinners
	}

	totalPool := snap.Pool()
	if totalPool <= 0 {
		return domain.ResolutionResult{}, domain.Market{}, domain.ErrEmptyPool
	}

	// Integer drop arithmetic: both divisions floor, so
	// rewardPerWinner * winnerCount never exceeds the payout.
	totalPayout := totalPool * payoutNumerator / payoutDenominator
	winnerCount := len(winners)
	rewardPerWinner := totalPayout / domain.Drops(winnerCount)
	if rewardPerWinner < 1 {
		return domain.ResolutionResult{}, domain.Market{}, domain.ErrRewardTooSmall
	}

	if s.cfg.WalletSecret == "" || s.cfg.WalletAddress == "" {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("settlement: admin wallet not configured")
	}

	gw, err := s.dialer.Dial(ctx)
	if err != nil {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("settlement: dial gateway: %w", err)
	}
	defer gw.Close()

	balance, err := gw.AccountBalance(ctx, s.cfg.WalletAddress)
	if err != nil {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("settlement: treasury balance: %w", err)
	}
	if balance < totalPayout {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("%w: have %s XRP, need %s XRP",
			domain.ErrInsufficientBalance, balance, totalPayout)
	}

	resolutionID, err := s.settlements.OpenResolution(ctx, snap.ID)
	if err != nil {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("settlement: open resolution: %w", err)
	}

	s.auditLog(ctx, "resolution.started", map[string]any{
		"resolution_id":     resolutionID,
		"outcome":           string(outcome),
		"total_pool":        totalPool.XRP(),
		"total_payout":      totalPayout.XRP(),
		"winner_count":      winnerCount,
		"reward_per_winner": rewardPerWinner.XRP(),
	})

	s.logger.InfoContext(ctx, "resolution started",
		slog.String("resolution_id", resolutionID),
		slog.String("outcome", string(outcome)),
		slog.String("total_pool", totalPool.String()),
		slog.String("reward_per_winner", rewardPerWinner.String()),
		slog.Int("winner_count", winnerCount),
	)

	result := domain.ResolutionResult{
		ResolutionID:    resolutionID,
		WinningOption:   outcome,
		TotalPool:       totalPool,
		TotalPayout:     totalPayout,
		WinnerCount:     winnerCount,
		RewardPerWinner: rewardPerWinner,
	}

	for i, w := range winners {
		rec := s.payWinner(ctx, gw, resolutionID, w.Address, rewardPerWinner)
		result.Rewards = append(result.Rewards, rec)
		if rec.Status == domain.RewardStatusCompleted {
			result.SuccessCount++
		} else {
			result.FailedCount++
			result.FailedTransactions = append(result.FailedTransactions, domain.FailureRecord{
				Voter:  w.Address,
				Amount: rewardPerWinner,
				Error:  rec.Error,
			})
		}

		if i < len(winners)-1 && s.cfg.PayoutDelay > 0 {
			// Pace transfers to respect ledger-network rate limits.
			timer := time.NewTimer(s.cfg.PayoutDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	result.Timestamp = time.Now().UTC()

	final, err := s.state.CompleteSettlement(ctx, &result)
	if err != nil {
		return domain.ResolutionResult{}, domain.Market{}, fmt.Errorf("settlement: complete: %w", err)
	}
	committed = true

	if err := s.settlements.MarkResolved(ctx, resolutionID); err != nil {
		s.logger.WarnContext(ctx, "mark resolution settled failed",
			slog.String("resolution_id", resolutionID),
			slog.String("error", err.Error()),
		)
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveResolution(ctx, result); err != nil {
			s.logger.WarnContext(ctx, "archive resolution failed",
				slog.String("resolution_id", resolutionID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.auditLog(ctx, "resolution.completed", map[string]any{
		"resolution_id": resolutionID,
		"outcome":       string(outcome),
		"success_count": result.SuccessCount,
		"failed_count":  result.FailedCount,
	})

	s.logger.InfoContext(ctx, "resolution completed",
		slog.String("resolution_id", resolutionID),
		slog.Int("success_count", result.SuccessCount),
		slog.Int("failed_count", result.FailedCount),
	)

	return result, final, nil
}

// payWinner pays rewardPerWinner to one winning voter and returns the
// reward record for the attempt. A failure is recorded and reported, never
// propagated: one failed payout must not abort the batch.
func (s *SettlementService) payWinner(ctx context.Context, gw domain.LedgerGateway, resolutionID, voter string, amount domain.Drops) domain.RewardRecord {
	// Skip winners already paid by an earlier, interrupted attempt of
	// this resolution.
	if prev, err := s.settlements.GetPayout(ctx, resolutionID, voter); err == nil && prev.Status == domain.PayoutStatusCompleted {
		s.logger.InfoContext(ctx, "payout already completed, skipping",
			slog.String("resolution_id", resolutionID),
			slog.String("voter", voter),
		)
		return domain.RewardRecord{
			To:        voter,
			Amount:    prev.Amount,
			TxHash:    prev.TxHash,
			Status:    domain.RewardStatusCompleted,
			Timestamp: prev.UpdatedAt,
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return s.failPayout(ctx, resolutionID, voter, amount, fmt.Errorf("settlement: read payout record: %w", err))
	}

	// The pending marker must be durable before any money moves;
	// without it a crash here could double-pay on retry.
	if err := s.settlements.PutPayout(ctx, domain.PayoutRecord{
		ResolutionID: resolutionID,
		Voter:        voter,
		Amount:       amount,
		Status:       domain.PayoutStatusPending,
	}); err != nil {
		return s.failPayout(ctx, resolutionID, voter, amount, fmt.Errorf("settlement: write payout record: %w", err))
	}

	res, err := gw.SubmitAndWait(ctx, s.cfg.WalletSecret, domain.Payment{
		Account:     s.cfg.WalletAddress,
		Destination: voter,
		Amount:      amount,
	})
	if err != nil {
		return s.failPayout(ctx, resolutionID, voter, amount, err)
	}

	if err := s.settlements.PutPayout(ctx, domain.PayoutRecord{
		ResolutionID: resolutionID,
		Voter:        voter,
		Amount:       amount,
		Status:       domain.PayoutStatusCompleted,
		TxHash:       res.Hash,
	}); err != nil {
		s.logger.WarnContext(ctx, "mark payout completed failed",
			slog.String("resolution_id", resolutionID),
			slog.String("voter", voter),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "payout completed",
		slog.String("voter", voter),
		slog.String("amount", amount.String()),
		slog.String("hash", res.Hash),
	)

	return domain.RewardRecord{
		To:        voter,
		Amount:    amount,
		TxHash:    res.Hash,
		Status:    domain.RewardStatusCompleted,
		Timestamp: time.Now().UTC(),
	}
}

// failPayout records a failed payout attempt durably and returns its
// reward record.
func (s *SettlementService) failPayout(ctx context.Context, resolutionID, voter string, amount domain.Drops, cause error) domain.RewardRecord {
	s.logger.ErrorContext(ctx, "payout failed",
		slog.String("resolution_id", resolutionID),
		slog.String("voter", voter),
		slog.String("error", cause.Error()),
	)

	if err := s.settlements.PutPayout(ctx, domain.PayoutRecord{
		ResolutionID: resolutionID,
		Voter:        voter,
		Amount:       amount,
		Status:       domain.PayoutStatusFailed,
		Error:        cause.Error(),
	}); err != nil {
		s.logger.WarnContext(ctx, "mark payout failed failed",
			slog.String("resolution_id", resolutionID),
			slog.String("voter", voter),
			slog.String("error", err.Error()),
		)
	}

	return domain.RewardRecord{
		To:        voter,
		Amount:    amount,
		Status:    domain.RewardStatusFailed,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// auditLog writes an audit entry, logging instead of failing resolution
// when the audit store is unavailable.
func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
