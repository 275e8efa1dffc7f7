// Package service implements the vote intake, incoming-transfer monitor,
// and settlement engine on top of the market state handle and the ledger
// gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xrpredict/internal/domain"
	"xrpredict/internal/market"
	"xrpredict/internal/retry"
)

// VoteConfig holds the transfer policy for vote intake.
type VoteConfig struct {
	// SubmitTimeout bounds each submit-and-await-finality attempt.
	SubmitTimeout time.Duration

	// MaxAttempts is the number of transfer attempts before the vote
	// fails with a transfer error.
	MaxAttempts int
}

// VoteRequest is a validated-at-the-edge stake request. Amount is already
// parsed to drops; DestinationAddress may be empty to use the option's
// collection address.
type VoteRequest struct {
	Option             domain.OptionID
	Amount             domain.Drops
	SenderAddress      string
	WalletSecret       string
	DestinationAddress string
	DestinationTag     *uint32
}

// VoteService drives voter-funded transfers to an option's collection
// address and records confirmed stakes into the market state.
type VoteService struct {
	state  *market.State
	dialer domain.GatewayDialer
	audit  domain.AuditStore
	cfg    VoteConfig
	logger *slog.Logger
}

// NewVoteService creates a VoteService with all required dependencies.
func NewVoteService(
	state *market.State,
	dialer domain.GatewayDialer,
	audit domain.AuditStore,
	cfg VoteConfig,
	logger *slog.Logger,
) *VoteService {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 45 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return &VoteService{
		state:  state,
		dialer: dialer,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "vote_service")),
	}
}

// SubmitVote validates the request, moves the staked amount from the
// voter's account to the option's collection address, and records the vote
// once the transfer is confirmed on ledger. Exactly one real-money
// transfer happens per call; the gateway connection is scoped to the call.
func (s *VoteService) SubmitVote(ctx context.Context, req VoteRequest) (domain.VoteReceipt, error) {
	if !domain.ValidOption(req.Option) {
		return domain.VoteReceipt{}, domain.ErrInvalidOption
	}
	if req.Amount <= 0 {
		return domain.VoteReceipt{}, domain.ErrInvalidAmount
	}
	if req.SenderAddress == "" || req.WalletSecret == "" {
		return domain.VoteReceipt{}, domain.ErrMissingCredential
	}

	destination := req.DestinationAddress
	if destination == "" {
		snap := s.state.Snapshot()
		opt := snap.Option(req.Option)
		if opt == nil {
			return domain.VoteReceipt{}, fmt.Errorf("%w: option %q missing after validation", domain.ErrInvariant, req.Option)
		}
		destination = opt.Address
	}

	gw, err := s.dialer.Dial(ctx)
	if err != nil {
		return domain.VoteReceipt{}, fmt.Errorf("vote_service: dial gateway: %w", err)
	}
	defer gw.Close()

	payment := domain.Payment{
		Account:        req.SenderAddress,
		Destination:    destination,
		Amount:         req.Amount,
		DestinationTag: req.DestinationTag,
	}

	// Soft rejections and finality timeouts get up to MaxAttempts tries
	// with 1s, 2s, 4s waits in between; final rejection codes stop the
	// loop immediately.
	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxAttempts,
		Backoff:     retry.Exponential(time.Second, 0),
		Retryable:   domain.RetryableTransfer,
	}

	var confirmed domain.TxResult
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()

		res, err := gw.SubmitAndWait(attemptCtx, req.WalletSecret, payment)
		if err != nil {
			return err
		}
		confirmed = res
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "vote transfer failed",
			slog.String("option", string(req.Option)),
			slog.String("sender", req.SenderAddress),
			slog.String("error", err.Error()),
		)
		// Timeouts exhaust the retry budget without a rejection code in
		// the chain; classify them as transfer failures for the caller.
		if !errors.Is(err, domain.ErrTransferFailed) {
			err = errors.Join(domain.ErrTransferFailed, err)
		}
		return domain.VoteReceipt{}, fmt.Errorf("vote_service: submit transfer: %w", err)
	}

	receipt, err := s.state.RecordTransfer(ctx, req.Option, req.SenderAddress, req.Amount, confirmed.Hash, time.Now().UTC())
	if err != nil {
		// The transfer already happened on ledger; a recording failure
		// here is surfaced so the caller knows the vote is not counted.
		return domain.VoteReceipt{}, fmt.Errorf("vote_service: record confirmed vote %s: %w", confirmed.Hash, err)
	}

	s.auditLog(ctx, "vote.confirmed", map[string]any{
		"option": string(req.Option),
		"sender": req.SenderAddress,
		"amount": req.Amount.XRP(),
		"hash":   confirmed.Hash,
	})

	s.logger.InfoContext(ctx, "vote recorded",
		slog.String("option", string(req.Option)),
		slog.String("sender", req.SenderAddress),
		slog.String("hash", confirmed.Hash),
	)

	return receipt, nil
}

// RecordVerifiedVote records a stake whose transfer was already confirmed
// out of band. The transaction hash is required so duplicate submissions
// of the same transfer are rejected.
func (s *VoteService) RecordVerifiedVote(ctx context.Context, option domain.OptionID, amount domain.Drops, sender, hash string) (domain.VoteReceipt, error) {
	if !domain.ValidOption(option) {
		return domain.VoteReceipt{}, domain.ErrInvalidOption
	}
	if amount <= 0 {
		return domain.VoteReceipt{}, domain.ErrInvalidAmount
	}
	if sender == "" || hash == "" {
		return domain.VoteReceipt{}, domain.ErrMissingCredential
	}

	receipt, err := s.state.RecordTransfer(ctx, option, sender, amount, hash, time.Now().UTC())
	if err != nil {
		return domain.VoteReceipt{}, fmt.Errorf("vote_service: record verified vote %s: %w", hash, err)
	}

	s.auditLog(ctx, "vote.recorded", map[string]any{
		"option": string(option),
		"sender": sender,
		"amount": amount.XRP(),
		"hash":   hash,
	})

	return receipt, nil
}

// auditLog writes an audit entry, logging instead of failing the caller
// when the audit store is unavailable.
func (s *VoteService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
