package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"xrpredict/internal/domain"
	"xrpredict/internal/market"
)

// Monitor watches every option's collection address and reconciles
// externally-initiated payments into the market state, covering voters who
// send funds directly instead of going through vote intake. Duplicate
// hashes, including transfers already recorded by vote intake, are dropped
// by the state handle.
type Monitor struct {
	state   *market.State
	watcher domain.PaymentWatcher
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewMonitor creates a Monitor with all required dependencies.
func NewMonitor(
	state *market.State,
	watcher domain.PaymentWatcher,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		state:   state,
		watcher: watcher,
		audit:   audit,
		logger:  logger.With(slog.String("component", "monitor")),
	}
}

// Run subscribes to each collection address and consumes the payment
// streams until ctx is cancelled or a stream closes. It blocks for the
// lifetime of the subscriptions.
func (m *Monitor) Run(ctx context.Context) error {
	snap := m.state.Snapshot()

	// Collection addresses are fixed at market creation, so the
	// address-to-option mapping can be computed once.
	byAddress := make(map[string]domain.OptionID, len(snap.Options))
	for _, opt := range snap.Options {
		byAddress[opt.Address] = opt.ID
	}

	g, ctx := errgroup.WithContext(ctx)
	for address, optionID := range byAddress {
		payments, err := m.watcher.Watch(ctx, address)
		if err != nil {
			return fmt.Errorf("monitor: watch %s: %w", address, err)
		}

		m.logger.InfoContext(ctx, "watching collection address",
			slog.String("address", address),
			slog.String("option", string(optionID)),
		)

		g.Go(func() error {
			return m.consume(ctx, optionID, payments)
		})
	}

	return g.Wait()
}

// consume drains one option's payment stream into the market state.
func (m *Monitor) consume(ctx context.Context, optionID domain.OptionID, payments <-chan domain.IncomingPayment) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-payments:
			if !ok {
				return fmt.Errorf("monitor: payment stream for option %s closed: %w", optionID, domain.ErrWSDisconnect)
			}
			m.record(ctx, optionID, p)
		}
	}
}

// record reconciles one observed payment. Failures are logged, never
// fatal: a bad event must not tear down the subscription.
func (m *Monitor) record(ctx context.Context, optionID domain.OptionID, p domain.IncomingPayment) {
	_, err := m.state.RecordTransfer(ctx, optionID, p.From, p.Amount, p.Hash, p.Timestamp)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateTransfer):
		// Already recorded, usually by vote intake driving the same
		// transfer.
		m.logger.DebugContext(ctx, "duplicate transfer skipped",
			slog.String("hash", p.Hash),
		)
		return
	case errors.Is(err, domain.ErrResolutionInProgress), errors.Is(err, domain.ErrAlreadyResolved):
		m.logger.WarnContext(ctx, "incoming payment after voting closed",
			slog.String("hash", p.Hash),
			slog.String("from", p.From),
		)
		return
	default:
		m.logger.ErrorContext(ctx, "record incoming payment failed",
			slog.String("hash", p.Hash),
			slog.String("error", err.Error()),
		)
		return
	}

	if m.audit != nil {
		if err := m.audit.Log(ctx, "transfer.observed", map[string]any{
			"option": string(optionID),
			"from":   p.From,
			"to":     p.To,
			"amount": p.Amount.XRP(),
			"hash":   p.Hash,
		}); err != nil {
			m.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", "transfer.observed"),
				slog.String("error", err.Error()),
			)
		}
	}

	m.logger.InfoContext(ctx, "incoming transfer recorded",
		slog.String("option", string(optionID)),
		slog.String("from", p.From),
		slog.String("amount", p.Amount.String()),
		slog.String("hash", p.Hash),
	)
}
