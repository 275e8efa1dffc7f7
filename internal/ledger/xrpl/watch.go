package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"xrpredict/internal/domain"
)

// watchBuffer sizes each per-address payment channel. A full buffer drops
// the event rather than stalling the read loop; the audit trail on the
// ledger itself remains authoritative.
const watchBuffer = 128

// Watch subscribes to ledger activity for address and returns a channel of
// validated incoming payments addressed to it. Watching an address that is
// already watched returns the existing channel without re-subscribing.
func (c *Client) Watch(ctx context.Context, address string) (<-chan domain.IncomingPayment, error) {
	c.watchMu.Lock()
	if ch, ok := c.watched[address]; ok {
		c.watchMu.Unlock()
		return ch, nil
	}
	ch := make(chan domain.IncomingPayment, watchBuffer)
	c.watched[address] = ch
	c.watchMu.Unlock()

	if _, err := c.call(ctx, request{
		"command":  "subscribe",
		"accounts": []string{address},
	}); err != nil {
		c.watchMu.Lock()
		delete(c.watched, address)
		c.watchMu.Unlock()
		close(ch)
		return nil, fmt.Errorf("xrpl: subscribe %s: %w", address, err)
	}

	c.logger.Info("watching address", slog.String("address", address))
	return ch, nil
}

// dispatchStreamTx routes one asynchronous transaction frame to the
// watcher of its destination address, if any. Only validated payments are
// forwarded.
func (c *Client) dispatchStreamTx(data []byte) {
	var ev streamTx
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("unparseable transaction frame", slog.String("error", err.Error()))
		return
	}
	if !ev.Validated || ev.Transaction.TransactionType != "Payment" {
		return
	}

	c.watchMu.Lock()
	ch, ok := c.watched[ev.Transaction.Destination]
	c.watchMu.Unlock()
	if !ok {
		return
	}

	drops, err := strconv.ParseInt(ev.Transaction.Amount, 10, 64)
	if err != nil {
		// Non-XRP amounts (issued currencies) arrive as objects and fail
		// this parse; the market only accepts native XRP stakes.
		return
	}

	payment := domain.IncomingPayment{
		From:      ev.Transaction.Account,
		To:        ev.Transaction.Destination,
		Amount:    domain.Drops(drops),
		Hash:      ev.Transaction.Hash,
		Timestamp: time.Now().UTC(),
	}

	select {
	case ch <- payment:
	default:
		c.logger.Warn("watch channel full, dropping payment",
			slog.String("address", payment.To),
			slog.String("hash", payment.Hash),
		)
	}
}
