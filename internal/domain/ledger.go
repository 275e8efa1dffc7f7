package domain

import (
	"context"
	"time"
)

// Payment describes one outbound XRP transfer. Sequence and
// LastLedgerSequence may be left zero, in which case the gateway fills
// them from the current validated ledger before submitting.
type Payment struct {
	Account            string
	Destination        string
	Amount             Drops
	DestinationTag     *uint32
	Sequence           uint32
	LastLedgerSequence uint32
}

// TxResult is the gateway's view of a submitted transaction.
type TxResult struct {
	Hash        string
	ResultCode  string
	Validated   bool
	LedgerIndex uint32
}

// IncomingPayment is a validated payment observed on a watched collection
// address, initiated outside this service.
type IncomingPayment struct {
	From      string
	To        string
	Amount    Drops
	Hash      string
	Timestamp time.Time
}

// LedgerGateway is the external distributed-ledger client contract. The
// concrete implementation signs with the supplied wallet secret and talks
// to an XRPL node; the engine only depends on this interface.
type LedgerGateway interface {
	// Submit signs p with secret and submits it without waiting for
	// finality. The returned result carries the provisional engine code.
	Submit(ctx context.Context, secret string, p Payment) (TxResult, error)

	// SubmitAndWait signs, submits, and polls until the transaction is
	// validated or ctx expires.
	SubmitAndWait(ctx context.Context, secret string, p Payment) (TxResult, error)

	// AwaitFinality polls the transaction lookup until hash is validated,
	// using bounded exponential backoff.
	AwaitFinality(ctx context.Context, hash string) (TxResult, error)

	// AccountBalance returns the spendable balance of address.
	AccountBalance(ctx context.Context, address string) (Drops, error)

	// AccountSequence returns the next transaction sequence for address.
	AccountSequence(ctx context.Context, address string) (uint32, error)

	// ValidatedLedgerIndex returns the latest validated ledger index.
	ValidatedLedgerIndex(ctx context.Context) (uint32, error)

	Close() error
}

// GatewayDialer produces connected gateways. The connection is a scoped
// resource: one dial per vote, one per full resolution, released on every
// exit path.
type GatewayDialer interface {
	Dial(ctx context.Context) (LedgerGateway, error)
}

// PaymentWatcher delivers incoming payments for watched addresses over a
// channel. Watching an already-watched address is a no-op that returns the
// same stream.
type PaymentWatcher interface {
	Watch(ctx context.Context, address string) (<-chan IncomingPayment, error)
}
