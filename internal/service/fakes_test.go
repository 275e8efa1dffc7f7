package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"xrpredict/internal/domain"
	"xrpredict/internal/market"
)

// fakeGateway scripts SubmitAndWait outcomes and records every accepted
// payment in order.
type fakeGateway struct {
	mu       sync.Mutex
	balance  domain.Drops
	scripted []error
	submits  []domain.Payment
	secrets  []string
	calls    int
	closed   bool
	hashSeq  int
}

func (g *fakeGateway) SubmitAndWait(ctx context.Context, secret string, p domain.Payment) (domain.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.scripted) > 0 {
		err := g.scripted[0]
		g.scripted = g.scripted[1:]
		if err != nil {
			return domain.TxResult{}, err
		}
	}
	g.submits = append(g.submits, p)
	g.secrets = append(g.secrets, secret)
	g.hashSeq++
	return domain.TxResult{
		Hash:       fmt.Sprintf("HASH%04d", g.hashSeq),
		ResultCode: "tesSUCCESS",
		Validated:  true,
	}, nil
}

func (g *fakeGateway) Submit(ctx context.Context, secret string, p domain.Payment) (domain.TxResult, error) {
	return g.SubmitAndWait(ctx, secret, p)
}

func (g *fakeGateway) AwaitFinality(ctx context.Context, hash string) (domain.TxResult, error) {
	return domain.TxResult{Hash: hash, ResultCode: "tesSUCCESS", Validated: true}, nil
}

func (g *fakeGateway) AccountBalance(ctx context.Context, address string) (domain.Drops, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *fakeGateway) AccountSequence(ctx context.Context, address string) (uint32, error) {
	return 7, nil
}

func (g *fakeGateway) ValidatedLedgerIndex(ctx context.Context) (uint32, error) {
	return 1000, nil
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// fakeDialer hands out one gateway and counts dials.
type fakeDialer struct {
	mu    sync.Mutex
	gw    *fakeGateway
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (domain.LedgerGateway, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.gw, nil
}

// fakeSettlements is an in-memory domain.SettlementStore.
type fakeSettlements struct {
	mu       sync.Mutex
	nextID   string
	pending  map[string]string
	resolved map[string]bool
	payouts  map[string]domain.PayoutRecord
}

func newFakeSettlements() *fakeSettlements {
	return &fakeSettlements{
		nextID:   "res-1",
		pending:  make(map[string]string),
		resolved: make(map[string]bool),
		payouts:  make(map[string]domain.PayoutRecord),
	}
}

func payoutKey(resolutionID, voter string) string {
	return resolutionID + "/" + voter
}

func (f *fakeSettlements) OpenResolution(ctx context.Context, marketID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.pending[marketID]; ok {
		return id, nil
	}
	f.pending[marketID] = f.nextID
	return f.nextID, nil
}

func (f *fakeSettlements) MarkResolved(ctx context.Context, resolutionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[resolutionID] = true
	return nil
}

func (f *fakeSettlements) GetPayout(ctx context.Context, resolutionID, voter string) (domain.PayoutRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.payouts[payoutKey(resolutionID, voter)]
	if !ok {
		return domain.PayoutRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeSettlements) PutPayout(ctx context.Context, rec domain.PayoutRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	f.payouts[payoutKey(rec.ResolutionID, rec.Voter)] = rec
	return nil
}

// fakeAudit records audit events in order.
type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

// fakeWatcher serves one payment channel per watched address.
type fakeWatcher struct {
	mu       sync.Mutex
	channels map[string]chan domain.IncomingPayment
	watched  map[string]int
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		channels: make(map[string]chan domain.IncomingPayment),
		watched:  make(map[string]int),
	}
}

func (f *fakeWatcher) Watch(ctx context.Context, address string) (<-chan domain.IncomingPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched[address]++
	ch, ok := f.channels[address]
	if !ok {
		ch = make(chan domain.IncomingPayment, 16)
		f.channels[address] = ch
	}
	return ch, nil
}

func (f *fakeWatcher) send(address string, p domain.IncomingPayment) {
	f.mu.Lock()
	ch := f.channels[address]
	f.mu.Unlock()
	ch <- p
}

const (
	yesAddr      = "rYesCollect111111111111111111111"
	noAddr       = "rNoCollect2222222222222222222222"
	treasuryAddr = "rTreasury33333333333333333333333"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestState(t *testing.T) *market.State {
	t.Helper()
	m := market.New("Will it rain tomorrow?", 24*time.Hour, yesAddr, noAddr, time.Now().UTC())
	return market.NewState(m, nil, testLogger())
}

func mustRecord(t *testing.T, s *market.State, option domain.OptionID, voter string, xrp int64, hash string) {
	t.Helper()
	_, err := s.RecordTransfer(context.Background(), option, voter, domain.Drops(xrp)*domain.DropsPerXRP, hash, time.Now().UTC())
	if err != nil {
		t.Fatalf("record transfer %s: %v", hash, err)
	}
}
