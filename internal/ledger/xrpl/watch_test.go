package xrpl

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"xrpredict/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeRippled is a minimal rippled WebSocket endpoint. It answers every
// command frame with a success envelope, counts subscribe commands, and
// lets the test push transaction stream frames.
type fakeRippled struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribes int
}

func (f *fakeRippled) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req["command"] == "subscribe" {
			f.mu.Lock()
			f.subscribes++
			f.mu.Unlock()
		}
		f.write(map[string]any{
			"id":     req["id"],
			"type":   "response",
			"status": "success",
			"result": map[string]any{},
		})
	}
}

func (f *fakeRippled) write(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		f.t.Error("write before connect")
		return
	}
	if err := f.conn.WriteJSON(v); err != nil {
		f.t.Errorf("server write: %v", err)
	}
}

func (f *fakeRippled) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// sendPayment pushes one transaction stream frame to the client.
func (f *fakeRippled) sendPayment(validated bool, from, to, drops, hash string) {
	f.write(map[string]any{
		"type":      "transaction",
		"validated": validated,
		"transaction": map[string]any{
			"TransactionType": "Payment",
			"Account":         from,
			"Destination":     to,
			"Amount":          drops,
			"hash":            hash,
		},
	})
}

func dialFake(t *testing.T) (*Client, *fakeRippled) {
	t.Helper()
	f := &fakeRippled{t: t}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	d := Dialer{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger: testLogger(),
	}
	c, err := d.DialClient(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, f
}

func TestWatchSubscribesOncePerAddress(t *testing.T) {
	c, f := dialFake(t)
	ctx := context.Background()

	ch1, err := c.Watch(ctx, "rOptionYes")
	if err != nil {
		t.Fatalf("first watch: %v", err)
	}
	ch2, err := c.Watch(ctx, "rOptionYes")
	if err != nil {
		t.Fatalf("repeat watch: %v", err)
	}
	if ch1 != ch2 {
		t.Error("repeat watch returned a different channel")
	}
	if got := f.subscribeCount(); got != 1 {
		t.Errorf("subscribe frames = %d, want 1", got)
	}

	if _, err := c.Watch(ctx, "rOptionNo"); err != nil {
		t.Fatalf("second address: %v", err)
	}
	if got := f.subscribeCount(); got != 2 {
		t.Errorf("subscribe frames after second address = %d, want 2", got)
	}
}

func TestWatchDeliversValidatedPaymentsOnly(t *testing.T) {
	c, f := dialFake(t)

	ch, err := c.Watch(context.Background(), "rOptionYes")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	// None of these may reach the channel: unvalidated, wrong destination,
	// issued-currency amount.
	f.sendPayment(false, "rVoterA", "rOptionYes", "1000000", "UNVALIDATED")
	f.sendPayment(true, "rVoterA", "rSomeoneElse", "1000000", "ELSEWHERE")
	f.sendPayment(true, "rVoterA", "rOptionYes", "not-a-drop-count", "IOU")
	f.sendPayment(true, "rVoterA", "rOptionYes", "25000000", "GOOD")

	select {
	case p := <-ch:
		if p.Hash != "GOOD" {
			t.Fatalf("delivered hash %q, want GOOD", p.Hash)
		}
		if p.From != "rVoterA" || p.To != "rOptionYes" {
			t.Errorf("payment endpoints = %s -> %s", p.From, p.To)
		}
		if p.Amount != 25*domain.DropsPerXRP {
			t.Errorf("amount = %d drops, want 25 XRP", p.Amount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("validated payment never delivered")
	}

	select {
	case p := <-ch:
		t.Fatalf("unexpected extra payment %q", p.Hash)
	case <-time.After(50 * time.Millisecond):
	}
}
