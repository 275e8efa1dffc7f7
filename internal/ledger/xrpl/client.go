// Package xrpl implements the ledger gateway against the rippled
// WebSocket JSON-RPC API. Signing is delegated to the node's submit
// command, which accepts the wallet secret alongside the transaction.
package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"xrpredict/internal/domain"
	"xrpredict/internal/retry"
)

const (
	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// finalityTimeout bounds one full AwaitFinality poll.
	finalityTimeout = 60 * time.Second

	// finalityMaxAttempts bounds the number of tx lookups per wait.
	finalityMaxAttempts = 10

	// finalityBackoffBase and finalityBackoffCap shape the poll backoff.
	finalityBackoffBase = time.Second
	finalityBackoffCap  = 10 * time.Second

	// ledgerValidityWindow is added to the current validated ledger index
	// to bound how long a submitted payment stays valid.
	ledgerValidityWindow = 4
)

// Dialer dials rippled WebSocket endpoints and returns connected clients.
type Dialer struct {
	URL    string
	Logger *slog.Logger
}

// Dial establishes a connection and starts the read and ping loops.
func (d Dialer) Dial(ctx context.Context) (domain.LedgerGateway, error) {
	return d.DialClient(ctx)
}

// DialClient is Dial returning the concrete type, for callers that also
// need the PaymentWatcher side of the client.
func (d Dialer) DialClient(ctx context.Context) (*Client, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("xrpl: connect %s: %w", d.URL, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger.With(slog.String("component", "xrpl")),
		pending: make(map[int64]chan response),
		watched: make(map[string]chan domain.IncomingPayment),
		done:    make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Client is a connected rippled WebSocket session. It correlates request
// and response frames by id and dispatches subscription stream frames to
// per-address payment channels.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan response

	watchMu sync.Mutex
	watched map[string]chan domain.IncomingPayment

	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ domain.LedgerGateway  = (*Client)(nil)
	_ domain.PaymentWatcher = (*Client)(nil)
)

// Close tears the connection down and fails all in-flight calls.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()

		c.watchMu.Lock()
		for addr, ch := range c.watched {
			close(ch)
			delete(c.watched, addr)
		}
		c.watchMu.Unlock()
	})
	return err
}

// call sends one command frame and waits for the matching response.
func (c *Client) call(ctx context.Context, req request) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	req["id"] = id

	ch := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("xrpl: %s: %w", req["command"], ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("xrpl: %s: %w", req["command"], domain.ErrWSDisconnect)
	case resp := <-ch:
		if resp.Status != "success" {
			msg := resp.ErrorMessage
			if msg == "" {
				msg = resp.Error
			}
			return nil, fmt.Errorf("xrpl: %s: %s", req["command"], msg)
		}
		return resp.Result, nil
	}
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("xrpl: write: %w", err)
	}
	return nil
}

// readLoop reads every frame on the connection, routing replies to their
// callers and subscription stream frames to watchers. It exits when the
// connection drops.
func (c *Client) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("read loop terminated", slog.String("error", err.Error()))
			}
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("unparseable frame", slog.String("error", err.Error()))
			continue
		}

		if resp.Type == "transaction" {
			c.dispatchStreamTx(data)
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn("ping failed", slog.String("error", err.Error()))
				c.Close()
				return
			}
		}
	}
}

// AccountBalance returns the validated balance of address in drops.
func (c *Client) AccountBalance(ctx context.Context, address string) (domain.Drops, error) {
	info, err := c.accountInfo(ctx, address)
	if err != nil {
		return 0, err
	}
	drops, err := strconv.ParseInt(info.AccountData.Balance, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("xrpl: account %s balance %q: %w", address, info.AccountData.Balance, err)
	}
	return domain.Drops(drops), nil
}

// AccountSequence returns the next transaction sequence for address.
func (c *Client) AccountSequence(ctx context.Context, address string) (uint32, error) {
	info, err := c.accountInfo(ctx, address)
	if err != nil {
		return 0, err
	}
	return info.AccountData.Sequence, nil
}

func (c *Client) accountInfo(ctx context.Context, address string) (accountInfoResult, error) {
	raw, err := c.call(ctx, request{
		"command":      "account_info",
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		return accountInfoResult{}, err
	}
	var out accountInfoResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return accountInfoResult{}, fmt.Errorf("xrpl: account_info decode: %w", err)
	}
	return out, nil
}

// ValidatedLedgerIndex returns the latest validated ledger index.
func (c *Client) ValidatedLedgerIndex(ctx context.Context) (uint32, error) {
	raw, err := c.call(ctx, request{
		"command":      "ledger",
		"ledger_index": "validated",
		"transactions": false,
	})
	if err != nil {
		return 0, err
	}
	var out ledgerResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("xrpl: ledger decode: %w", err)
	}
	return out.LedgerIndex, nil
}

// Submit signs p with secret on the node and submits it without waiting
// for finality. A rejection code is returned as *domain.TransferError with
// retryability derived from the code class.
func (c *Client) Submit(ctx context.Context, secret string, p domain.Payment) (domain.TxResult, error) {
	tx := txJSON{
		TransactionType:    "Payment",
		Account:            p.Account,
		Destination:        p.Destination,
		Amount:             strconv.FormatInt(int64(p.Amount), 10),
		Fee:                standardFee,
		Sequence:           p.Sequence,
		LastLedgerSequence: p.LastLedgerSequence,
		Flags:              tfFullyCanonicalSig,
	}
	if p.DestinationTag != nil {
		tx.DestinationTag = *p.DestinationTag
	}

	raw, err := c.call(ctx, request{
		"command":   "submit",
		"secret":    secret,
		"tx_json":   tx,
		"fail_hard": false,
	})
	if err != nil {
		return domain.TxResult{}, err
	}

	var out submitResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.TxResult{}, fmt.Errorf("xrpl: submit decode: %w", err)
	}

	res := domain.TxResult{
		Hash:       out.TxJSON.Hash,
		ResultCode: out.EngineResult,
	}
	if !isSuccessCode(out.EngineResult) && !isRetryableCode(out.EngineResult) {
		return res, &domain.TransferError{
			Code:      out.EngineResult,
			Detail:    out.EngineResultMessage,
			Retryable: false,
		}
	}
	return res, nil
}

// AwaitFinality polls the tx lookup with bounded exponential backoff until
// hash appears in a validated ledger, the attempts are exhausted, or the
// overall timeout expires. A validated transaction whose meta code is not
// a success is a final failure.
func (c *Client) AwaitFinality(ctx context.Context, hash string) (domain.TxResult, error) {
	ctx, cancel := context.WithTimeout(ctx, finalityTimeout)
	defer cancel()

	var final domain.TxResult
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: finalityMaxAttempts,
		Backoff:     retry.Exponential(finalityBackoffBase, finalityBackoffCap),
		Retryable:   domain.RetryableTransfer,
	}, func(ctx context.Context) error {
		raw, err := c.call(ctx, request{
			"command":     "tx",
			"transaction": hash,
			"binary":      false,
		})
		if err != nil {
			// txnNotFound is expected until the transaction lands in a
			// ledger; treat every lookup error as retryable.
			return &domain.TransferError{Code: "txnNotFound", Detail: err.Error(), Retryable: true}
		}

		var out txResult
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("xrpl: tx decode: %w", err)
		}
		if !out.Validated {
			return &domain.TransferError{Code: "notValidated", Detail: "transaction not yet validated", Retryable: true}
		}
		if !isSuccessCode(out.Meta.TransactionResult) {
			return &domain.TransferError{Code: out.Meta.TransactionResult, Retryable: false}
		}

		final = domain.TxResult{
			Hash:        hash,
			ResultCode:  out.Meta.TransactionResult,
			Validated:   true,
			LedgerIndex: out.LedgerIndex,
		}
		return nil
	})
	if err != nil {
		return domain.TxResult{}, err
	}
	return final, nil
}

// SubmitAndWait fills in the sequence and validity window when unset,
// submits, and waits for finality.
func (c *Client) SubmitAndWait(ctx context.Context, secret string, p domain.Payment) (domain.TxResult, error) {
	if p.Sequence == 0 {
		seq, err := c.AccountSequence(ctx, p.Account)
		if err != nil {
			return domain.TxResult{}, err
		}
		p.Sequence = seq
	}
	if p.LastLedgerSequence == 0 {
		idx, err := c.ValidatedLedgerIndex(ctx)
		if err != nil {
			return domain.TxResult{}, err
		}
		p.LastLedgerSequence = idx + ledgerValidityWindow
	}

	res, err := c.Submit(ctx, secret, p)
	if err != nil {
		return res, err
	}
	return c.AwaitFinality(ctx, res.Hash)
}
