// Package ws implements the ledger client against a rippled WebSocket
// endpoint.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pulseledger/xrpwatch/internal/ledger"
	"go.uber.org/zap"
)

const (
	historyPageLimit    = 200
	defaultWriteTimeout = 10 * time.Second
)

// Client talks to one rippled server. Each call owns its connection: history
// pulls dial, page, and close; subscriptions dial and read until cancelled.
type Client struct {
	url          string
	writeTimeout time.Duration
	log          *zap.Logger
}

// New builds a client for the given endpoint. A zero writeTimeout falls back
// to the default.
func New(url string, writeTimeout time.Duration, log *zap.Logger) *Client {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Client{url: url, writeTimeout: writeTimeout, log: log.Named("ledger.ws")}
}

type request struct {
	ID             int             `json:"id"`
	Command        string          `json:"command"`
	Account        string          `json:"account,omitempty"`
	Accounts       []string        `json:"accounts,omitempty"`
	LedgerIndexMin int64           `json:"ledger_index_min,omitempty"`
	LedgerIndexMax int64           `json:"ledger_index_max,omitempty"`
	Limit          int             `json:"limit,omitempty"`
	Marker         json.RawMessage `json:"marker,omitempty"`
}

type response struct {
	ID     int             `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`

	// Async subscription stream fields.
	Transaction json.RawMessage `json:"transaction"`
	Meta        ledger.Meta     `json:"meta"`
	Validated   bool            `json:"validated"`
	LedgerIndex uint64          `json:"ledger_index"`
}

type accountTxResult struct {
	Transactions []ledger.Envelope `json:"transactions"`
	Marker       json.RawMessage   `json:"marker"`
}

// AccountTransactions pages through account_tx until the server stops
// returning a marker.
func (c *Client) AccountTransactions(ctx context.Context, account string) ([]ledger.Envelope, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var (
		envelopes []ledger.Envelope
		marker    json.RawMessage
		reqID     int
	)
	for {
		reqID++
		req := request{
			ID:             reqID,
			Command:        "account_tx",
			Account:        account,
			LedgerIndexMin: -1,
			LedgerIndexMax: -1,
			Limit:          historyPageLimit,
			Marker:         marker,
		}
		resp, err := c.roundTrip(ctx, conn, req)
		if err != nil {
			return nil, err
		}

		var page accountTxResult
		if err := json.Unmarshal(resp.Result, &page); err != nil {
			return nil, fmt.Errorf("decode account_tx result: %w", err)
		}
		envelopes = append(envelopes, page.Transactions...)

		if len(page.Marker) == 0 || string(page.Marker) == "null" {
			return envelopes, nil
		}
		marker = page.Marker
	}
}

// Subscribe opens a live transaction stream for the account. The returned
// channels close after cancellation or connection drop; the cause is reported
// on the error channel (nil for clean cancellation).
func (c *Client) Subscribe(ctx context.Context, account string) (<-chan ledger.Envelope, <-chan error, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	sub := request{ID: 1, Command: "subscribe", Accounts: []string{account}}
	if _, err := c.roundTrip(ctx, conn, sub); err != nil {
		conn.Close()
		return nil, nil, err
	}

	envelopes := make(chan ledger.Envelope)
	errs := make(chan error, 1)

	// done lets the closer exit when the reader stops first (connection
	// drop), so it never outlives the subscription holding a dead conn.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		defer close(done)
		defer close(envelopes)
		defer close(errs)
		for {
			var msg response
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() != nil {
					errs <- nil
					return
				}
				errs <- fmt.Errorf("%w: %v", ledger.ErrUpstreamUnavailable, err)
				return
			}
			if msg.Type != "transaction" {
				continue
			}
			env, err := streamEnvelope(msg)
			if err != nil {
				c.log.Warn("dropping undecodable stream message", zap.Error(err))
				continue
			}
			select {
			case envelopes <- env:
			case <-ctx.Done():
				errs <- nil
				return
			}
		}
	}()

	return envelopes, errs, nil
}

// streamEnvelope folds a stream message into the envelope shape used by the
// history pull: the transaction body becomes tx, with the message-level
// ledger index attached.
func streamEnvelope(msg response) (ledger.Envelope, error) {
	var tx ledger.Tx
	if err := json.Unmarshal(msg.Transaction, &tx); err != nil {
		return ledger.Envelope{}, fmt.Errorf("decode stream transaction: %w", err)
	}
	if tx.LedgerIndex == 0 {
		tx.LedgerIndex = msg.LedgerIndex
	}
	return ledger.Envelope{
		Validated: msg.Validated,
		Meta:      msg.Meta,
		Tx:        tx,
	}, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ledger.ErrUpstreamUnavailable, c.url, err)
	}
	return conn, nil
}

func (c *Client) roundTrip(ctx context.Context, conn *websocket.Conn, req request) (*response, error) {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ledger.ErrUpstreamUnavailable, req.Command, err)
	}

	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ledger.ErrUpstreamUnavailable, req.Command, err)
		}
		// Async stream messages may interleave with command responses.
		if resp.ID != req.ID {
			continue
		}
		if resp.Status != "success" {
			return nil, fmt.Errorf("%w: %s failed: %s", ledger.ErrUpstreamUnavailable, req.Command, resp.Error)
		}
		return &resp, nil
	}
}

var _ ledger.Client = (*Client)(nil)
