// Package ledger defines the upstream XRP Ledger client contract and the raw
// envelope shape it yields.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUpstreamUnavailable wraps network and timeout failures from the ledger
// endpoint. The engine never retries internally; callers own backoff policy.
var ErrUpstreamUnavailable = errors.New("ledger upstream unavailable")

// Envelope is one raw transaction record as emitted by the ledger, including
// validation and result metadata. Amount stays raw JSON here: it is either a
// plain decimal string (native currency) or an issued-asset object, and the
// filter decodes it exhaustively.
type Envelope struct {
	Validated bool `json:"validated"`
	Meta      Meta `json:"meta"`
	Tx        Tx   `json:"tx"`
}

type Meta struct {
	TransactionResult string `json:"TransactionResult"`
}

type Tx struct {
	TransactionType string          `json:"TransactionType"`
	Hash            string          `json:"hash"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	DestinationTag  *uint64         `json:"DestinationTag,omitempty"`
	Amount          json.RawMessage `json:"Amount"`
	Fee             string          `json:"Fee"`
	LedgerIndex     uint64          `json:"ledger_index"`
}

// Client supplies raw transaction envelopes for one account, as a finite
// history pull or a cancellable live subscription.
type Client interface {
	// AccountTransactions fetches the full stored history for the account.
	AccountTransactions(ctx context.Context, account string) ([]Envelope, error)

	// Subscribe streams new envelopes for the account until ctx is cancelled
	// or the connection drops; termination is reported on the error channel,
	// after which both channels are closed.
	Subscribe(ctx context.Context, account string) (<-chan Envelope, <-chan error, error)
}
