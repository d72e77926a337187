// Package ingest implements the payment ingestion engine: filtering raw
// ledger envelopes, resolving the entities they reference, and persisting new
// payment records idempotently.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pulseledger/xrpwatch/internal/ledger"
	"go.uber.org/zap"
)

const (
	txTypePayment = "Payment"
	resultSuccess = "tesSUCCESS"
)

// ErrMalformedTransaction marks an envelope that passed the validity flags
// but cannot be normalized (unparseable amount, missing required field).
// The offending record is skipped and logged; it never aborts a batch.
var ErrMalformedTransaction = errors.New("malformed transaction")

// Amount is the value-transfer amount of a payment: either the ledger's
// native currency as a plain decimal string, or an issued asset.
type Amount interface {
	// AmountValue returns the decimal string persisted on the record.
	AmountValue() string
}

// NativeAmount is a plain decimal string with no issuer.
type NativeAmount struct {
	Value string
}

func (a NativeAmount) AmountValue() string { return a.Value }

// IssuedAmount carries the issuing account and currency code.
type IssuedAmount struct {
	Issuer   string
	Currency string
	Value    string
}

func (a IssuedAmount) AmountValue() string { return a.Value }

// Payment is a canonical accepted payment, normalized from a raw envelope.
type Payment struct {
	Hash           string
	Source         string
	Destination    string
	LedgerIndex    uint64
	DestinationTag *uint64
	Fee            string
	Amount         Amount
}

// Accepts reports whether the envelope is a validated successful payment.
func Accepts(env ledger.Envelope) bool {
	return env.Tx.TransactionType == txTypePayment &&
		env.Validated &&
		env.Meta.TransactionResult == resultSuccess
}

// Normalize converts an accepted envelope into a canonical Payment. It
// returns ErrMalformedTransaction when a required field is missing or the
// amount shape is neither a decimal string nor an issued-asset object.
func Normalize(env ledger.Envelope) (Payment, error) {
	tx := env.Tx
	if tx.Hash == "" {
		return Payment{}, fmt.Errorf("%w: missing hash", ErrMalformedTransaction)
	}
	if tx.Account == "" || tx.Destination == "" {
		return Payment{}, fmt.Errorf("%w: missing account or destination on %s", ErrMalformedTransaction, tx.Hash)
	}
	if tx.LedgerIndex == 0 {
		return Payment{}, fmt.Errorf("%w: missing ledger index on %s", ErrMalformedTransaction, tx.Hash)
	}

	amount, err := decodeAmount(tx.Amount)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %s: %v", ErrMalformedTransaction, tx.Hash, err)
	}

	return Payment{
		Hash:           tx.Hash,
		Source:         tx.Account,
		Destination:    tx.Destination,
		LedgerIndex:    tx.LedgerIndex,
		DestinationTag: tx.DestinationTag,
		Fee:            tx.Fee,
		Amount:         amount,
	}, nil
}

// FilterPayments keeps validated successful payments, deduplicates by hash
// within the batch, and normalizes them. Malformed accepted envelopes are
// skipped with a warning; malformed is their count.
func FilterPayments(envelopes []ledger.Envelope, log *zap.Logger) (payments []Payment, malformed int) {
	seen := make(map[string]struct{}, len(envelopes))
	for _, env := range envelopes {
		if !Accepts(env) {
			continue
		}
		payment, err := Normalize(env)
		if err != nil {
			malformed++
			if log != nil {
				log.Warn("skipping malformed payment envelope", zap.Error(err))
			}
			continue
		}
		if _, ok := seen[payment.Hash]; ok {
			continue
		}
		seen[payment.Hash] = struct{}{}
		payments = append(payments, payment)
	}
	return payments, malformed
}

type issuedAmountJSON struct {
	Issuer   string `json:"issuer"`
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

func decodeAmount(raw json.RawMessage) (Amount, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing amount")
	}
	switch raw[0] {
	case '"':
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode native amount: %v", err)
		}
		if value == "" {
			return nil, errors.New("empty native amount")
		}
		return NativeAmount{Value: value}, nil
	case '{':
		var issued issuedAmountJSON
		if err := json.Unmarshal(raw, &issued); err != nil {
			return nil, fmt.Errorf("decode issued amount: %v", err)
		}
		if issued.Issuer == "" || issued.Currency == "" || issued.Value == "" {
			return nil, errors.New("issued amount missing issuer, currency, or value")
		}
		return IssuedAmount(issued), nil
	default:
		return nil, fmt.Errorf("unexpected amount shape %q", string(raw))
	}
}
