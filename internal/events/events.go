// Package events announces committed ledger changes to interested parties.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TransactionCreated         = "transaction.created"
	TransactionEdited          = "transaction.edited"
	TransactionMetadataUpdated = "transaction.metadata_updated"
	TransactionDeleted         = "transaction.deleted"
	TransactionsResequenced    = "transaction.resequenced"
	AccountCreated             = "account.created"
	AccountUpdated             = "account.updated"
)

// Event describes one committed change. Events are published after commit, so
// a consumer never sees a change that was rolled back.
type Event struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	OccurredAt        time.Time `json:"occurred_at"`
	TransactionID     int64     `json:"transaction_id,omitempty"`
	TransactionNumber int64     `json:"transaction_number,omitempty"`
	AccountID         int64     `json:"account_id,omitempty"`
	Count             int       `json:"count,omitempty"`
	Details           string    `json:"details,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ string) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: time.Now().UTC()}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers each event to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
