// Package events publishes ledger domain events after a posting commits.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics published by the ledger.
const (
	TopicTransactionPosted   = "ledger.transaction.posted"
	TopicTransactionReversed = "ledger.transaction.reversed"
)

// Event describes a committed journal entry for downstream consumers.
type Event struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	JournalEntryID int64           `json:"journal_entry_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	PostingType    string          `json:"posting_type"`
	SourceType     string          `json:"source_type,omitempty"`
	SourceID       string          `json:"source_id,omitempty"`
	BranchID       int64           `json:"branch_id"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	ReversalOf     *int64          `json:"reversal_of,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewEvent stamps an event with a deterministic id derived from topic and key,
// so redelivered events can be deduplicated by consumers.
func NewEvent(topic, idempotencyKey string, occurredAt time.Time) Event {
	return Event{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(topic+":"+idempotencyKey)).String(),
		Topic:          topic,
		IdempotencyKey: idempotencyKey,
		OccurredAt:     occurredAt.UTC(),
	}
}

// Encode marshals the event payload.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an encoded event.
func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher delivers an event to a message sink.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Nop discards events.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
