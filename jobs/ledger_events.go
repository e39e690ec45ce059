package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration/events"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// LedgerEventRelay consumes ledger events from the queue and forwards them to
// real-time subscribers. Failures are retried by asynq.
type LedgerEventRelay struct {
	Fanout  events.Publisher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewLedgerEventRelay(fanout events.Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerEventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerEventRelay{Fanout: fanout, Logger: logger, Metrics: metrics}
}

// Handle processes one ledger event task.
func (r *LedgerEventRelay) Handle(ctx context.Context, t *asynq.Task) error {
	if r == nil || r.Fanout == nil {
		return errors.New("ledger events: relay not configured")
	}
	evt, err := events.Decode(t.Payload())
	if err != nil {
		r.Logger.Warn("drop malformed ledger event", slog.String("type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("ledger events: decode: %v: %w", err, asynq.SkipRetry)
	}
	if evt.Topic == "" {
		evt.Topic = t.Type()
	}
	if err := r.Fanout.Publish(ctx, evt); err != nil {
		return err
	}
	r.Metrics.IncRelayed(evt.Topic)
	r.Logger.Info("ledger event relayed",
		slog.String("topic", evt.Topic),
		slog.String("event_id", evt.ID),
		slog.Int64("journal_entry_id", evt.JournalEntryID),
	)
	return nil
}

// Handlers registers the relay for every ledger event type.
func (r *LedgerEventRelay) Handlers() []TaskHandler {
	out := make([]TaskHandler, 0, len(EventTaskTypes))
	for _, typ := range EventTaskTypes {
		out = append(out, TaskHandler{Type: typ, Handler: r.Handle})
	}
	return out
}
