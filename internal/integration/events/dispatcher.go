package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Dispatcher publishes events in the background. Publication failures are
// logged and reported, never returned to the caller.
type Dispatcher struct {
	publisher  Publisher
	logger     *slog.Logger
	maxRetries uint64
	maxElapsed time.Duration
	onFailure  func(topic string)

	wg sync.WaitGroup
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetries bounds the retry attempts and total time spent on one event.
func WithRetries(maxRetries uint64, maxElapsed time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.maxElapsed = maxElapsed
	}
}

// WithFailureHook is called once per event that could not be delivered.
func WithFailureHook(fn func(topic string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onFailure = fn
	}
}

func NewDispatcher(publisher Publisher, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if publisher == nil {
		publisher = Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{publisher: publisher, logger: logger, maxRetries: 5, maxElapsed: time.Minute}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch hands evt to a background goroutine and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.publish(ctx, evt); err != nil {
			d.logger.Error("publish ledger event",
				slog.String("topic", evt.Topic),
				slog.String("event_id", evt.ID),
				slog.Int64("journal_entry_id", evt.JournalEntryID),
				slog.Any("error", err))
			if d.onFailure != nil {
				d.onFailure(evt.Topic)
			}
		}
	}()
}

func (d *Dispatcher) publish(ctx context.Context, evt Event) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = d.maxElapsed
	return backoff.Retry(func() error {
		return d.publisher.Publish(ctx, evt)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, d.maxRetries), ctx))
}

// Wait blocks until in-flight events are delivered or given up, or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
