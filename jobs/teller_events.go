package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Task types published by the teller service.
const (
	TaskTellerDepositReceived   = "teller:deposit_received"
	TaskTellerWithdrawalPaid    = "teller:withdrawal_paid"
	TaskTellerReversalRequested = "teller:reversal_requested"
)

// TellerHooks is the posting side of the teller integration.
type TellerHooks interface {
	HandleDepositReceived(ctx context.Context, evt integration.CashMovement) (posting.Result, error)
	HandleWithdrawalPaid(ctx context.Context, evt integration.CashMovement) (posting.Result, error)
	HandleReversalRequested(ctx context.Context, evt integration.ReversalRequested) (posting.Result, error)
}

// TellerEventConsumer posts teller transactions delivered through the queue.
// Rejected transactions are not retried; storage failures are.
type TellerEventConsumer struct {
	Hooks   TellerHooks
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewTellerEventConsumer(hooks TellerHooks, logger *slog.Logger, metrics *jobmetrics.Metrics) *TellerEventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TellerEventConsumer{Hooks: hooks, Logger: logger, Metrics: metrics}
}

// NewCashMovementTask wraps a teller cash movement for the queue.
func NewCashMovementTask(taskType string, evt integration.CashMovement) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// Handlers registers the consumer for every teller task type.
func (c *TellerEventConsumer) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskTellerDepositReceived, Handler: c.handleCash(TaskTellerDepositReceived, c.Hooks.HandleDepositReceived)},
		{Type: TaskTellerWithdrawalPaid, Handler: c.handleCash(TaskTellerWithdrawalPaid, c.Hooks.HandleWithdrawalPaid)},
		{Type: TaskTellerReversalRequested, Handler: c.handleReversal},
	}
}

func (c *TellerEventConsumer) handleCash(taskType string, post func(context.Context, integration.CashMovement) (posting.Result, error)) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := c.Metrics.Track(taskType)
		var evt integration.CashMovement
		if err := json.Unmarshal(t.Payload(), &evt); err != nil {
			c.Logger.Warn("drop malformed teller event", slog.String("type", taskType), slog.Any("error", err))
			return tracker.End(fmt.Errorf("%s: decode: %v: %w", taskType, err, asynq.SkipRetry))
		}
		result, err := post(ctx, evt)
		return tracker.End(c.finish(taskType, evt.Reference, result, err))
	}
}

func (c *TellerEventConsumer) handleReversal(ctx context.Context, t *asynq.Task) error {
	tracker := c.Metrics.Track(TaskTellerReversalRequested)
	var evt integration.ReversalRequested
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		c.Logger.Warn("drop malformed teller event", slog.String("type", TaskTellerReversalRequested), slog.Any("error", err))
		return tracker.End(fmt.Errorf("%s: decode: %v: %w", TaskTellerReversalRequested, err, asynq.SkipRetry))
	}
	result, err := c.Hooks.HandleReversalRequested(ctx, evt)
	return tracker.End(c.finish(TaskTellerReversalRequested, evt.Reference, result, err))
}

func (c *TellerEventConsumer) finish(taskType, reference string, result posting.Result, err error) error {
	logger := c.Logger.With(slog.String("type", taskType), slog.String("reference", reference))
	if err == nil {
		logger.Info("teller event posted",
			slog.Int64("journal_entry_id", result.JournalEntryID),
			slog.Bool("duplicate", result.Duplicate))
		return nil
	}
	switch shared.KindOf(err) {
	case shared.KindValidation, shared.KindBusiness:
		logger.Warn("teller event rejected", slog.String("code", shared.CodeOf(err)), slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case shared.KindIntegrity:
		logger.Error("teller event failed integrity check", slog.Any("error", err))
		return err
	default:
		logger.Error("teller event failed", slog.Any("error", err))
		return err
	}
}
