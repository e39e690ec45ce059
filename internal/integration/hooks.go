package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration/events"
)

// Ledger exposes posting operations required by integrations.
type Ledger interface {
	PostTransaction(ctx context.Context, req posting.Request) (posting.Result, error)
	ReverseTransaction(ctx context.Context, req posting.ReversalRequest) (posting.Result, error)
	GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error)
}

// EventDispatcher publishes domain events without blocking the caller.
type EventDispatcher interface {
	Dispatch(ctx context.Context, evt events.Event)
}

// Hooks turns teller-side domain events into ledger postings and announces
// committed postings to the message bus.
type Hooks struct {
	ledger Ledger
	events EventDispatcher
	logger *slog.Logger
	now    func() time.Time
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, dispatcher EventDispatcher, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, events: dispatcher, logger: logger, now: time.Now}
}

// HandleDepositReceived posts cash received over the counter.
func (h *Hooks) HandleDepositReceived(ctx context.Context, evt CashMovement) (posting.Result, error) {
	if h == nil || h.ledger == nil {
		return posting.Result{}, errors.New("integration: ledger not configured")
	}
	if err := evt.validate(); err != nil {
		return posting.Result{}, err
	}
	req := evt.toRequest("deposit", posting.SeedEntry{GLAccountCode: evt.TillAccount, Debit: evt.Amount})
	result, err := h.post(ctx, req, evt.Amount)
	if err != nil {
		return result, fmt.Errorf("integration: post deposit %s: %w", req.SourceID, err)
	}
	return result, nil
}

// HandleWithdrawalPaid posts cash paid out over the counter.
func (h *Hooks) HandleWithdrawalPaid(ctx context.Context, evt CashMovement) (posting.Result, error) {
	if h == nil || h.ledger == nil {
		return posting.Result{}, errors.New("integration: ledger not configured")
	}
	if err := evt.validate(); err != nil {
		return posting.Result{}, err
	}
	req := evt.toRequest("withdrawal", posting.SeedEntry{GLAccountCode: evt.TillAccount, Credit: evt.Amount})
	result, err := h.post(ctx, req, evt.Amount)
	if err != nil {
		return result, fmt.Errorf("integration: post withdrawal %s: %w", req.SourceID, err)
	}
	return result, nil
}

// HandleReversalRequested compensates a committed entry.
func (h *Hooks) HandleReversalRequested(ctx context.Context, evt ReversalRequested) (posting.Result, error) {
	if h == nil || h.ledger == nil {
		return posting.Result{}, errors.New("integration: ledger not configured")
	}
	if evt.Reference == "" || evt.JournalEntryID <= 0 {
		return posting.Result{}, shared.Validation("journal_entry_id", shared.CodeInvalidRequest, "reversal reference and entry id required")
	}
	result, err := h.ReverseTransaction(ctx, posting.ReversalRequest{
		IdempotencyKey:  idempotencyKey("REVERSAL", evt.Reference),
		OriginalEntryID: evt.JournalEntryID,
		Narration:       evt.Reason,
		Actor:           posting.Actor{UserID: evt.ActorID, BranchID: evt.BranchID},
	})
	if err != nil {
		return result, fmt.Errorf("integration: reverse entry %d: %w", evt.JournalEntryID, err)
	}
	return result, nil
}

// PostTransaction posts req and announces the entry when it was committed by this call.
func (h *Hooks) PostTransaction(ctx context.Context, req posting.Request) (posting.Result, error) {
	if h == nil || h.ledger == nil {
		return posting.Result{}, errors.New("integration: ledger not configured")
	}
	return h.post(ctx, req, seedTotal(req.Entries))
}

// ReverseTransaction reverses an entry and announces the compensating entry.
func (h *Hooks) ReverseTransaction(ctx context.Context, req posting.ReversalRequest) (posting.Result, error) {
	if h == nil || h.ledger == nil {
		return posting.Result{}, errors.New("integration: ledger not configured")
	}
	result, err := h.ledger.ReverseTransaction(ctx, req)
	if err != nil || result.Duplicate {
		return result, err
	}
	out := events.NewEvent(events.TopicTransactionReversed, req.IdempotencyKey, h.now())
	out.JournalEntryID = result.JournalEntryID
	out.Actor = req.Actor.UserID
	original := req.OriginalEntryID
	out.ReversalOf = &original
	if entry, err := h.ledger.GetEntry(ctx, result.JournalEntryID); err == nil {
		out.PostingType = entry.PostingType
		out.SourceType = entry.SourceType
		out.SourceID = entry.SourceID
		out.BranchID = entry.BranchID
		out.Currency = entry.Currency
		out.Amount = debitTotal(entry.Lines)
	} else {
		h.logger.Warn("load reversal entry for event", slog.Int64("journal_entry_id", result.JournalEntryID), slog.Any("error", err))
	}
	h.publish(ctx, out)
	return result, nil
}

// GetEntry reads a committed entry with its lines.
func (h *Hooks) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	if h == nil || h.ledger == nil {
		return journals.JournalEntry{}, errors.New("integration: ledger not configured")
	}
	return h.ledger.GetEntry(ctx, id)
}

func (h *Hooks) post(ctx context.Context, req posting.Request, amount decimal.Decimal) (posting.Result, error) {
	result, err := h.ledger.PostTransaction(ctx, req)
	if err != nil {
		return result, err
	}
	if result.Duplicate {
		h.logger.Debug("posting already committed", slog.String("idempotency_key", req.IdempotencyKey), slog.Int64("journal_entry_id", result.JournalEntryID))
		return result, nil
	}
	evt := events.NewEvent(events.TopicTransactionPosted, req.IdempotencyKey, h.now())
	evt.JournalEntryID = result.JournalEntryID
	evt.PostingType = req.PostingType
	evt.SourceType = req.SourceType
	evt.SourceID = req.SourceID
	evt.BranchID = req.BranchID
	evt.Currency = req.Currency
	evt.Amount = amount
	evt.Actor = req.Actor.UserID
	h.publish(ctx, evt)
	return result, nil
}

func (h *Hooks) publish(ctx context.Context, evt events.Event) {
	if h.events == nil {
		return
	}
	h.events.Dispatch(ctx, evt)
}

func debitTotal(lines []journals.JournalLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Debit)
	}
	return total
}

func seedTotal(entries []posting.SeedEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Debit).Add(e.Credit)
	}
	return total
}
