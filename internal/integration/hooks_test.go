package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration/events"
)

type stubLedger struct {
	mu        sync.Mutex
	committed map[string]int64
	requests  []posting.Request
	reversals []posting.ReversalRequest
	postErr   error
	entries   map[int64]journals.JournalEntry
}

func newStubLedger() *stubLedger {
	return &stubLedger{committed: make(map[string]int64), entries: make(map[int64]journals.JournalEntry)}
}

func (s *stubLedger) PostTransaction(_ context.Context, req posting.Request) (posting.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.postErr != nil {
		return posting.Result{ErrorCode: shared.CodeOf(s.postErr)}, s.postErr
	}
	if id, ok := s.committed[req.IdempotencyKey]; ok {
		return posting.Result{Success: true, JournalEntryID: id, Duplicate: true}, nil
	}
	id := int64(len(s.committed) + 1)
	s.committed[req.IdempotencyKey] = id
	return posting.Result{Success: true, JournalEntryID: id}, nil
}

func (s *stubLedger) ReverseTransaction(_ context.Context, req posting.ReversalRequest) (posting.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reversals = append(s.reversals, req)
	id := int64(len(s.committed) + 1)
	s.committed[req.IdempotencyKey] = id
	return posting.Result{Success: true, JournalEntryID: id}, nil
}

func (s *stubLedger) GetEntry(_ context.Context, id int64) (journals.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, evt events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func movement() CashMovement {
	return CashMovement{
		Reference:     "TLR-0001",
		AccountNumber: "ACC-42",
		BranchID:      2,
		Amount:        decimal.NewFromInt(150000),
		Currency:      "ugx",
		OccurredAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		TellerID:      "teller-7",
	}
}

func TestHandleDepositReceivedPostsAndPublishes(t *testing.T) {
	ledger := newStubLedger()
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(ledger, dispatcher, quietLogger())

	res, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, ledger.requests, 1)
	req := ledger.requests[0]
	require.Equal(t, "deposit", req.PostingType)
	require.Equal(t, "UGX", req.Currency)
	require.Equal(t, "TLR-0001", req.SourceID)
	require.Equal(t, int64(2), req.BranchID)
	require.True(t, req.Entries[0].Debit.Equal(decimal.NewFromInt(150000)))
	require.True(t, req.Entries[0].Credit.IsZero())
	require.Equal(t, posting.Actor{UserID: "teller-7", BranchID: 2}, req.Actor)
	require.NotEmpty(t, req.IdempotencyKey)

	require.Len(t, dispatcher.events, 1)
	evt := dispatcher.events[0]
	require.Equal(t, events.TopicTransactionPosted, evt.Topic)
	require.Equal(t, res.JournalEntryID, evt.JournalEntryID)
	require.True(t, evt.Amount.Equal(decimal.NewFromInt(150000)))
}

func TestRedeliveredDepositDoesNotRepublish(t *testing.T) {
	ledger := newStubLedger()
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(ledger, dispatcher, quietLogger())

	first, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.NoError(t, err)
	second, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.NoError(t, err)

	require.Equal(t, first.JournalEntryID, second.JournalEntryID)
	require.True(t, second.Duplicate)
	require.Equal(t, ledger.requests[0].IdempotencyKey, ledger.requests[1].IdempotencyKey)
	require.Len(t, dispatcher.events, 1)
}

func TestHandleWithdrawalPaidUsesCreditSeed(t *testing.T) {
	ledger := newStubLedger()
	hooks := NewHooks(ledger, &recordingDispatcher{}, quietLogger())
	evt := movement()
	evt.Amount = decimal.NewFromInt(50000)
	evt.TillAccount = "TILL_01"

	_, err := hooks.HandleWithdrawalPaid(context.Background(), evt)
	require.NoError(t, err)
	req := ledger.requests[0]
	require.Equal(t, "withdrawal", req.PostingType)
	require.True(t, req.Entries[0].Credit.Equal(decimal.NewFromInt(50000)))
	require.Equal(t, "TILL_01", req.Entries[0].GLAccountCode)

	deposit, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.NoError(t, err)
	require.NotEqual(t, ledger.requests[0].IdempotencyKey, ledger.requests[1].IdempotencyKey)
	require.Equal(t, int64(2), deposit.JournalEntryID)
}

func TestPostingFailureIsNotPublished(t *testing.T) {
	ledger := newStubLedger()
	ledger.postErr = shared.ErrControlAccount
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(ledger, dispatcher, quietLogger())

	_, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.ErrorIs(t, err, shared.ErrControlAccount)
	require.Empty(t, dispatcher.events)
}

func TestInvalidMovementRejectedBeforePosting(t *testing.T) {
	ledger := newStubLedger()
	hooks := NewHooks(ledger, &recordingDispatcher{}, quietLogger())
	evt := movement()
	evt.Amount = decimal.Zero

	_, err := hooks.HandleDepositReceived(context.Background(), evt)
	require.Error(t, err)
	require.Empty(t, ledger.requests)
}

func TestPublishFailureKeepsCommittedPosting(t *testing.T) {
	ledger := newStubLedger()
	var attempts, failures atomic.Int32
	pub := events.PublisherFunc(func(context.Context, events.Event) error {
		attempts.Add(1)
		return errors.New("broker unavailable")
	})
	dispatcher := events.NewDispatcher(pub, quietLogger(),
		events.WithRetries(1, time.Second),
		events.WithFailureHook(func(string) { failures.Add(1) }))
	hooks := NewHooks(ledger, dispatcher, quietLogger())

	res, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.NoError(t, err)
	require.True(t, res.Success)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, dispatcher.Wait(ctx))
	require.Equal(t, int32(2), attempts.Load())
	require.Equal(t, int32(1), failures.Load())
	require.Len(t, ledger.committed, 1)
}

func TestHandleReversalRequestedPublishesReversal(t *testing.T) {
	ledger := newStubLedger()
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(ledger, dispatcher, quietLogger())

	dep, err := hooks.HandleDepositReceived(context.Background(), movement())
	require.NoError(t, err)
	ledger.entries[2] = journals.JournalEntry{
		ID: 2, PostingType: "deposit", BranchID: 2, Currency: "UGX",
		Lines: []journals.JournalLine{
			{GLAccountCode: "CASH", Credit: decimal.NewFromInt(150000)},
			{GLAccountCode: "CUSTOMER_DEPOSITS", Debit: decimal.NewFromInt(150000)},
		},
	}

	res, err := hooks.HandleReversalRequested(context.Background(), ReversalRequested{
		Reference: "REV-1", JournalEntryID: dep.JournalEntryID, Reason: "teller error", ActorID: "supervisor",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.JournalEntryID)
	require.Equal(t, dep.JournalEntryID, ledger.reversals[0].OriginalEntryID)

	require.Len(t, dispatcher.events, 2)
	evt := dispatcher.events[1]
	require.Equal(t, events.TopicTransactionReversed, evt.Topic)
	require.NotNil(t, evt.ReversalOf)
	require.Equal(t, dep.JournalEntryID, *evt.ReversalOf)
	require.True(t, evt.Amount.Equal(decimal.NewFromInt(150000)))
}

func TestPostTransactionPublishesSeedTotal(t *testing.T) {
	ledger := newStubLedger()
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(ledger, dispatcher, quietLogger())
	req := posting.Request{
		IdempotencyKey: "api-1",
		PostingType:    "deposit",
		BranchID:       3,
		Currency:       "UGX",
		Entries: []posting.SeedEntry{
			{Debit: decimal.NewFromInt(700)},
			{Debit: decimal.NewFromInt(300)},
		},
		Actor: posting.Actor{UserID: "api"},
	}

	res, err := hooks.PostTransaction(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, dispatcher.events, 1)
	require.Equal(t, res.JournalEntryID, dispatcher.events[0].JournalEntryID)
	require.True(t, dispatcher.events[0].Amount.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, "api", dispatcher.events[0].Actor)

	_, err = hooks.PostTransaction(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, dispatcher.events, 1)

	ledger.postErr = shared.ErrControlAccount
	req.IdempotencyKey = "api-2"
	_, err = hooks.PostTransaction(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrControlAccount)
	require.Equal(t, shared.KindBusiness, shared.KindOf(err))
	require.Len(t, dispatcher.events, 1)
}

func TestInvalidReversalRequestIsValidationError(t *testing.T) {
	hooks := NewHooks(newStubLedger(), &recordingDispatcher{}, quietLogger())
	_, err := hooks.HandleReversalRequested(context.Background(), ReversalRequested{Reference: "REV-1"})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
