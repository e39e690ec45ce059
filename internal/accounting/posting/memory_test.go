package posting

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// memoryStore is an in-memory journals.Repository. Transactions are
// serialised and staged until the callback returns nil.
type memoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	nextEntryID int64
	nextLineID  int64
	entries     map[int64]journals.JournalEntry
	lines       map[int64][]journals.JournalLine
	byKey       map[string]int64

	// dropLastLine simulates a store that loses a line on write.
	dropLastLine bool
	// beforeInsert runs inside the transaction before the header insert.
	beforeInsert func()
	// beforeLookup runs before each idempotency key lookup.
	beforeLookup func()
	inserts      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[int64]journals.JournalEntry),
		lines:   make(map[int64][]journals.JournalLine),
		byKey:   make(map[string]int64),
	}
}

func (m *memoryStore) FindByIdempotencyKey(_ context.Context, key string) (journals.JournalEntry, error) {
	if m.beforeLookup != nil {
		m.beforeLookup()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return m.entries[id], nil
}

func (m *memoryStore) GetWithLines(_ context.Context, id int64) (journals.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	entry.Lines = append([]journals.JournalLine(nil), m.lines[id]...)
	return entry, nil
}

func (m *memoryStore) FindImbalanced(_ context.Context, since time.Time) ([]journals.Imbalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journals.Imbalance
	for id, entry := range m.entries {
		if entry.CreatedAt.Before(since) {
			continue
		}
		var debit, credit decimal.Decimal
		for _, line := range m.lines[id] {
			debit = debit.Add(line.Debit)
			credit = credit.Add(line.Credit)
		}
		if !debit.Equal(credit) {
			out = append(out, journals.Imbalance{JournalEntryID: id, Debit: debit, Credit: credit})
		}
	}
	return out, nil
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx := &memoryTx{
		store:    m,
		entries:  make(map[int64]journals.JournalEntry),
		lines:    make(map[int64][]journals.JournalLine),
		reversed: make(map[int64]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range tx.entries {
		m.entries[id] = entry
		m.byKey[entry.IdempotencyKey] = id
	}
	for id, lines := range tx.lines {
		m.lines[id] = lines
	}
	for originalID, reversalID := range tx.reversed {
		entry := m.entries[originalID]
		entry.Reversed = true
		rid := reversalID
		entry.ReversalEntryID = &rid
		m.entries[originalID] = entry
	}
	return nil
}

func (m *memoryStore) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *memoryStore) entry(id int64) journals.JournalEntry {
	e, _ := m.GetWithLines(context.Background(), id)
	return e
}

type memoryTx struct {
	store    *memoryStore
	entries  map[int64]journals.JournalEntry
	lines    map[int64][]journals.JournalLine
	reversed map[int64]int64
}

func (t *memoryTx) InsertJournalEntry(_ context.Context, in journals.EntryInput) (journals.JournalEntry, error) {
	if t.store.beforeInsert != nil {
		t.store.beforeInsert()
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.inserts++
	if _, exists := t.store.byKey[in.IdempotencyKey]; exists {
		return journals.JournalEntry{}, shared.ErrDuplicateKey
	}
	for _, staged := range t.entries {
		if staged.IdempotencyKey == in.IdempotencyKey {
			return journals.JournalEntry{}, shared.ErrDuplicateKey
		}
	}
	t.store.nextEntryID++
	entry := journals.JournalEntry{
		ID:             t.store.nextEntryID,
		PostingType:    in.PostingType,
		PostingDate:    in.PostingDate,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
		Narration:      in.Narration,
		IdempotencyKey: in.IdempotencyKey,
		BranchID:       in.BranchID,
		Currency:       in.Currency,
		ReversalOf:     in.ReversalOf,
		PostedBy:       in.PostedBy,
		CreatedAt:      time.Now(),
	}
	t.entries[entry.ID] = entry
	return entry, nil
}

func (t *memoryTx) InsertJournalLines(_ context.Context, entryID int64, lines []journals.LineInput) error {
	if t.store.dropLastLine && len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, line := range journals.ToJournalLines(entryID, lines, time.Now()) {
		t.store.nextLineID++
		line.ID = t.store.nextLineID
		t.lines[entryID] = append(t.lines[entryID], line)
	}
	return nil
}

func (t *memoryTx) SumLines(_ context.Context, entryID int64) (decimal.Decimal, decimal.Decimal, int, error) {
	var debit, credit decimal.Decimal
	for _, line := range t.lines[entryID] {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit, len(t.lines[entryID]), nil
}

func (t *memoryTx) GetJournalWithLines(_ context.Context, entryID int64) (journals.JournalEntry, []journals.JournalLine, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	entry, ok := t.store.entries[entryID]
	if !ok {
		return journals.JournalEntry{}, nil, shared.ErrJournalNotFound
	}
	return entry, append([]journals.JournalLine(nil), t.store.lines[entryID]...), nil
}

func (t *memoryTx) MarkReversed(_ context.Context, originalID, reversalID int64) (bool, error) {
	t.store.mu.RLock()
	entry, ok := t.store.entries[originalID]
	t.store.mu.RUnlock()
	if !ok || entry.Reversed {
		return false, nil
	}
	if _, staged := t.reversed[originalID]; staged {
		return false, nil
	}
	t.reversed[originalID] = reversalID
	return true, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []error
}

func (a *recordingAlerter) Alert(_ context.Context, err error, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, err)
}

type countingRecorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	integrity int
}

func (r *countingRecorder) ObservePosting(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) IncIntegrityFailure(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrity++
}
