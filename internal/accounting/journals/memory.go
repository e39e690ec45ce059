package journals

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// MemoryRepository keeps journals in process memory. Transactions are
// serialised and their writes become visible only when the callback succeeds.
type MemoryRepository struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	nextEntryID int64
	nextLineID  int64
	entries     map[int64]JournalEntry
	lines       map[int64][]JournalLine
	byKey       map[string]int64
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[int64]JournalEntry),
		lines:   make(map[int64][]JournalLine),
		byKey:   make(map[string]int64),
		now:     time.Now,
	}
}

func (m *MemoryRepository) FindByIdempotencyKey(_ context.Context, key string) (JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return m.entries[id], nil
}

func (m *MemoryRepository) GetWithLines(_ context.Context, id int64) (JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	entry.Lines = append([]JournalLine(nil), m.lines[id]...)
	return entry, nil
}

func (m *MemoryRepository) FindImbalanced(_ context.Context, since time.Time) ([]Imbalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Imbalance
	for id, entry := range m.entries {
		if entry.CreatedAt.Before(since) {
			continue
		}
		debit, credit := sumLines(m.lines[id])
		if !debit.Equal(credit) || len(m.lines[id]) < 2 {
			out = append(out, Imbalance{JournalEntryID: id, Debit: debit, Credit: credit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JournalEntryID < out[j].JournalEntryID })
	return out, nil
}

// Entries returns every committed entry ordered by id.
func (m *MemoryRepository) Entries() []JournalEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]JournalEntry, 0, len(m.entries))
	for id, entry := range m.entries {
		entry.Lines = append([]JournalLine(nil), m.lines[id]...)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx := &memoryTx{
		repo:     m,
		entries:  make(map[int64]JournalEntry),
		lines:    make(map[int64][]JournalLine),
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

type memoryTx struct {
	repo     *MemoryRepository
	entries  map[int64]JournalEntry
	lines    map[int64][]JournalLine
	reversed map[int64]int64
}

func (t *memoryTx) InsertJournalEntry(_ context.Context, in EntryInput) (JournalEntry, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, exists := t.repo.byKey[in.IdempotencyKey]; exists {
		return JournalEntry{}, shared.ErrDuplicateKey
	}
	for _, staged := range t.entries {
		if staged.IdempotencyKey == in.IdempotencyKey {
			return JournalEntry{}, shared.ErrDuplicateKey
		}
	}
	t.repo.nextEntryID++
	entry := JournalEntry{
		ID:             t.repo.nextEntryID,
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
		CreatedAt:      t.repo.now(),
	}
	t.entries[entry.ID] = entry
	return entry, nil
}

func (t *memoryTx) InsertJournalLines(_ context.Context, entryID int64, lines []LineInput) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, line := range ToJournalLines(entryID, lines, t.repo.now()) {
		t.repo.nextLineID++
		line.ID = t.repo.nextLineID
		t.lines[entryID] = append(t.lines[entryID], line)
	}
	return nil
}

func (t *memoryTx) SumLines(_ context.Context, entryID int64) (decimal.Decimal, decimal.Decimal, int, error) {
	debit, credit := sumLines(t.lines[entryID])
	return debit, credit, len(t.lines[entryID]), nil
}

func (t *memoryTx) GetJournalWithLines(_ context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	entry, ok := t.repo.entries[entryID]
	if !ok {
		return JournalEntry{}, nil, shared.ErrJournalNotFound
	}
	return entry, append([]JournalLine(nil), t.repo.lines[entryID]...), nil
}

func (t *memoryTx) MarkReversed(_ context.Context, originalID, reversalID int64) (bool, error) {
	t.repo.mu.RLock()
	entry, ok := t.repo.entries[originalID]
	t.repo.mu.RUnlock()
	if !ok || entry.Reversed {
		return false, nil
	}
	if _, staged := t.reversed[originalID]; staged {
		return false, nil
	}
	t.reversed[originalID] = reversalID
	return true, nil
}

func sumLines(lines []JournalLine) (debit, credit decimal.Decimal) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
