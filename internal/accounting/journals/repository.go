package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// IdempotencyConstraint is the unique index guarding journal_entries.idempotency_key.
const IdempotencyConstraint = "uq_journal_entries_idempotency_key"

// Repository encapsulates DB operations for journals.
type Repository interface {
	FindByIdempotencyKey(ctx context.Context, key string) (JournalEntry, error)
	GetWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	FindImbalanced(ctx context.Context, since time.Time) ([]Imbalance, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// InsertJournalEntry returns shared.ErrDuplicateKey when the idempotency key exists.
	InsertJournalEntry(ctx context.Context, in EntryInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) error
	// SumLines re-reads the persisted lines of an entry.
	SumLines(ctx context.Context, entryID int64) (debit, credit decimal.Decimal, count int, err error)
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	// MarkReversed flips reversed=false to true and links the reversal. It reports
	// false when the original was already reversed.
	MarkReversed(ctx context.Context, originalID, reversalID int64) (bool, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type repository struct {
	db        *pgxpool.Pool
	txOptions pgx.TxOptions
}

// NewRepository runs ledger transactions at ReadCommitted so FOR UPDATE
// re-reads the row committed by the previous lock holder.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, txOptions: db.ReadCommitted}
}

const entryColumns = `id, posting_type, posting_date, source_type, source_id, narration, idempotency_key, branch_id, currency, reversed, reversal_entry_id, reversal_of, posted_by, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.PostingType, &e.PostingDate, &e.SourceType, &e.SourceID, &e.Narration, &e.IdempotencyKey, &e.BranchID, &e.Currency, &e.Reversed, &e.ReversalEntryID, &e.ReversalOf, &e.PostedBy, &e.CreatedAt)
	return e, err
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE idempotency_key=$1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, fmt.Errorf("journals: find by key: %w", err)
	}
	return entry, nil
}

func (r *repository) GetWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, lines, err := getJournalWithLines(ctx, r.db, entryID, false)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) FindImbalanced(ctx context.Context, since time.Time) ([]Imbalance, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entries e LEFT JOIN journal_entry_lines l ON l.journal_entry_id = e.id
WHERE e.created_at >= $1
GROUP BY e.id
HAVING COALESCE(SUM(l.debit),0) <> COALESCE(SUM(l.credit),0) OR COUNT(l.id) < 2
ORDER BY e.id`, since)
	if err != nil {
		return nil, fmt.Errorf("journals: scan imbalanced: %w", err)
	}
	defer rows.Close()
	var out []Imbalance
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.JournalEntryID, &im.Debit, &im.Credit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.db, r.txOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (posting_type, posting_date, source_type, source_id, narration, idempotency_key, branch_id, currency, reversal_of, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		in.PostingType, in.PostingDate, in.SourceType, in.SourceID, in.Narration, in.IdempotencyKey, in.BranchID, in.Currency, in.ReversalOf, in.PostedBy)
	entry := JournalEntry{
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
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if db.IsUniqueViolation(err, IdempotencyConstraint) {
			return JournalEntry{}, shared.ErrDuplicateKey
		}
		return JournalEntry{}, fmt.Errorf("journals: insert entry: %w", err)
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_entry_lines (journal_entry_id, gl_account_code, debit, credit, currency, narration, branch_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entryID, line.GLAccountCode, line.Debit, line.Credit, line.Currency, line.Narration, line.BranchID)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journals: insert lines for %d: %w", entryID, err)
	}
	return nil
}

func (r *txRepository) SumLines(ctx context.Context, entryID int64) (decimal.Decimal, decimal.Decimal, int, error) {
	var debit, credit decimal.Decimal
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0), COUNT(*) FROM journal_entry_lines WHERE journal_entry_id=$1`, entryID).
		Scan(&debit, &credit, &count)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, fmt.Errorf("journals: sum lines for %d: %w", entryID, err)
	}
	return debit, credit, count, nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	return getJournalWithLines(ctx, r.tx, entryID, true)
}

func (r *txRepository) MarkReversed(ctx context.Context, originalID, reversalID int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversed=true, reversal_entry_id=$2 WHERE id=$1 AND reversed=false`, originalID, reversalID)
	if err != nil {
		return false, fmt.Errorf("journals: mark %d reversed: %w", originalID, err)
	}
	return cmd.RowsAffected() == 1, nil
}

func getJournalWithLines(ctx context.Context, q querier, entryID int64, forUpdate bool) (JournalEntry, []JournalLine, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRow(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, shared.ErrJournalNotFound
		}
		return JournalEntry{}, nil, fmt.Errorf("journals: get %d: %w", entryID, err)
	}
	rows, err := q.Query(ctx, `SELECT id, journal_entry_id, gl_account_code, debit, credit, currency, narration, branch_id, created_at
FROM journal_entry_lines WHERE journal_entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalEntryID, &line.GLAccountCode, &line.Debit, &line.Credit, &line.Currency, &line.Narration, &line.BranchID, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}
