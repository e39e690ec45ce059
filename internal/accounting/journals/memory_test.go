package journals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func depositInput(key string) EntryInput {
	return EntryInput{IdempotencyKey: key, PostingType: "deposit", BranchID: 1, Currency: "UGX"}
}

func pair(amount int64) []LineInput {
	return []LineInput{
		{GLAccountCode: "CASH", Debit: decimal.NewFromInt(amount), Currency: "UGX"},
		{GLAccountCode: "CUSTOMER_DEPOSITS", Credit: decimal.NewFromInt(amount), Currency: "UGX"},
	}
}

func TestMemoryRepositoryCommitsOnSuccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var id int64
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.InsertJournalEntry(ctx, depositInput("k1"))
		if err != nil {
			return err
		}
		id = entry.ID
		if err := tx.InsertJournalLines(ctx, entry.ID, pair(100)); err != nil {
			return err
		}
		debit, credit, count, err := tx.SumLines(ctx, entry.ID)
		require.NoError(t, err)
		require.Equal(t, 2, count)
		require.True(t, debit.Equal(credit))
		return nil
	})
	require.NoError(t, err)

	got, err := repo.GetWithLines(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	byKey, err := repo.FindByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, id, byKey.ID)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertJournalEntry(ctx, depositInput("k1"))
		return err
	})
	require.ErrorIs(t, err, shared.ErrDuplicateKey)
}

func TestMemoryRepositoryRollsBackOnError(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.InsertJournalEntry(ctx, depositInput("k1"))
		require.NoError(t, err)
		require.NoError(t, tx.InsertJournalLines(ctx, entry.ID, pair(100)))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, repo.Entries())
	_, err = repo.FindByIdempotencyKey(ctx, "k1")
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestMemoryRepositoryMarkReversedOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.InsertJournalEntry(ctx, depositInput("k1"))
		if err != nil {
			return err
		}
		return tx.InsertJournalLines(ctx, entry.ID, pair(100))
	}))

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkReversed(ctx, 1, 2)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = tx.MarkReversed(ctx, 1, 3)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
	entry, err := repo.GetWithLines(ctx, 1)
	require.NoError(t, err)
	require.True(t, entry.Reversed)
	require.Equal(t, int64(2), *entry.ReversalEntryID)

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkReversed(ctx, 1, 4)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestMemoryRepositoryFindImbalanced(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		good, err := tx.InsertJournalEntry(ctx, depositInput("good"))
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, good.ID, pair(100)); err != nil {
			return err
		}
		bad, err := tx.InsertJournalEntry(ctx, depositInput("bad"))
		if err != nil {
			return err
		}
		return tx.InsertJournalLines(ctx, bad.ID, pair(100)[:1])
	}))

	found, err := repo.FindImbalanced(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, int64(2), found[0].JournalEntryID)
	require.True(t, found[0].Debit.Equal(decimal.NewFromInt(100)))

	found, err = repo.FindImbalanced(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, found)
}
