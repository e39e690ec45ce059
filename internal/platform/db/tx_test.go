package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_journal_entries_idempotency_key"})

	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "uq_journal_entries_idempotency_key"))
	require.False(t, IsUniqueViolation(err, "journal_entries_pkey"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestTxOptionsIsolation(t *testing.T) {
	require.Equal(t, pgx.RepeatableRead, RepeatableRead.IsoLevel)
	require.Equal(t, pgx.ReadCommitted, ReadCommitted.IsoLevel)
}
