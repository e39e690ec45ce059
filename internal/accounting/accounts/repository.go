package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type Repository interface {
	FindByCode(ctx context.Context, code string) (Account, error)
	List(ctx context.Context) ([]Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `code, name, type, currency, parent_code, is_control, allows_posting, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.Code, &a.Name, &a.Type, &a.Currency, &a.ParentCode, &a.IsControl, &a.AllowsPosting, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	// currency is CHAR(3); a multi-currency account reads back as blanks.
	a.Currency = strings.TrimSpace(a.Currency)
	return a, err
}

func (r *repository) FindByCode(ctx context.Context, code string) (Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Account{}, shared.ErrAccountNotFound
	}
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound.Wrap(fmt.Errorf("code %s", code))
		}
		return Account{}, fmt.Errorf("accounts: find %s: %w", code, err)
	}
	return a, nil
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
