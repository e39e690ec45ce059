package accounts

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart of accounts node as seen by the posting engine.
type Account struct {
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	Type          AccountType `json:"type"`
	Currency      string      `json:"currency"`
	ParentCode    *string     `json:"parent_code,omitempty"`
	IsControl     bool        `json:"is_control"`
	AllowsPosting bool        `json:"allows_posting"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// CheckPostable rejects accounts that must not receive lines in the given currency.
// An empty account currency accepts any currency.
func (a Account) CheckPostable(currency string) error {
	if a.IsControl {
		return shared.ErrControlAccount.Wrap(fmt.Errorf("account %s", a.Code))
	}
	if !a.AllowsPosting || !a.IsActive {
		return shared.ErrAccountNotPostable.Wrap(fmt.Errorf("account %s", a.Code))
	}
	if a.Currency != "" && currency != "" && a.Currency != currency {
		return shared.ErrCurrencyMismatch.Wrap(fmt.Errorf("account %s is %s, line is %s", a.Code, a.Currency, currency))
	}
	return nil
}
