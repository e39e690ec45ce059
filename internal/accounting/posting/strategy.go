package posting

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Strategy maps one transaction type onto balanced journal lines.
// Implementations must be stateless.
type Strategy interface {
	PostingType() string
	Validate(req Request) error
	BuildLines(ctx context.Context, req Request, chart Chart) ([]journals.LineInput, error)
}

// Default GL codes used when no mapping row exists for a leg.
const (
	CodeCash             = "CASH"
	CodeCustomerDeposits = "CUSTOMER_DEPOSITS"
)

// Chart resolves the GL code of a posting leg.
type Chart struct {
	Accounts accounts.Resolver
	Mappings mappings.Repository
}

// Code returns the mapped GL code for the leg, or fallback when the leg is not
// mapped. The returned code is confirmed against the chart of accounts.
func (c Chart) Code(ctx context.Context, postingType string, leg mappings.Leg, fallback string) (string, error) {
	code := fallback
	if c.Mappings != nil {
		mapping, err := c.Mappings.Get(ctx, postingType, leg)
		switch {
		case err == nil:
			code = mapping.GLCode
		case errors.Is(err, shared.ErrMappingNotFound):
		default:
			return "", err
		}
	}
	if code == "" {
		return "", shared.ErrMappingNotFound.Wrap(fmt.Errorf("%s/%s", postingType, leg))
	}
	if c.Accounts != nil {
		if _, err := c.Accounts.Resolve(ctx, code); err != nil {
			return "", err
		}
	}
	return code, nil
}

// cashStrategy moves a seed amount between the cash account and the customer
// deposits liability. Deposits debit cash; withdrawals credit it.
type cashStrategy struct {
	postingType string
	cashDebit   bool
}

// NewDepositStrategy posts a positive seed debit as cash in, customer deposits up.
func NewDepositStrategy() Strategy {
	return cashStrategy{postingType: "deposit", cashDebit: true}
}

// NewWithdrawalStrategy posts a positive seed credit as cash out, customer deposits down.
func NewWithdrawalStrategy() Strategy {
	return cashStrategy{postingType: "withdrawal"}
}

func (s cashStrategy) PostingType() string { return s.postingType }

func (s cashStrategy) Validate(req Request) error {
	if req.Currency == "" {
		return shared.Validation("currency", shared.CodeInvalidRequest, "currency required")
	}
	if _, err := currency.ParseISO(req.Currency); err != nil {
		return shared.Validation("currency", shared.CodeInvalidRequest, "unknown ISO 4217 currency "+req.Currency)
	}
	if req.BranchID <= 0 {
		return shared.Validation("branchId", shared.CodeInvalidRequest, "branch required")
	}
	if len(req.Entries) == 0 {
		return shared.Validation("entries", shared.CodeInvalidRequest, "at least one seed entry required")
	}
	for idx, seed := range req.Entries {
		field := fmt.Sprintf("entries[%d]", idx)
		amount, other := seed.Credit, seed.Debit
		side := "credit"
		if s.cashDebit {
			amount, other = seed.Debit, seed.Credit
			side = "debit"
		}
		if !amount.IsPositive() {
			return shared.Validation(field, shared.CodeInvalidRequest, s.postingType+" requires a positive "+side+" amount")
		}
		if !other.IsZero() {
			return shared.Validation(field, shared.CodeInvalidRequest, s.postingType+" accepts only a "+side+" amount")
		}
		if !journals.FitsScale(amount) {
			return shared.Validation(field, shared.CodeAmountPrecision, fmt.Sprintf("%s amount %s has more than %d decimal places", side, amount, journals.AmountScale))
		}
	}
	return nil
}

func (s cashStrategy) BuildLines(ctx context.Context, req Request, chart Chart) ([]journals.LineInput, error) {
	cashLeg, depositsLeg := mappings.LegDebit, mappings.LegCredit
	if !s.cashDebit {
		cashLeg, depositsLeg = mappings.LegCredit, mappings.LegDebit
	}
	cashCode, err := chart.Code(ctx, s.postingType, cashLeg, CodeCash)
	if err != nil {
		return nil, err
	}
	depositsCode, err := chart.Code(ctx, s.postingType, depositsLeg, CodeCustomerDeposits)
	if err != nil {
		return nil, err
	}
	lines := make([]journals.LineInput, 0, 2*len(req.Entries))
	for _, seed := range req.Entries {
		narration := seed.Narration
		if narration == "" {
			narration = req.Narration
		}
		code := cashCode
		if seed.GLAccountCode != "" {
			code = seed.GLAccountCode
		}
		cash := journals.LineInput{GLAccountCode: code, Currency: req.Currency, Narration: narration, BranchID: req.BranchID}
		deposits := journals.LineInput{GLAccountCode: depositsCode, Currency: req.Currency, Narration: narration, BranchID: req.BranchID}
		if s.cashDebit {
			cash.Debit = seed.Debit
			deposits.Credit = seed.Debit
			lines = append(lines, cash, deposits)
			continue
		}
		deposits.Debit = seed.Credit
		cash.Credit = seed.Credit
		lines = append(lines, deposits, cash)
	}
	return lines, nil
}
