package journals

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AmountScale is the number of decimal places stored for line amounts.
const AmountScale int32 = 4

// FitsScale reports whether amount is stored without rounding.
func FitsScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountScale))
}

// LineInput describes a journal line for posting.
type LineInput struct {
	GLAccountCode string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Currency      string
	Narration     string
	BranchID      int64
}

// EntryInput groups fields required to write a journal entry.
type EntryInput struct {
	IdempotencyKey string
	PostingType    string
	PostingDate    time.Time
	SourceType     string
	SourceID       string
	Narration      string
	BranchID       int64
	Currency       string
	PostedBy       string
	ReversalOf     *int64
	Lines          []LineInput
}

// Validate checks that a line carries exactly one positive side.
func (l LineInput) Validate(idx int) error {
	field := fmt.Sprintf("lines[%d]", idx)
	if l.GLAccountCode == "" {
		return shared.Validation(field, shared.CodeInvalidLine, "gl account code required")
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return shared.Validation(field, shared.CodeInvalidLine, "negative amount")
	}
	debit, credit := l.Debit.IsPositive(), l.Credit.IsPositive()
	if debit && credit {
		return shared.Validation(field, shared.CodeInvalidLine, "cannot be both debit and credit")
	}
	if !debit && !credit {
		return shared.Validation(field, shared.CodeInvalidLine, "requires a debit or a credit amount")
	}
	if !FitsScale(l.Debit) || !FitsScale(l.Credit) {
		return shared.Validation(field, shared.CodeAmountPrecision, fmt.Sprintf("amount exceeds %d decimal places", AmountScale))
	}
	return nil
}

// Totals sums the debit and credit sides.
func Totals(lines []LineInput) (debit, credit decimal.Decimal) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// ValidateLines enforces the double-entry invariants on proposed lines.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return shared.Validation("lines", shared.CodeInvalidLine, "journal requires at least two lines")
	}
	for idx, line := range lines {
		if err := line.Validate(idx); err != nil {
			return err
		}
	}
	debit, credit := Totals(lines)
	if !debit.Equal(credit) {
		return shared.ErrUnbalanced.Wrap(fmt.Errorf("debits %s, credits %s", debit, credit))
	}
	return nil
}

// Mirror swaps debit and credit on every line, keeping order.
func Mirror(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			GLAccountCode: line.GLAccountCode,
			Debit:         line.Credit,
			Credit:        line.Debit,
			Currency:      line.Currency,
			Narration:     line.Narration,
			BranchID:      line.BranchID,
		})
	}
	return out
}

// ToJournalLines materialises inputs as lines of entryID.
func ToJournalLines(entryID int64, lines []LineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalEntryID: entryID,
			GLAccountCode:  line.GLAccountCode,
			Debit:          line.Debit,
			Credit:         line.Credit,
			Currency:       line.Currency,
			Narration:      line.Narration,
			BranchID:       line.BranchID,
			CreatedAt:      ts,
		})
	}
	return out
}
