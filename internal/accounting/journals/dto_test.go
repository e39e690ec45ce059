package journals

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func line(code string, debit, credit int64) LineInput {
	return LineInput{GLAccountCode: code, Debit: decimal.NewFromInt(debit), Credit: decimal.NewFromInt(credit), Currency: "UGX", BranchID: 2}
}

func TestValidateLinesBalanced(t *testing.T) {
	err := ValidateLines([]LineInput{line("CASH", 150000, 0), line("CUSTOMER_DEPOSITS", 0, 150000)})
	require.NoError(t, err)
}

func TestValidateLinesRejectsImbalance(t *testing.T) {
	err := ValidateLines([]LineInput{line("CASH", 150000, 0), line("CUSTOMER_DEPOSITS", 0, 149999)})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.Equal(t, shared.KindIntegrity, shared.KindOf(err))
}

func TestValidateLinesRejectsDoubleSidedLine(t *testing.T) {
	err := ValidateLines([]LineInput{line("CASH", 10, 10), line("CUSTOMER_DEPOSITS", 0, 0)})
	require.Error(t, err)
	var typed *shared.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, "lines[0]", typed.Field)
	require.Equal(t, shared.CodeInvalidLine, typed.Code)
}

func TestValidateLinesRejectsEmptyLine(t *testing.T) {
	err := ValidateLines([]LineInput{line("CASH", 10, 0), line("CUSTOMER_DEPOSITS", 0, 0)})
	var typed *shared.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, "lines[1]", typed.Field)
}

func TestValidateLinesRequiresTwoLines(t *testing.T) {
	err := ValidateLines([]LineInput{line("CASH", 10, 0)})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestMirrorSwapsSides(t *testing.T) {
	original := []JournalLine{
		{GLAccountCode: "CASH", Debit: decimal.NewFromInt(150000), Currency: "UGX", BranchID: 2},
		{GLAccountCode: "CUSTOMER_DEPOSITS", Credit: decimal.NewFromInt(150000), Currency: "UGX", BranchID: 2},
	}
	mirrored := Mirror(original)
	require.Len(t, mirrored, 2)
	require.Equal(t, "CASH", mirrored[0].GLAccountCode)
	require.True(t, mirrored[0].Debit.IsZero())
	require.True(t, mirrored[0].Credit.Equal(decimal.NewFromInt(150000)))
	require.Equal(t, "CUSTOMER_DEPOSITS", mirrored[1].GLAccountCode)
	require.True(t, mirrored[1].Debit.Equal(decimal.NewFromInt(150000)))
	require.NoError(t, ValidateLines(mirrored))
}

func TestLineAmountsMustFitStoredScale(t *testing.T) {
	require.True(t, FitsScale(decimal.RequireFromString("1.0001")))
	require.True(t, FitsScale(decimal.RequireFromString("1.50000")))
	require.False(t, FitsScale(decimal.RequireFromString("1.00005")))

	tiny := decimal.RequireFromString("0.00001")
	err := ValidateLines([]LineInput{
		{GLAccountCode: "CASH", Debit: tiny, Currency: "UGX"},
		{GLAccountCode: "CUSTOMER_DEPOSITS", Credit: tiny, Currency: "UGX"},
	})
	require.Equal(t, shared.CodeAmountPrecision, shared.CodeOf(err))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
