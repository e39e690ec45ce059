package posting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Actor identifies who asked for a posting and from which branch.
type Actor struct {
	UserID   string `json:"user_id"`
	BranchID int64  `json:"branch_id"`
}

// SeedEntry is a single amount that a strategy expands into balanced lines.
type SeedEntry struct {
	// GLAccountCode overrides the cash leg account when set.
	GLAccountCode string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Narration     string
}

// Request asks the engine to commit one money movement.
type Request struct {
	IdempotencyKey string
	PostingType    string
	SourceType     string
	SourceID       string
	BranchID       int64
	PostingDate    time.Time
	Currency       string
	Narration      string
	Entries        []SeedEntry
	Actor          Actor
}

// ReversalRequest asks the engine to compensate a committed entry.
type ReversalRequest struct {
	IdempotencyKey  string
	OriginalEntryID int64
	// PostingDate defaults to the original entry's date.
	PostingDate time.Time
	Narration   string
	Actor       Actor
}

// Result reports the outcome of a posting or reversal.
type Result struct {
	Success        bool   `json:"success"`
	JournalEntryID int64  `json:"journal_entry_id,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	Message        string `json:"message,omitempty"`
	// Duplicate is set when the result was served from an entry committed earlier
	// under the same idempotency key.
	Duplicate bool `json:"duplicate,omitempty"`
}

func committed(id int64) Result {
	return Result{Success: true, JournalEntryID: id}
}

func duplicate(id int64) Result {
	return Result{Success: true, JournalEntryID: id, Duplicate: true}
}

func failed(err error) Result {
	return Result{ErrorCode: shared.CodeOf(err), Message: err.Error()}
}

// normalizeType folds posting types to their registry key.
func normalizeType(postingType string) string {
	return strings.ToLower(strings.TrimSpace(postingType))
}

// normalizeCurrency returns the canonical ISO 4217 code, or code unchanged
// when it does not parse.
func normalizeCurrency(code string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	return unit.String()
}

func (r Request) validate() error {
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return shared.Validation("idempotencyKey", shared.CodeInvalidRequest, "idempotency key required")
	}
	if normalizeType(r.PostingType) == "" {
		return shared.Validation("postingType", shared.CodeInvalidRequest, "posting type required")
	}
	if r.PostingDate.IsZero() {
		return shared.Validation("postingDate", shared.CodeInvalidRequest, "posting date required")
	}
	if r.BranchID <= 0 {
		return shared.Validation("branchId", shared.CodeInvalidRequest, "branch required")
	}
	return nil
}

func (r ReversalRequest) validate() error {
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return shared.Validation("idempotencyKey", shared.CodeInvalidRequest, "idempotency key required")
	}
	if r.OriginalEntryID <= 0 {
		return shared.Validation("originalEntryId", shared.CodeInvalidRequest, "original entry id required")
	}
	return nil
}
