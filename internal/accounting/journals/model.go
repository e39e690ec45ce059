package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalEntry is the header of one atomic, balanced accounting event.
type JournalEntry struct {
	ID              int64         `json:"id"`
	PostingType     string        `json:"posting_type"`
	PostingDate     time.Time     `json:"posting_date"`
	SourceType      string        `json:"source_type"`
	SourceID        string        `json:"source_id"`
	Narration       string        `json:"narration"`
	IdempotencyKey  string        `json:"idempotency_key"`
	BranchID        int64         `json:"branch_id"`
	Currency        string        `json:"currency"`
	Reversed        bool          `json:"reversed"`
	ReversalEntryID *int64        `json:"reversal_entry_id,omitempty"`
	ReversalOf      *int64        `json:"reversal_of,omitempty"`
	PostedBy        string        `json:"posted_by"`
	CreatedAt       time.Time     `json:"created_at"`
	Lines           []JournalLine `json:"lines,omitempty"`
}

// IsReversal reports whether the entry compensates another entry.
func (e JournalEntry) IsReversal() bool {
	return e.ReversalOf != nil
}

// JournalLine stores debit or credit amount for a GL account.
type JournalLine struct {
	ID             int64           `json:"id"`
	JournalEntryID int64           `json:"journal_entry_id"`
	GLAccountCode  string          `json:"gl_account_code"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	Currency       string          `json:"currency"`
	Narration      string          `json:"narration"`
	BranchID       int64           `json:"branch_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Imbalance reports a persisted entry whose lines do not balance.
type Imbalance struct {
	JournalEntryID int64
	Debit          decimal.Decimal
	Credit         decimal.Decimal
}
