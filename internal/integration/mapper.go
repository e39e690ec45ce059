package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CashMovement is a teller transaction reported by the deposit and withdrawal flows.
type CashMovement struct {
	Reference     string          `json:"reference"`
	AccountNumber string          `json:"account_number"`
	BranchID      int64           `json:"branch_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TellerID      string          `json:"teller_id"`
	Narration     string          `json:"narration,omitempty"`
	// TillAccount overrides the branch cash account when the teller works a till.
	TillAccount string `json:"till_account,omitempty"`
}

// ReversalRequested asks for a committed entry to be compensated.
type ReversalRequested struct {
	Reference      string `json:"reference"`
	JournalEntryID int64  `json:"journal_entry_id"`
	Reason         string `json:"reason,omitempty"`
	ActorID        string `json:"actor_id"`
	BranchID       int64  `json:"branch_id"`
}

func (m CashMovement) validate() error {
	if strings.TrimSpace(m.Reference) == "" {
		return shared.Validation("reference", shared.CodeInvalidRequest, "transaction reference required")
	}
	if m.OccurredAt.IsZero() {
		return shared.Validation("occurred_at", shared.CodeInvalidRequest, "transaction date required")
	}
	if !m.Amount.IsPositive() {
		return shared.Validation("amount", shared.CodeInvalidRequest, "amount must be positive")
	}
	return nil
}

func (m CashMovement) toRequest(postingType string, seed posting.SeedEntry) posting.Request {
	narration := m.Narration
	if narration == "" {
		narration = strings.ToUpper(postingType[:1]) + postingType[1:] + " " + m.AccountNumber
	}
	return posting.Request{
		IdempotencyKey: idempotencyKey(strings.ToUpper(postingType), m.Reference),
		PostingType:    postingType,
		SourceType:     "TELLER." + strings.ToUpper(postingType),
		SourceID:       m.Reference,
		BranchID:       m.BranchID,
		PostingDate:    m.OccurredAt,
		Currency:       strings.ToUpper(m.Currency),
		Narration:      narration,
		Entries:        []posting.SeedEntry{seed},
		Actor:          posting.Actor{UserID: m.TellerID, BranchID: m.BranchID},
	}
}

// idempotencyKey derives a stable key so redelivered domain events map onto
// the entry committed the first time.
func idempotencyKey(kind, reference string) string {
	return uuid.NewSHA1(uuid.Nil, []byte(kind+":"+reference)).String()
}
