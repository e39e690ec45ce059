package mappings

import "time"

// Leg names one side of a strategy's posting.
type Leg string

const (
	LegDebit  Leg = "debit"
	LegCredit Leg = "credit"
)

// AccountMapping links a posting type leg to a GL account code.
type AccountMapping struct {
	PostingType string
	Leg         Leg
	GLCode      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
