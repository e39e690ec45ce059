package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
)

// DemoOptions defines flags for the demo command.
type DemoOptions struct {
	Deposit    string
	Withdrawal string
	Currency   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// DemoStep records one engine call made by the demo.
type DemoStep struct {
	Action string         `json:"action"`
	Result posting.Result `json:"result"`
}

// DemoSummary is the JSON output of the demo command.
type DemoSummary struct {
	OK         bool                    `json:"ok"`
	Steps      []DemoStep              `json:"steps"`
	Entries    []journals.JournalEntry `json:"entries"`
	Imbalances int                     `json:"imbalances"`
}

// DemoChart returns the in-memory chart of accounts used by the demo.
func DemoChart(currency string) accounts.StaticResolver {
	return accounts.NewStaticResolver(
		accounts.Account{Code: posting.CodeCash, Name: "Cash on hand", Type: accounts.AccountTypeAsset, Currency: currency, AllowsPosting: true, IsActive: true},
		accounts.Account{Code: posting.CodeCustomerDeposits, Name: "Customer deposits", Type: accounts.AccountTypeLiability, Currency: currency, AllowsPosting: true, IsActive: true},
	)
}

// DemoCommand runs a deposit, a resubmission, a withdrawal and a reversal
// against an in-memory ledger and prints the resulting journal.
func DemoCommand(ctx context.Context, opts DemoOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = "UGX"
	}
	deposit, err := decimal.NewFromString(defaultString(opts.Deposit, "150000"))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "demo: invalid deposit amount %q\n", opts.Deposit)
		return 1
	}
	withdrawal, err := decimal.NewFromString(defaultString(opts.Withdrawal, "50000"))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "demo: invalid withdrawal amount %q\n", opts.Withdrawal)
		return 1
	}

	registry, err := posting.NewRegistry(posting.DefaultStrategies()...)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "demo: %v\n", err)
		return 1
	}
	store := journals.NewMemoryRepository()
	engine := posting.NewEngine(store, registry, posting.Chart{Accounts: DemoChart(currency), Mappings: mappings.Static{}}, posting.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer func() { _ = engine.Close(context.Background()) }()

	date := time.Now().UTC().Truncate(24 * time.Hour)
	base := posting.Request{
		SourceType:  "demo",
		BranchID:    1,
		PostingDate: date,
		Currency:    currency,
		Actor:       posting.Actor{UserID: "demo", BranchID: 1},
	}
	depositReq := base
	depositReq.IdempotencyKey = "demo-deposit-1"
	depositReq.PostingType = "deposit"
	depositReq.SourceID = "DEP-1"
	depositReq.Narration = "demo deposit"
	depositReq.Entries = []posting.SeedEntry{{Debit: deposit}}

	withdrawalReq := base
	withdrawalReq.IdempotencyKey = "demo-withdrawal-1"
	withdrawalReq.PostingType = "withdrawal"
	withdrawalReq.SourceID = "WDL-1"
	withdrawalReq.Narration = "demo withdrawal"
	withdrawalReq.Entries = []posting.SeedEntry{{Credit: withdrawal}}

	var summary DemoSummary
	run := func(action string, res posting.Result, err error) bool {
		summary.Steps = append(summary.Steps, DemoStep{Action: action, Result: res})
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "demo: %s: %v\n", action, err)
			return false
		}
		return true
	}

	dep, err := engine.PostTransaction(ctx, depositReq)
	ok := run("deposit", dep, err)
	if ok {
		res, err := engine.PostTransaction(ctx, depositReq)
		ok = run("deposit (resubmitted)", res, err)
	}
	if ok {
		res, err := engine.PostTransactionAsync(ctx, withdrawalReq).Wait(ctx)
		ok = run("withdrawal (async)", res, err)
	}
	if ok {
		res, err := engine.ReverseTransaction(ctx, posting.ReversalRequest{
			IdempotencyKey:  "demo-reversal-1",
			OriginalEntryID: dep.JournalEntryID,
			Actor:           base.Actor,
		})
		ok = run("reverse deposit", res, err)
	}

	summary.Entries = store.Entries()
	imbalances, err := store.FindImbalanced(ctx, time.Time{})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "demo: integrity scan: %v\n", err)
		return 1
	}
	summary.Imbalances = len(imbalances)
	summary.OK = ok && summary.Imbalances == 0

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "demo: encode json: %v\n", err)
			return 1
		}
	} else {
		renderDemoHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 1
	}
	return 0
}

func renderDemoHuman(out io.Writer, summary DemoSummary) {
	for _, step := range summary.Steps {
		status := "ok"
		if !step.Result.Success {
			status = "failed " + step.Result.ErrorCode
		} else if step.Result.Duplicate {
			status = "duplicate"
		}
		_, _ = fmt.Fprintf(out, "%-24s entry=%d %s\n", step.Action, step.Result.JournalEntryID, status)
	}
	_, _ = fmt.Fprintln(out)
	for _, entry := range summary.Entries {
		_, _ = fmt.Fprintf(out, "#%d %s %s %q\n", entry.ID, entry.PostingType, entry.PostingDate.Format("2006-01-02"), entry.Narration)
		for _, line := range entry.Lines {
			_, _ = fmt.Fprintf(out, "    %-20s Dr %14s  Cr %14s %s\n", line.GLAccountCode, line.Debit.StringFixed(2), line.Credit.StringFixed(2), line.Currency)
		}
	}
	_, _ = fmt.Fprintf(out, "\nunbalanced entries: %d\n", summary.Imbalances)
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
