package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// AccountLister lists the chart of accounts.
type AccountLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

// AccountsOptions defines flags for the accounts command.
type AccountsOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// AccountsCommand prints the chart of accounts and whether each code accepts postings.
func AccountsCommand(ctx context.Context, lister AccountLister, opts AccountsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	list, err := lister.List(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "accounts: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(list); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "accounts: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CODE\tNAME\tTYPE\tCCY\tPOSTABLE")
	for _, a := range list {
		postable := "yes"
		if err := a.CheckPostable(""); err != nil {
			postable = "no"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Code, a.Name, a.Type, defaultString(a.Currency, "*"), postable)
	}
	_ = tw.Flush()
	return 0
}
