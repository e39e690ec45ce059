package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Resolver maps a GL account code to its metadata.
type Resolver interface {
	Resolve(ctx context.Context, code string) (Account, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Resolve looks the account up in the chart of accounts.
func (s *Service) Resolve(ctx context.Context, code string) (Account, error) {
	return s.repo.FindByCode(ctx, code)
}

// StaticResolver serves a fixed chart of accounts held in memory.
type StaticResolver map[string]Account

// NewStaticResolver indexes accounts by code.
func NewStaticResolver(accounts ...Account) StaticResolver {
	out := make(StaticResolver, len(accounts))
	for _, a := range accounts {
		out[strings.TrimSpace(a.Code)] = a
	}
	return out
}

func (r StaticResolver) Resolve(_ context.Context, code string) (Account, error) {
	a, ok := r[strings.TrimSpace(code)]
	if !ok {
		return Account{}, shared.ErrAccountNotFound.Wrap(fmt.Errorf("code %s", code))
	}
	return a, nil
}

var (
	_ Resolver = (*Service)(nil)
	_ Resolver = StaticResolver(nil)
)
