package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type Repository interface {
	Get(ctx context.Context, postingType string, leg Leg) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified posting type leg.
func (r *repository) Get(ctx context.Context, postingType string, leg Leg) (AccountMapping, error) {
	if postingType == "" || leg == "" {
		return AccountMapping{}, errors.New("accounting: posting type and leg required")
	}
	normalized := strings.ToLower(postingType)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT posting_type, leg, gl_code, created_at, updated_at FROM gl_account_mappings WHERE posting_type=$1 AND leg=$2`, normalized, string(leg)).
		Scan(&mapping.PostingType, &mapping.Leg, &mapping.GLCode, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound.Wrap(fmt.Errorf("%s/%s", normalized, leg))
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Static serves mappings from memory, keyed "postingType/leg".
type Static map[string]string

func (s Static) Get(_ context.Context, postingType string, leg Leg) (AccountMapping, error) {
	key := strings.ToLower(postingType) + "/" + string(leg)
	code, ok := s[key]
	if !ok {
		return AccountMapping{}, shared.ErrMappingNotFound.Wrap(errors.New(key))
	}
	return AccountMapping{PostingType: strings.ToLower(postingType), Leg: leg, GLCode: code}, nil
}

var _ Repository = Static(nil)
