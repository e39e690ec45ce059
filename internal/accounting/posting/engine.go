package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Posting outcomes reported to the Recorder.
const (
	OutcomeCommitted = "committed"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Recorder receives posting outcomes for metrics.
type Recorder interface {
	ObservePosting(postingType, outcome string, elapsed time.Duration)
	IncIntegrityFailure(postingType string)
}

// Alerter escalates integrity failures to operators.
type Alerter interface {
	Alert(ctx context.Context, err error, tags map[string]string)
}

// Service is the in-process posting contract used by domain callers.
type Service interface {
	PostTransaction(ctx context.Context, req Request) (Result, error)
	ReverseTransaction(ctx context.Context, req ReversalRequest) (Result, error)
	PostTransactionAsync(ctx context.Context, req Request) *Future
	ReverseTransactionAsync(ctx context.Context, req ReversalRequest) *Future
	GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error)
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	Workers  int64
	Logger   *slog.Logger
	Recorder Recorder
	Alerter  Alerter
	Now      func() time.Time
}

// Engine commits balanced journal entries exactly once per idempotency key.
type Engine struct {
	repo     journals.Repository
	registry *Registry
	chart    Chart
	logger   *slog.Logger
	recorder Recorder
	alerter  Alerter
	now      func() time.Time

	sem    *semaphore.Weighted
	flight singleflight.Group
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewEngine wires the engine over a journal store and strategy registry.
func NewEngine(repo journals.Repository, registry *Registry, chart Chart, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:     repo,
		registry: registry,
		chart:    chart,
		logger:   logger,
		recorder: opts.Recorder,
		alerter:  opts.Alerter,
		now:      now,
		sem:      semaphore.NewWeighted(workers),
	}
}

var _ Service = (*Engine)(nil)

// PostTransaction validates, dispatches and commits req. Failures return a
// Result carrying the error code together with the error itself.
func (e *Engine) PostTransaction(ctx context.Context, req Request) (Result, error) {
	start := e.now()
	postingType := normalizeType(req.PostingType)
	result, err := e.post(ctx, req)
	e.observe(postingType, result, err, e.now().Sub(start))
	if err != nil {
		e.escalate(ctx, err, map[string]string{
			"posting_type":    postingType,
			"idempotency_key": req.IdempotencyKey,
		})
		return failed(err), err
	}
	return result, nil
}

func (e *Engine) post(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	req.Currency = normalizeCurrency(req.Currency)
	strategy, err := e.registry.Get(req.PostingType)
	if err != nil {
		return Result{}, err
	}
	if existing, ok, err := e.lookup(ctx, req.IdempotencyKey, isPosting); err != nil || ok {
		return existing, err
	}
	if err := strategy.Validate(req); err != nil {
		return Result{}, err
	}
	lines, err := strategy.BuildLines(ctx, req, e.chart)
	if err != nil {
		return Result{}, err
	}
	if err := e.checkAccounts(ctx, req.Currency, lines); err != nil {
		return Result{}, err
	}
	if err := journals.ValidateLines(lines); err != nil {
		return Result{}, err
	}

	input := journals.EntryInput{
		IdempotencyKey: req.IdempotencyKey,
		PostingType:    strategy.PostingType(),
		PostingDate:    req.PostingDate,
		SourceType:     req.SourceType,
		SourceID:       req.SourceID,
		Narration:      req.Narration,
		BranchID:       req.BranchID,
		Currency:       req.Currency,
		PostedBy:       req.Actor.UserID,
		Lines:          lines,
	}
	var entry journals.JournalEntry
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		inserted, err := e.write(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateKey) {
		return e.winner(ctx, req.IdempotencyKey, isPosting)
	}
	if err != nil {
		return Result{}, err
	}
	return committed(entry.ID), nil
}

// ReverseTransaction commits an entry mirroring the original and marks the
// original reversed. A second reversal of the same entry fails with ALREADY_REVERSED.
func (e *Engine) ReverseTransaction(ctx context.Context, req ReversalRequest) (Result, error) {
	start := e.now()
	result, err := e.reverse(ctx, req)
	e.observe("reversal", result, err, e.now().Sub(start))
	if err != nil {
		e.escalate(ctx, err, map[string]string{
			"posting_type":      "reversal",
			"idempotency_key":   req.IdempotencyKey,
			"original_entry_id": strconv.FormatInt(req.OriginalEntryID, 10),
		})
		return failed(err), err
	}
	return result, nil
}

func (e *Engine) reverse(ctx context.Context, req ReversalRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	match := reverses(req.OriginalEntryID)
	if existing, ok, err := e.lookup(ctx, req.IdempotencyKey, match); err != nil || ok {
		return existing, err
	}
	var reversal journals.JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		original, lines, err := tx.GetJournalWithLines(ctx, req.OriginalEntryID)
		if err != nil {
			return err
		}
		if original.IsReversal() {
			return shared.ErrCannotReverseReversal.Wrap(fmt.Errorf("entry %d", original.ID))
		}
		if original.Reversed {
			return shared.ErrAlreadyReversed.Wrap(fmt.Errorf("entry %d", original.ID))
		}
		mirrored := journals.Mirror(lines)
		if err := journals.ValidateLines(mirrored); err != nil {
			return err
		}
		date := req.PostingDate
		if date.IsZero() {
			date = original.PostingDate
		}
		narration := req.Narration
		if narration == "" {
			narration = fmt.Sprintf("Reversal of entry %d", original.ID)
		}
		originalID := original.ID
		inserted, err := e.write(ctx, tx, journals.EntryInput{
			IdempotencyKey: req.IdempotencyKey,
			PostingType:    original.PostingType,
			PostingDate:    date,
			SourceType:     original.SourceType,
			SourceID:       original.SourceID,
			Narration:      narration,
			BranchID:       original.BranchID,
			Currency:       original.Currency,
			PostedBy:       req.Actor.UserID,
			ReversalOf:     &originalID,
			Lines:          mirrored,
		})
		if err != nil {
			return err
		}
		ok, err := tx.MarkReversed(ctx, original.ID, inserted.ID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrAlreadyReversed.Wrap(fmt.Errorf("entry %d", original.ID))
		}
		reversal = inserted
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateKey) {
		return e.winner(ctx, req.IdempotencyKey, match)
	}
	if errors.Is(err, shared.ErrAlreadyReversed) {
		// A request sharing this key may have won the race for the original.
		if existing, ok, lookupErr := e.lookup(ctx, req.IdempotencyKey, match); lookupErr == nil && ok {
			return existing, nil
		}
	}
	if err != nil {
		return Result{}, err
	}
	return committed(reversal.ID), nil
}

// GetEntry returns a committed entry with its lines.
func (e *Engine) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	if id <= 0 {
		return journals.JournalEntry{}, shared.Validation("id", shared.CodeInvalidRequest, "entry id required")
	}
	return e.repo.GetWithLines(ctx, id)
}

// write persists header and lines, then re-sums what the store holds.
func (e *Engine) write(ctx context.Context, tx journals.TxRepository, input journals.EntryInput) (journals.JournalEntry, error) {
	inserted, err := tx.InsertJournalEntry(ctx, input)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
		return journals.JournalEntry{}, err
	}
	debit, credit, count, err := tx.SumLines(ctx, inserted.ID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if count != len(input.Lines) || !debit.Equal(credit) {
		return journals.JournalEntry{}, shared.ErrUnbalanced.Wrap(fmt.Errorf("entry %d persisted %d lines, debits %s, credits %s", inserted.ID, count, debit, credit))
	}
	inserted.Lines = journals.ToJournalLines(inserted.ID, input.Lines, e.now())
	return inserted, nil
}

func (e *Engine) checkAccounts(ctx context.Context, currency string, lines []journals.LineInput) error {
	for idx, line := range lines {
		if line.Currency != currency {
			return shared.ErrCurrencyMismatch.Wrap(fmt.Errorf("lines[%d] is %s, entry is %s", idx, line.Currency, currency))
		}
		if e.chart.Accounts == nil {
			continue
		}
		account, err := e.chart.Accounts.Resolve(ctx, line.GLAccountCode)
		if err != nil {
			return err
		}
		if err := account.CheckPostable(line.Currency); err != nil {
			return err
		}
	}
	return nil
}

// entryMatcher reports whether an entry committed under a key was written by
// the same kind of request that is now presenting the key.
type entryMatcher func(journals.JournalEntry) bool

func isPosting(entry journals.JournalEntry) bool {
	return entry.ReversalOf == nil
}

func reverses(originalID int64) entryMatcher {
	return func(entry journals.JournalEntry) bool {
		return entry.ReversalOf != nil && *entry.ReversalOf == originalID
	}
}

func keyReused(key string, existing journals.JournalEntry) error {
	return shared.ErrIdempotencyKeyReused.Wrap(fmt.Errorf("key %s belongs to entry %d", key, existing.ID))
}

// lookup reports an entry already committed under key.
func (e *Engine) lookup(ctx context.Context, key string, match entryMatcher) (Result, bool, error) {
	existing, err := e.repo.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		if !match(existing) {
			return Result{}, false, keyReused(key, existing)
		}
		return duplicate(existing.ID), true, nil
	case errors.Is(err, shared.ErrJournalNotFound):
		return Result{}, false, nil
	default:
		return Result{}, false, err
	}
}

// winner resolves the entry that won a unique-key race against this request.
func (e *Engine) winner(ctx context.Context, key string, match entryMatcher) (Result, error) {
	existing, err := e.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("posting: resolve committed entry for %s: %w", key, err)
	}
	if !match(existing) {
		return Result{}, keyReused(key, existing)
	}
	e.logger.Debug("idempotency key already committed", slog.String("idempotency_key", key), slog.Int64("journal_entry_id", existing.ID))
	return duplicate(existing.ID), nil
}

func (e *Engine) observe(postingType string, result Result, err error, elapsed time.Duration) {
	if e.recorder == nil {
		return
	}
	outcome := OutcomeCommitted
	switch {
	case err != nil && (shared.KindOf(err) == shared.KindValidation || shared.KindOf(err) == shared.KindBusiness):
		outcome = OutcomeRejected
	case err != nil:
		outcome = OutcomeFailed
	case result.Duplicate:
		outcome = OutcomeDuplicate
	}
	e.recorder.ObservePosting(postingType, outcome, elapsed)
}

func (e *Engine) escalate(ctx context.Context, err error, tags map[string]string) {
	if shared.KindOf(err) != shared.KindIntegrity {
		return
	}
	e.logger.Error("ledger integrity failure", slog.Any("error", err), slog.Any("tags", tags))
	if e.recorder != nil {
		e.recorder.IncIntegrityFailure(tags["posting_type"])
	}
	if e.alerter != nil {
		e.alerter.Alert(ctx, err, tags)
	}
}
