package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// ImbalanceFinder lists committed entries whose lines do not balance.
type ImbalanceFinder interface {
	FindImbalanced(ctx context.Context, since time.Time) ([]journals.Imbalance, error)
}

// IntegrityReporter receives every imbalance found.
type IntegrityReporter interface {
	IncIntegrityFailure(postingType string)
}

// IntegrityAlerter escalates imbalances to operators.
type IntegrityAlerter interface {
	Alert(ctx context.Context, err error, tags map[string]string)
}

// GLIntegrityJob re-sums committed journal entries and reports any whose
// debits and credits differ.
type GLIntegrityJob struct {
	Store    ImbalanceFinder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Reporter IntegrityReporter
	Alerter  IntegrityAlerter
	clock    func() time.Time
}

// NewGLIntegrityJob initialises the integrity scan handler.
func NewGLIntegrityJob(store ImbalanceFinder, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for an asynq task.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run scans entries created within the payload window and returns the imbalances found.
func (j *GLIntegrityJob) Run(ctx context.Context, payload GLIntegrityPayload) ([]journals.Imbalance, error) {
	if j.Store == nil {
		return nil, errors.New("gl integrity: store not configured")
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	since := j.now().Add(-payload.lookback())
	logger := j.logger().With(slog.String("job", "gl_integrity"), slog.Time("since", since))

	found, err := j.Store.FindImbalanced(ctx, since)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return nil, tracker.End(err)
	}
	for _, im := range found {
		logger.Error("unbalanced journal entry",
			slog.Int64("journal_entry_id", im.JournalEntryID),
			slog.String("debit", im.Debit.String()),
			slog.String("credit", im.Credit.String()),
		)
		if j.Reporter != nil {
			j.Reporter.IncIntegrityFailure("integrity_scan")
		}
		if j.Alerter != nil {
			j.Alerter.Alert(ctx,
				shared.ErrUnbalanced.Wrap(fmt.Errorf("entry %d debits %s, credits %s", im.JournalEntryID, im.Debit, im.Credit)),
				map[string]string{"job": "gl_integrity", "journal_entry_id": strconv.FormatInt(im.JournalEntryID, 10)})
		}
	}
	j.Metrics.AddImbalances(len(found))
	logger.Info("GL integrity check executed", slog.Int("imbalances", len(found)))
	return found, tracker.End(nil)
}

func (j *GLIntegrityJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
