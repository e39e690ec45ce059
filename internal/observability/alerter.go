package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Alerter meneruskan kegagalan integritas ledger ke operator.
type Alerter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// NewAlerter membuat alerter. Hub nil berarti hanya log.
func NewAlerter(hub *sentry.Hub, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{hub: hub, logger: logger}
}

// InitSentry menginisialisasi klien Sentry global bila DSN tersedia.
func InitSentry(dsn, environment string) (*sentry.Hub, error) {
	if dsn == "" {
		return nil, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	return sentry.CurrentHub(), nil
}

// Alert mencatat error dan mengirimkannya ke Sentry dengan tag yang diberikan.
func (a *Alerter) Alert(ctx context.Context, err error, tags map[string]string) {
	if a == nil || err == nil {
		return
	}
	a.logger.ErrorContext(ctx, "ledger alert", slog.Any("error", err), slog.Any("tags", tags))
	if a.hub == nil {
		return
	}
	a.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTags(tags)
		scope.SetTag("component", "ledger")
		a.hub.CaptureException(err)
	})
}

// Flush menunggu event Sentry terkirim sebelum proses berhenti.
func (a *Alerter) Flush(timeout time.Duration) {
	if a == nil || a.hub == nil {
		return
	}
	a.hub.Flush(timeout)
}
