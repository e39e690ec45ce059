package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var _ posting.Alerter = (*Alerter)(nil)

func TestAlerterCapturesIntegrityErrorsWithTags(t *testing.T) {
	var mu sync.Mutex
	var captured []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			captured = append(captured, event)
			return nil
		},
	})
	require.NoError(t, err)
	hub := sentry.NewHub(client, sentry.NewScope())
	alerter := NewAlerter(hub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	alerter.Alert(context.Background(), shared.ErrUnbalanced.Wrap(errors.New("entry 9")), map[string]string{
		"posting_type":    "deposit",
		"idempotency_key": "dep-9",
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	require.Equal(t, "deposit", captured[0].Tags["posting_type"])
	require.Equal(t, "ledger", captured[0].Tags["component"])
	require.Equal(t, sentry.LevelFatal, captured[0].Level)
}

func TestAlerterWithoutHubOnlyLogs(t *testing.T) {
	alerter := NewAlerter(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	alerter.Alert(context.Background(), errors.New("boom"), nil)
	alerter.Flush(0)

	hub, err := InitSentry("", "test")
	require.NoError(t, err)
	require.Nil(t, hub)
}
