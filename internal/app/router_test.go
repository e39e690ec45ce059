package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	postinghttp "github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type stubLedger struct{}

func (stubLedger) PostTransaction(context.Context, posting.Request) (posting.Result, error) {
	return posting.Result{Success: true, JournalEntryID: 1}, nil
}

func (stubLedger) ReverseTransaction(context.Context, posting.ReversalRequest) (posting.Result, error) {
	return posting.Result{Success: true, JournalEntryID: 2}, nil
}

func (stubLedger) GetEntry(_ context.Context, id int64) (journals.JournalEntry, error) {
	return journals.JournalEntry{ID: id}, nil
}

func testRouter(ready func(context.Context) error) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", HTTPRateLimit: 1000},
		PostingHandler: postinghttp.NewHandler(logger, stubLedger{}),
		JobHandler:     jobs.NewHandler(nil, logger),
		Metrics:        observability.NewMetrics(),
		Ready:          ready,
	})
}

func TestRouterMountsLedgerRoutes(t *testing.T) {
	router := testRouter(nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/journal-entries/9", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "ledger_http_requests_total"))
}

func TestReadinessReflectsDependencies(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(func(context.Context) error { return errors.New("pg down") }).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	testRouter(func(context.Context) error { return nil }).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
