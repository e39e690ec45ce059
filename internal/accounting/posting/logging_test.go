package posting

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithLoggingRecordsOutcomes(t *testing.T) {
	fx := newFixture(t, nil)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := WithLogging(fx.engine, logger)
	ctx := context.Background()

	res, err := svc.PostTransaction(ctx, deposit("dep-log", 100))
	require.NoError(t, err)
	require.True(t, res.Success)

	bad := deposit("dep-log-bad", 100)
	bad.PostingType = "unknown"
	_, err = svc.PostTransaction(ctx, bad)
	require.Error(t, err)

	asyncRes, err := svc.PostTransactionAsync(ctx, deposit("dep-log-async", 100)).Wait(ctx)
	require.NoError(t, err)
	require.True(t, asyncRes.Success)

	out := buf.String()
	require.Contains(t, out, `msg="post transaction"`)
	require.Contains(t, out, `msg="post transaction done"`)
	require.Contains(t, out, `msg="post transaction failed"`)
	require.Contains(t, out, "error_code=UNKNOWN_POSTING_TYPE")
	require.Contains(t, out, `msg="post transaction async done"`)
	require.Equal(t, 1, strings.Count(out, "level=WARN"))
}
