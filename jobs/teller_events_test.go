package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

type stubTellerHooks struct {
	deposits    []integration.CashMovement
	withdrawals []integration.CashMovement
	reversals   []integration.ReversalRequested
	err         error
}

func (s *stubTellerHooks) HandleDepositReceived(_ context.Context, evt integration.CashMovement) (posting.Result, error) {
	s.deposits = append(s.deposits, evt)
	return posting.Result{Success: s.err == nil, JournalEntryID: 1}, s.err
}

func (s *stubTellerHooks) HandleWithdrawalPaid(_ context.Context, evt integration.CashMovement) (posting.Result, error) {
	s.withdrawals = append(s.withdrawals, evt)
	return posting.Result{Success: s.err == nil, JournalEntryID: 2}, s.err
}

func (s *stubTellerHooks) HandleReversalRequested(_ context.Context, evt integration.ReversalRequested) (posting.Result, error) {
	s.reversals = append(s.reversals, evt)
	return posting.Result{Success: s.err == nil, JournalEntryID: 3}, s.err
}

func cashMovement() integration.CashMovement {
	return integration.CashMovement{
		Reference:  "TLR-9",
		BranchID:   2,
		Amount:     decimal.NewFromInt(150000),
		Currency:   "UGX",
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		TellerID:   "teller-7",
	}
}

func TestTellerConsumerRoutesTasks(t *testing.T) {
	hooks := &stubTellerHooks{}
	consumer := NewTellerEventConsumer(hooks, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	mux := newServeMux(consumer.Handlers())
	ctx := context.Background()

	task, err := NewCashMovementTask(TaskTellerDepositReceived, cashMovement())
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, task))
	require.Len(t, hooks.deposits, 1)
	require.True(t, hooks.deposits[0].Amount.Equal(decimal.NewFromInt(150000)))
	require.Equal(t, "TLR-9", hooks.deposits[0].Reference)

	task, err = NewCashMovementTask(TaskTellerWithdrawalPaid, cashMovement())
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, task))
	require.Len(t, hooks.withdrawals, 1)

	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(TaskTellerReversalRequested, []byte(`{"reference":"REV-1","journal_entry_id":1,"actor_id":"sup"}`))))
	require.Len(t, hooks.reversals, 1)
	require.Equal(t, int64(1), hooks.reversals[0].JournalEntryID)
}

func TestTellerConsumerRetryPolicy(t *testing.T) {
	cases := map[string]struct {
		err       error
		skipRetry bool
	}{
		"validation": {shared.Validation("amount", shared.CodeInvalidRequest, "amount must be positive"), true},
		"business":   {shared.ErrControlAccount, true},
		"integrity":  {shared.ErrUnbalanced, false},
		"storage":    {errors.New("connection reset"), false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			hooks := &stubTellerHooks{err: tc.err}
			consumer := NewTellerEventConsumer(hooks, quietLogger(), nil)
			task, err := NewCashMovementTask(TaskTellerDepositReceived, cashMovement())
			require.NoError(t, err)

			err = newServeMux(consumer.Handlers()).ProcessTask(context.Background(), task)
			require.ErrorIs(t, err, tc.err)
			if tc.skipRetry {
				require.ErrorIs(t, err, asynq.SkipRetry)
			} else {
				require.NotErrorIs(t, err, asynq.SkipRetry)
			}
		})
	}
}

func TestTellerConsumerDropsMalformedPayload(t *testing.T) {
	hooks := &stubTellerHooks{}
	consumer := NewTellerEventConsumer(hooks, quietLogger(), nil)
	err := newServeMux(consumer.Handlers()).ProcessTask(context.Background(), asynq.NewTask(TaskTellerWithdrawalPaid, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, hooks.withdrawals)
}
