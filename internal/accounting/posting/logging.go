package posting

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type loggingService struct {
	next   Service
	logger *slog.Logger
}

// WithLogging logs every entry point of next before the call, after success
// and on error, with the elapsed time.
func WithLogging(next Service, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingService{next: next, logger: logger.With(slog.String("component", "posting"))}
}

func requestAttrs(req Request) []any {
	return []any{
		slog.String("idempotency_key", req.IdempotencyKey),
		slog.String("posting_type", req.PostingType),
		slog.Int64("branch_id", req.BranchID),
		slog.String("actor", req.Actor.UserID),
	}
}

func reversalAttrs(req ReversalRequest) []any {
	return []any{
		slog.String("idempotency_key", req.IdempotencyKey),
		slog.Int64("original_entry_id", req.OriginalEntryID),
		slog.String("actor", req.Actor.UserID),
	}
}

func (s *loggingService) finish(ctx context.Context, op string, attrs []any, start time.Time, result Result, err error) {
	attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))
	if err != nil {
		attrs = append(attrs, slog.String("error_code", shared.CodeOf(err)), slog.Any("error", err))
		level := slog.LevelWarn
		if kind := shared.KindOf(err); kind == "" || kind == shared.KindIntegrity {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, op+" failed", attrs...)
		return
	}
	attrs = append(attrs, slog.Int64("journal_entry_id", result.JournalEntryID), slog.Bool("duplicate", result.Duplicate))
	s.logger.InfoContext(ctx, op+" done", attrs...)
}

func (s *loggingService) PostTransaction(ctx context.Context, req Request) (Result, error) {
	attrs := requestAttrs(req)
	s.logger.DebugContext(ctx, "post transaction", attrs...)
	start := time.Now()
	result, err := s.next.PostTransaction(ctx, req)
	s.finish(ctx, "post transaction", attrs, start, result, err)
	return result, err
}

func (s *loggingService) ReverseTransaction(ctx context.Context, req ReversalRequest) (Result, error) {
	attrs := reversalAttrs(req)
	s.logger.DebugContext(ctx, "reverse transaction", attrs...)
	start := time.Now()
	result, err := s.next.ReverseTransaction(ctx, req)
	s.finish(ctx, "reverse transaction", attrs, start, result, err)
	return result, err
}

func (s *loggingService) PostTransactionAsync(ctx context.Context, req Request) *Future {
	attrs := requestAttrs(req)
	s.logger.DebugContext(ctx, "post transaction async", attrs...)
	return s.watch(ctx, "post transaction async", attrs, s.next.PostTransactionAsync(ctx, req))
}

func (s *loggingService) ReverseTransactionAsync(ctx context.Context, req ReversalRequest) *Future {
	attrs := reversalAttrs(req)
	s.logger.DebugContext(ctx, "reverse transaction async", attrs...)
	return s.watch(ctx, "reverse transaction async", attrs, s.next.ReverseTransactionAsync(ctx, req))
}

func (s *loggingService) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	entry, err := s.next.GetEntry(ctx, id)
	if err != nil {
		s.logger.DebugContext(ctx, "get entry failed", slog.Int64("journal_entry_id", id), slog.Any("error", err))
	}
	return entry, err
}

// watch relays inner to a new future, logging when it resolves.
func (s *loggingService) watch(ctx context.Context, op string, attrs []any, inner *Future) *Future {
	outer := newFuture()
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	go func() {
		<-inner.Done()
		s.finish(ctx, op, attrs, start, inner.result, inner.err)
		outer.complete(inner.result, inner.err)
	}()
	return outer
}
