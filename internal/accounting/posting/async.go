package posting

import (
	"context"
	"errors"
	"strconv"
)

// ErrEngineClosed is returned by futures dispatched after Close.
var ErrEngineClosed = errors.New("posting: engine closed")

// Future holds the outcome of an asynchronous posting.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result Result, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the posting finishes or ctx ends. Abandoning the wait does
// not cancel the posting.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// PostTransactionAsync runs PostTransaction on the bounded worker pool.
// In-process calls sharing an idempotency key share one execution.
func (e *Engine) PostTransactionAsync(ctx context.Context, req Request) *Future {
	return e.dispatch(ctx, "post:"+req.IdempotencyKey, func(ctx context.Context) (Result, error) {
		return e.PostTransaction(ctx, req)
	})
}

// ReverseTransactionAsync runs ReverseTransaction on the bounded worker pool.
func (e *Engine) ReverseTransactionAsync(ctx context.Context, req ReversalRequest) *Future {
	key := "reverse:" + req.IdempotencyKey + ":" + strconv.FormatInt(req.OriginalEntryID, 10)
	return e.dispatch(ctx, key, func(ctx context.Context) (Result, error) {
		return e.ReverseTransaction(ctx, req)
	})
}

func (e *Engine) dispatch(ctx context.Context, key string, fn func(context.Context) (Result, error)) *Future {
	f := newFuture()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.complete(failed(ErrEngineClosed), ErrEngineClosed)
		return f
	}
	e.wg.Add(1)
	e.mu.Unlock()

	// Dispatched work runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer e.wg.Done()
		v, err, _ := e.flight.Do(key, func() (any, error) {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return failed(err), err
			}
			defer e.sem.Release(1)
			return fn(ctx)
		})
		result, _ := v.(Result)
		f.complete(result, err)
	}()
	return f
}

// Close stops accepting async work and waits for in-flight postings.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
