// Package writer defines the row-sink contract shared by every
// materialization destination (csvsink, parquetsink, sqlsink), plus a
// retry-with-backoff helper for IO_ERROR failures. None of the sinks in
// this module calls the helper.
package writer

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/pipelineerr"
)

// Writer is the contract every destination adapter implements: open once
// per logical output, stream row batches, rotate chunk boundaries, and
// close. Headers are emitted exactly once per logical output even across
// resume; partial chunks from a crash are truncated or superseded, never
// observed duplicated; rotation is atomic.
type Writer interface {
	// Open prepares the destination for schema, resuming from cursor when
	// non-nil (a value previously returned by Cursor after a prior Close).
	Open(ctx context.Context, destination string, schema model.CanonicalSchema, cursor map[string]any) error
	// WriteRows appends a batch of canonically-ordered rows.
	WriteRows(ctx context.Context, rows [][]string) error
	// Rotate closes the current chunk and opens the next one atomically.
	Rotate(ctx context.Context) error
	// Cursor returns writer-specific resume state for the checkpoint.
	Cursor() map[string]any
	// Close flushes and releases all resources.
	Close(ctx context.Context) error
}

// maxRetries bounds how many times an IO_ERROR classified failure is
// retried with exponential backoff; other failures are not retried.
const maxRetries = 3

// WithRetry runs fn, retrying up to maxRetries times with exponential
// backoff and jitter when fn returns a retryable error.
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !pipelineerr.Retryable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		if !backoffWait(ctx, attempt) {
			return ctx.Err()
		}
	}
	return err
}

// backoffWait sleeps for an exponentially increasing duration with
// jitter, base 100ms capped at 5s — local file/DB retries don't need to
// ride out minutes-long throttling windows.
func backoffWait(ctx context.Context, attempt int) bool {
	base := 100 * time.Millisecond
	maxDelay := 5 * time.Second

	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay) + 1))
	delay += jitter

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
