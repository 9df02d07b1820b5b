// Package retry executes datastore operations with bounded retry for one
// narrow fault class: stale prepared-statement errors caused by pooled
// connections desyncing from the server-side statement cache. Any other
// error is returned to the caller unchanged on the first attempt.
package retry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"

	pkglog "github.com/nabilkencana/eportofolio-auth/pkg/log"
)

// SQLSTATE for "prepared statement already exists".
const duplicatePreparedStatement = "42P05"

// IsStalePreparedStatement is the transient-fault signature. It is kept
// deliberately narrow so genuine query and business errors are never
// retried.
func IsStalePreparedStatement(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == duplicatePreparedStatement {
		return true
	}
	return strings.Contains(err.Error(), "prepared statement")
}

// Resetter discards and re-establishes the underlying pooled connections.
// Implementations are invoked between attempts; the Executor serializes
// calls so the pool is never reset concurrently.
type Resetter interface {
	ResetPool(ctx context.Context) error
}

type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	isTransient func(error) bool
	resetter    Resetter
	logger      pkglog.Logger

	mu sync.Mutex
}

func NewExecutor(maxAttempts int, baseDelay time.Duration, resetter Resetter, logger pkglog.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		isTransient: IsStalePreparedStatement,
		resetter:    resetter,
		logger:      logger,
	}
}

// WithPredicate overrides the transient-fault signature. Used in tests.
func (e *Executor) WithPredicate(isTransient func(error) bool) *Executor {
	e.isTransient = isTransient
	return e
}

// Do runs op, retrying up to maxAttempts times when the error matches the
// transient signature. The delay grows linearly (baseDelay * attempt) and
// the pool is reset before each retry. The original error is re-raised
// unchanged on exhaustion or on any non-transient failure.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !e.isTransient(err) {
			return backoff.Permanent(err)
		}
		e.logger.Warn().
			Str("operation", name).
			Int("attempt", attempt).
			Int("max_attempts", e.maxAttempts).
			Err(err).
			Msg("transient datastore error")
		return err
	}

	notify := func(_ error, _ time.Duration) {
		if e.resetter == nil {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.resetter.ResetPool(ctx); err != nil {
			e.logger.Error().Str("operation", name).Err(err).Msg("pool reset failed")
		}
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: e.baseDelay}, uint64(e.maxAttempts-1)),
		ctx,
	)
	return backoff.RetryNotify(wrapped, bo, notify)
}

// linearBackOff yields base, 2*base, 3*base, ... with no jitter.
type linearBackOff struct {
	base time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.base
}

func (l *linearBackOff) Reset() { l.n = 0 }
