package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes worth one more try: serialization failure,
// deadlock detected, lock not available.
var transientCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientCodes[pgErr.Code]
		return ok
	}
	return false
}

// withRetry runs fn, retrying on transient store contention with a
// short backoff. Non-transient errors pass through untouched. When
// every attempt fails on contention the caller gets ErrStoreBusy
// wrapping the last error.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrStoreBusy, lastErr)
}
