package registry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"airwaves/api/internal/store"
)

// runInTx runs fn in a store transaction, retrying lost optimistic races.
// Exhausted retries surface as ErrTransient.
func (r *Registry) runInTx(ctx context.Context, op string, fn func(store.Tx) error) error {
	attempts := r.txRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = r.store.RunInTx(ctx, fn)
		if lastErr == nil || !errors.Is(lastErr, store.ErrTxConflict) {
			return lastErr
		}
		r.logger.Warn("transaction conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * r.retryBackoff):
			}
		}
	}
	return &Error{
		Kind:    ErrTransient,
		Code:    CodeStoreContention,
		Message: "the registry is busy, try again",
		Err:     lastErr,
	}
}
