package app

import (
	"context"
	"errors"
	"time"

	"github.com/wavethanapon/shop/internal/domain"
)

const defaultOpTimeout = 5 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultOpTimeout
	}
	return context.WithTimeout(ctx, d)
}

// classify turns a blown deadline into a TransientError. Business errors and
// already-classified failures pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsRetryable(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError(op, err)
	}
	return err
}
