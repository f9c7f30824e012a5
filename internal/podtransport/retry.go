package podtransport

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// WithRetry runs op under an exponential backoff bounded by ctx, for
// transient RPC failures. It gives up once ctx is done.
func WithRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(op, policy)
}
