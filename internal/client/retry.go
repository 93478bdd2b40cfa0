package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// DefaultRetryAttempts is the number of tries used by callers that retry reads.
const DefaultRetryAttempts = 3

// Retryable reports whether a failed call may succeed when repeated.
// Only network failures and server errors qualify.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindServerError:
		return true
	default:
		return false
	}
}

// Retry calls op until it succeeds, fails with an error that is not Retryable,
// or maxTries attempts were made. The client never retries on its own; use this
// only for idempotent calls.
func Retry[T any](ctx context.Context, maxTries uint, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			zerolog.Ctx(ctx).Debug().Err(err).Dur("next", next).Msg("retrying portal api call")
		}),
	)
}
