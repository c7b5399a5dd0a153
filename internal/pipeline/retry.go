package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raine/video-lister/internal/llm"
	"github.com/rs/zerolog/log"
)

// callOnce runs fn with the per-call timeout applied.
func callOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// callWithRetry runs fn with the per-call timeout, retrying transport
// failures with exponential backoff. Errors llm.Retryable rejects are
// returned immediately.
func callWithRetry[T any](ctx context.Context, opts Options, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInitialInterval

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := callOnce(ctx, opts.CallTimeout, fn)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !llm.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retryIn", next).
			Msg("model call failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(opts.MaxRetries, 0))), ctx)
	return backoff.RetryNotifyWithData(operation, policy, notify)
}
