package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/deckgen/internal/llm"
)

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// retryStream opens a model stream, retrying retryable failures that happen
// before the first chunk. Once text has been delivered a failure is final,
// since replaying would duplicate slides.
func retryStream(ctx context.Context, model llm.Streamer, req llm.Request, backoff func(int) time.Duration, log *slog.Logger) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for attempt := 0; ; attempt++ {
			started := false
			var failure error
			for chunk, err := range model.Stream(ctx, req) {
				if err != nil {
					failure = err
					break
				}
				started = true
				if !yield(chunk, nil) {
					return
				}
			}
			if failure == nil {
				return
			}
			if started || !llm.IsRetryable(failure) || attempt+1 >= MaxRetries {
				yield("", failure)
				return
			}
			log.Warn("retryable model error", "attempt", attempt, "error", failure)
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
	}
}
