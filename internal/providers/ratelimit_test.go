package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows calls within burst", func(t *testing.T) {
		limiter := NewRateLimiter(100)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	})

	t.Run("429 drains the bucket", func(t *testing.T) {
		// At 0.01 rps the next token after a drain is ~100s away,
		// so a short deadline must fire first.
		limiter := NewRateLimiter(0.01)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		cancel()

		limiter.Record429()

		ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := limiter.Wait(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Wait() after 429 = %v, want deadline exceeded", err)
		}
	})
}
