package signer

import (
	"context"
	"time"
)

// withBackoff retries fn up to maxAttempts times with exponential backoff
// (base, 2×base, 4×base, ...), stopping early on ctx cancellation. Used by
// the remote HSM backends for transient network failures, per spec §4.9
// ("signer I/O failures ... retried with exponential backoff up to a small
// bound").
func withBackoff(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base * time.Duration(1<<attempt)):
		}
	}
	return err
}
