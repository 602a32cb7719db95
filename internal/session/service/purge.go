package service

import (
	"context"
	"log"
	"time"
)

// ExpiredDeleter removes session records past their expiry (e.g. a session repository).
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PurgeExpired deletes expired session records now and then every interval until ctx is done.
// Tokens of purged sessions already fail Resolve; this only reclaims storage.
func PurgeExpired(ctx context.Context, sessions ExpiredDeleter, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := sessions.DeleteExpired(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Printf("session purge: %v", err)
		case n > 0:
			log.Printf("session purge: removed %d expired sessions", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
