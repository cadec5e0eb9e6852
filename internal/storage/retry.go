package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// RetryConfig configures retry behavior for writes that hit a locked database.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig retries three times, backing off 100ms, 200ms, 400ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
	}
}

// isLockedError reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func isLockedError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// withRetry runs fn, retrying with exponential backoff while it fails with a lock error.
// Other errors are returned immediately.
func (s *SQLiteStorage) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := s.retry.InitialBackoff

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				s.logger.Info("database write succeeded on retry", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if !isLockedError(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < s.retry.MaxRetries {
			s.logger.Debug("database locked, retrying",
				zap.String("op", op),
				zap.Duration("backoff", backoff),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.retry.MaxBackoff {
				backoff = s.retry.MaxBackoff
			}
		}
	}

	s.logger.Warn("database write failed after retries", zap.String("op", op), zap.Error(lastErr))
	return lastErr
}
