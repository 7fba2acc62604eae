package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientDetail marks that only summary data was available, so no
// per-section ranking exists. It is a condition, not a failure.
var ErrInsufficientDetail = errors.New("insufficient detail: only summary data available")

// AuthError reports rejected or expired credentials. It is never retried.
type AuthError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (HTTP %d): %s", e.Op, e.StatusCode, e.Message)
}

// NotFoundError reports a missing milestone, run or other upstream entity.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// FetchError reports a transient network, timeout or server failure that
// persisted through all retry attempts.
type FetchError struct {
	Op         string
	Attempts   int
	StatusCode int // Zero when no response was received.
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch failed after %d attempt(s) (HTTP %d): %v", e.Op, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fetch failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RateLimitError reports that the upstream kept throttling after the bounded
// cooldown, or demanded a cooldown longer than the configured maximum.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	MaxWait    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (retry after %s, max wait %s)", e.Op, e.RetryAfter, e.MaxWait)
}

// InsufficientDetailError carries which run lacked per-test detail.
type InsufficientDetailError struct {
	RunID   int64
	RunName string
}

func (e *InsufficientDetailError) Error() string {
	return fmt.Sprintf("run %d (%s): %v", e.RunID, e.RunName, ErrInsufficientDetail)
}

func (e *InsufficientDetailError) Unwrap() error { return ErrInsufficientDetail }

// CacheCorruptionError reports an unreadable cache entry. Stores downgrade it
// to a miss and never hand it to callers.
type CacheCorruptionError struct {
	Key string
	Err error
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cache entry %s is corrupt: %v", e.Key, e.Err)
}

func (e *CacheCorruptionError) Unwrap() error { return e.Err }

// IsAuth reports whether err is or wraps an *AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
