// Package apperrors defines the error taxonomy for the bars collector and
// the retry policy that decides which failures are absorbed with backoff and
// which escalate to the caller.
//
// The taxonomy mirrors how failures propagate through the pipeline:
// authentication errors abort the whole run, rate-limit and transient
// errors abort one symbol after bounded retries, malformed-response and
// storage errors abort one symbol immediately.
package apperrors

import (
	"errors"
	"fmt"
)

// AuthError indicates the refresh-token exchange failed or credentials are
// invalid. It is fatal for the entire run: no further symbol can be fetched
// without a valid token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError wraps err as a fatal authentication failure.
func NewAuthError(err error) *AuthError {
	return &AuthError{Err: err}
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// RateLimitError indicates the 429 retry budget was exhausted for one
// request. Processing for the affected symbol stops; the run continues.
type RateLimitError struct {
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError indicates 5xx or network-timeout retries were exhausted.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError indicates the API returned a payload that could not
// be decoded into bars. Remaining pages for the symbol are skipped; pages
// already written stay in place.
type MalformedResponseError struct {
	Detail string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("malformed response: %s", e.Detail)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// StorageError indicates a persistence failure (disk full, permissions,
// write failure). Partitions written before the failure remain valid.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the failing operation and path.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}
