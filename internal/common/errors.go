// Package common defines shared constants and sentinel errors used across
// the syncbox engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Transient failures: the remote endpoint could not be reached or did
	// not answer in time. Retryable, consumes retry budget.
	ErrUnavailable = errors.New("server unavailable")

	// Rejected failures: the remote answered and refused the request
	// (validation failure, conflict). Retrying the same input cannot
	// succeed, so these are terminal.
	ErrRejected     = errors.New("rejected by server")
	ErrUnauthorized = errors.New("unauthorized")

	// Precondition failures: a required local reference is missing.
	// Detected before dispatch, never retried.
	ErrPrecondition = errors.New("precondition failed")

	// Programmer errors: an operation kind the dispatcher does not know.
	ErrUnknownOperation = errors.New("unknown operation type")

	// Admission errors.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// Coordinator-level errors.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// IsTransient reports whether err belongs to the retryable class. Everything
// else recorded by a queue processor is terminal for the item.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRejected reports whether the remote explicitly refused the request.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err marks a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
