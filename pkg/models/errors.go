package models

import "errors"

// Error taxonomy shared across components. Handlers map these onto HTTP
// status codes; everything else wraps them with fmt.Errorf("...: %w", err).
var (
	// ErrNotFound means the session id is unknown. Recoverable: the caller
	// resubmits with a valid id.
	ErrNotFound = errors.New("session not found")

	// ErrSessionBusy means another operation currently owns the session.
	ErrSessionBusy = errors.New("session busy")

	// ErrAuthenticationFailed means a credential or code was rejected. The
	// session is torn down and the caller must restart the login flow.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrOracleUnavailable means the classification call itself errored.
	// It aborts the current poll or step but never crashes the process.
	ErrOracleUnavailable = errors.New("classification oracle unavailable")

	// ErrSessionLimit means the concurrent session cap has been reached.
	ErrSessionLimit = errors.New("session limit reached")
)
