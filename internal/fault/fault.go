// Package fault holds the error vocabulary shared by the generator core.
//
// Resolution and validity failures are recoverable: the caller discards the
// attempt and retries. Configuration errors and determinism violations are
// programmer errors and must not be retried.
package fault

import "errors"

var (
	ErrResolution    = errors.New("resolution failure")
	ErrValidity      = errors.New("validity failure")
	ErrConfiguration = errors.New("configuration error")
	ErrDeterminism   = errors.New("determinism violation")
)

// Recoverable reports whether err only invalidates the current attempt.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrDeterminism) {
		return false
	}
	return errors.Is(err, ErrResolution) || errors.Is(err, ErrValidity)
}
