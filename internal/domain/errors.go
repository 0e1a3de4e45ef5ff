package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Conflict-class errors wrap ErrConflict so callers can
// classify with a single errors.Is check while still telling the cases apart.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")

	ErrNoAvailability = fmt.Errorf("%w: insufficient availability", ErrConflict)
	ErrPriceMismatch  = fmt.Errorf("%w: price mismatch", ErrConflict)
	ErrRetryLimit     = fmt.Errorf("%w: retry ceiling reached", ErrConflict)

	// ErrProviderUnavailable marks a provider call that could not complete
	// at all (timeout, network). A completed call that did not achieve its
	// goal is reported as a degraded result, not an error.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
