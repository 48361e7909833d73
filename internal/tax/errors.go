package tax

import "errors"

var (
	// ErrBusinessNotFound is returned when the request references a business
	// the store does not know. Callers must not treat it as a zero-tax result.
	ErrBusinessNotFound = errors.New("tax: business not found")
	// ErrInvalidLocation is returned when the sale location cannot be
	// resolved to at least a country.
	ErrInvalidLocation = errors.New("tax: sale location could not be resolved")
	// ErrStoreUnavailable wraps timeouts and connectivity failures reaching
	// the rate store. It is transient; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("tax: rate store unavailable")
)
