package shared

import "fmt"

var (
	// Run-level failures. Only these two abort a run.
	ErrSourceResolution = fmt.Errorf("source resolution failed")
	ErrConfiguration    = fmt.Errorf("configuration failure")

	// Absorbed failures, surfaced as log events only
	ErrItemFailure     = fmt.Errorf("item failed")
	ErrResourceRelease = fmt.Errorf("resource release failed")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("not found")
	ErrMalformedResponse  = fmt.Errorf("malformed response")

	// Input validation errors
	ErrInvalidInput         = fmt.Errorf("invalid input")
	ErrInvalidArgument      = fmt.Errorf("invalid argument")
	ErrUnsupportedReference = fmt.Errorf("unsupported source reference")

	ErrCancelled = fmt.Errorf("run cancelled")
)
