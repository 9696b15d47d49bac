package scans

import "errors"

var (
	// ErrInvalidInput indicates a malformed target URL or request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNavigationFailed indicates the browser could not load the target page.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrSynthesisFailed wraps model-call failures (timeout, rate limit, auth).
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrSynthesisSchema indicates the model output did not match the
	// required feature schema. Never coerced, always a hard stop.
	ErrSynthesisSchema = errors.New("synthesis schema violation")

	// ErrScanNotFound indicates no scan with that id exists for the caller.
	ErrScanNotFound = errors.New("scan not found")

	// ErrScanBusy rejects a re-scan while a pipeline run is in flight.
	ErrScanBusy = errors.New("scan already processing")

	// ErrUnauthorized rejects operations on scans the caller does not own.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition rejects status regressions, e.g. processing → pending.
	ErrInvalidTransition = errors.New("invalid status transition")
)
