package features

import "errors"

var (
	// ErrFeatureNotFound indicates no feature with that title exists in the scan.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrDuplicateTitle rejects a second feature with the same title in
	// one scan, keeping title lookups unambiguous.
	ErrDuplicateTitle = errors.New("duplicate feature title")
)
