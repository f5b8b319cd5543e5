package runstate

import "errors"

// Snapshot load failures, distinguished so the truth selector can
// report a precise degraded reason.
var (
	ErrStateMissing          = errors.New("materialized-state-missing")
	ErrStateInvalid          = errors.New("materialized-state-invalid")
	ErrStateUnexpectedShape  = errors.New("materialized-state-unexpected-shape")
	ErrStateMissingTimestamp = errors.New("materialized-state-missing-timestamp")
)
