package sim

import "errors"

// Fatal errors. Each aborts the run before the first tick is simulated.
var (
	// ErrMissingReferenceData means a unit's class has no usable limits.
	ErrMissingReferenceData = errors.New("missing reference data")
	// ErrInvalidSnapshot means the initial fleet snapshot is inconsistent.
	ErrInvalidSnapshot = errors.New("invalid fleet snapshot")
	// ErrInvalidPlan means the usage or quota plan cannot drive the run.
	ErrInvalidPlan = errors.New("invalid plan")
)
