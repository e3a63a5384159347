package compliance

import "errors"

// Sentinel errors for the pulse pipeline failure taxonomy. Callers check
// these with errors.Is(); each one marks the scope at which a failure was
// contained rather than propagated.
var (
	// ErrValidation indicates missing or malformed identifiers, rejected
	// before any external call. The only error class that aborts a run.
	ErrValidation = errors.New("validation failed")

	// ErrTool indicates a tool adapter failure. Absorbed via fallback data;
	// never propagates past the adapter boundary.
	ErrTool = errors.New("tool call failed")

	// ErrRetrieval indicates the similarity search failed. Snapshot
	// generation proceeds with empty supplementary context.
	ErrRetrieval = errors.New("reference retrieval failed")

	// ErrPersistence indicates the digest failed to save. The computed
	// digest is still returned to the caller.
	ErrPersistence = errors.New("digest persistence failed")
)
