package domain

import "errors"

// Failure classes callers are expected to branch on with errors.Is.
var (
	// ErrConfiguration indicates invalid chunking or embedding parameters.
	// Never retried; surfaced before any build or query work starts.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrProvider indicates the embedding provider call failed or timed
	// out. Retried per chunk during builds, surfaced immediately during
	// queries.
	ErrProvider = errors.New("embedding provider failure")

	// ErrNotIndexed indicates no persisted snapshot matches the requested
	// fingerprint. Recovered by building, not a terminal failure.
	ErrNotIndexed = errors.New("not indexed")

	// ErrInvalidQuery indicates a malformed query. Rejected before any
	// provider call is made.
	ErrInvalidQuery = errors.New("invalid query")
)
