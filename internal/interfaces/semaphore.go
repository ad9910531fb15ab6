package interfaces

import "context"

// SemaphoreStats exposes slot usage for observability.
type SemaphoreStats struct {
	Name      string `json:"name"`
	Active    int64  `json:"active"`
	Max       int64  `json:"max"`
	Available int64  `json:"available"`
}

// Semaphore is the cluster-wide cap on simultaneously executing DB-heavy
// pipeline steps. Held only around database reads/writes, never around
// network calls.
type Semaphore interface {
	// Acquire blocks (polling) until a slot is free or the configured
	// timeout elapses, returning a holder token on success.
	Acquire(ctx context.Context) (token string, err error)
	// Release frees the slot. Safe to call more than once per token.
	Release(ctx context.Context, token string) error
	Stats(ctx context.Context) (SemaphoreStats, error)
	// Reset is an administrative escape hatch that clears the counter
	// and all holder tokens.
	Reset(ctx context.Context) error
}
