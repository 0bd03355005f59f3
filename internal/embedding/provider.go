// Package embedding defines the boundary to the external text→vector
// provider and a bounded-concurrency batch helper for ingestion.
package embedding

import (
	"context"
	"errors"
)

// ErrProviderUnavailable is returned by providers that cannot serve a
// request. Callers propagate it; there is no degraded keyword-only mode.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Provider is the external embedding service. Implementations may cache by
// content hash with a TTL; that is entirely their concern.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension this provider produces.
	Dimension() int
}
