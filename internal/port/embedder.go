package port

import "context"

// Embedder maps text to a fixed-dimension vector. The same embedder
// identity must be used at build time and query time; the fingerprint
// enforces this.
type Embedder interface {
	// Embed generates the embedding for a single text. The call is
	// bounded by the context deadline.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ProviderID identifies the provider and model, e.g.
	// "openai/text-embedding-3-small". Recorded in the fingerprint.
	ProviderID() string
}
