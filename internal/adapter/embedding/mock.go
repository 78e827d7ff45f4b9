package embedding

import "context"

// MockEmbedder produces deterministic vectors from rune values. It exists
// for offline runs and tests; identical text always embeds identically.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	i := 0
	for _, r := range text {
		vec[i%e.dimension] += float32(r) / 1000.0
		i++
	}
	return vec, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ProviderID() string {
	return "mock"
}
