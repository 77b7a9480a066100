package embedding

import "context"

// Embedder converts free text into fixed-length numeric vectors.
// EmbedMany preserves input order and returns exactly one vector per input;
// dimensionality is constant for a configured model. Failures surface to the
// caller unretried beyond what the implementation does internally.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}
