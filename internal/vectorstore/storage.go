package vectorstore

import (
	"context"

	"librarian/internal/domain"
)

// Storage persists documents with their vectors and supports
// nearest-neighbour search by cosine distance.
//
// Add is a bulk insert and must reject duplicate ids rather than overwrite.
// Search returns up to topK passages nearest-first; an empty index yields an
// empty slice, not an error.
type Storage interface {
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, docs []domain.Document, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error)
	Close() error
}
