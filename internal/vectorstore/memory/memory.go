// Package memory is an in-memory Storage using brute-force cosine distance.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"librarian/internal/domain"
)

// Storage keeps documents and vectors in parallel slices.
type Storage struct {
	mu      sync.RWMutex
	docs    []domain.Document
	vectors [][]float64
	ids     map[string]struct{}
}

// NewStorage creates an empty in-memory store.
func NewStorage() *Storage {
	return &Storage{ids: make(map[string]struct{})}
}

// Count returns the number of stored documents.
func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Add bulk-inserts documents. Duplicate ids are rejected.
func (s *Storage) Add(ctx context.Context, docs []domain.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return errors.New("memory: documents and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if _, exists := s.ids[d.ID]; exists {
			return fmt.Errorf("memory: duplicate document id %q", d.ID)
		}
	}
	dim := 0
	if len(s.vectors) > 0 {
		dim = len(s.vectors[0])
	} else if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("memory: vector dimension %d, want %d", len(v), dim)
		}
	}
	for i, d := range docs {
		s.ids[d.ID] = struct{}{}
		s.docs = append(s.docs, d)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

// Search returns up to topK passages ordered by ascending cosine distance.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	type scored struct {
		idx      int
		distance float64
	}
	hits := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = scored{idx: i, distance: cosineDistance(v, vector)}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if topK > len(hits) {
		topK = len(hits)
	}
	out := make([]domain.Passage, 0, topK)
	for _, h := range hits[:topK] {
		d := s.docs[h.idx]
		out = append(out, domain.Passage{
			ID:       d.ID,
			Text:     d.Text,
			Metadata: d.Metadata,
			Distance: h.distance,
		})
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Storage) Close() error { return nil }

func cosineDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
