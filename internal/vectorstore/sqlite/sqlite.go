// Package sqlite is the directory-backed persistent Storage. Each collection
// lives in its own database file under the persistence directory and
// survives process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"librarian/internal/domain"
)

// Config locates the collection on disk.
type Config struct {
	// Path is the persistence directory, created if missing.
	Path string
	// Collection names the database file within Path.
	Collection string
}

// Storage wraps a SQLite database holding one collection of documents.
type Storage struct {
	db *sql.DB
}

// Open opens or creates the collection. Safe to call repeatedly.
func Open(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: empty persistence path")
	}
	if cfg.Collection == "" {
		return nil, errors.New("sqlite: empty collection name")
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create %s: %w", cfg.Path, err)
	}
	file := filepath.Join(cfg.Path, cfg.Collection+".db")
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", file, err)
	}
	// SQLite doesn't support concurrent writers.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the underlying database.
func (s *Storage) Close() error { return s.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			document      TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			vector        BLOB NOT NULL
		);
	`)
	return err
}

// Count returns the number of stored documents.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Add bulk-inserts documents in a single transaction. A duplicate id aborts
// the whole batch; nothing is overwritten.
func (s *Storage) Add(ctx context.Context, docs []domain.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return errors.New("sqlite: documents and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, document, metadata_json, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: marshal metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text, string(meta), encodeVector(vectors[i])); err != nil {
			tx.Rollback()
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("sqlite: duplicate document id %q", d.ID)
			}
			return fmt.Errorf("sqlite: insert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Search scans the collection and returns up to topK passages ordered by
// ascending cosine distance. Brute force is fine at catalog scale.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, document, metadata_json, vector FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select: %w", err)
	}
	defer rows.Close()

	var hits []domain.Passage
	for rows.Next() {
		var (
			id, doc, metaJSON string
			blob              []byte
		)
		if err := rows.Scan(&id, &doc, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		meta := make(map[string]string)
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("sqlite: metadata for %s: %w", id, err)
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: vector for %s: %w", id, err)
		}
		hits = append(hits, domain.Passage{
			ID:       id,
			Text:     doc,
			Metadata: meta,
			Distance: cosineDistance(v, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("blob length %d not a multiple of 8", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.BigEndian.Uint64(b[i*8:]))
	}
	return v, nil
}

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
