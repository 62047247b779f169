package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/seanblong/researchagent/pkg/models"
)

// ErrEmbeddingMismatch is returned when vectors from a different embedding
// model or dimension are written to, or searched against, a collection.
var ErrEmbeddingMismatch = errors.New("embedding model/dimension does not match collection")

// VectorStore persists named collections of embedded chunks.
type VectorStore interface {
	// Collection reports the collection header. found is false when the
	// collection has never been written; read paths never create storage.
	Collection(ctx context.Context, name string) (c models.Collection, found bool, err error)
	// EnsureCollection creates the collection on first use and otherwise
	// checks that model and dim match what it was created with.
	EnsureCollection(ctx context.Context, name, embedModel string, dim int) (models.Collection, error)
	// AddEntries upserts entries by chunk ID.
	AddEntries(ctx context.Context, collection string, entries []models.Entry) error
	// Search returns up to k entries ordered by descending cosine similarity.
	Search(ctx context.Context, collection string, vec []float32, k int) ([]models.SearchResult, error)
	// ListCollections returns collection names in order.
	ListCollections(ctx context.Context) ([]string, error)
	Close()
}

// Open returns a Postgres store when databaseURL is set and otherwise the
// on-disk SQLite store rooted at dir.
func Open(ctx context.Context, databaseURL, dir string) (VectorStore, error) {
	if databaseURL == "" {
		return NewSQLite(dir), nil
	}
	pg, err := NewPostgres(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return pg, nil
}

// CheckCompatible verifies that an embedder producing model/dim vectors may
// use collection c.
func CheckCompatible(c models.Collection, embedModel string, dim int) error {
	if c.Dim != dim || c.EmbedModel != embedModel {
		return fmt.Errorf("%w: collection %q holds %s (%d dims), got %s (%d dims)",
			ErrEmbeddingMismatch, c.Name, c.EmbedModel, c.Dim, embedModel, dim)
	}
	return nil
}

func checkEntries(c models.Collection, entries []models.Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != c.Dim {
			return fmt.Errorf("%w: entry %s has %d dims, collection %q has %d",
				ErrEmbeddingMismatch, e.Chunk.ID, len(e.Embedding), c.Name, c.Dim)
		}
	}
	return nil
}
