package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/researchagent/pkg/models"
)

// Postgres stores collections in a pgvector-enabled database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at url. Call Migrate before use.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: p}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

// Migrate applies the schema. The embedding column is dimensionless so one
// database can hold collections built with different models.
func (s *Postgres) Migrate(ctx context.Context) error {
	const q = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS collections (
  name        TEXT PRIMARY KEY,
  embed_model TEXT NOT NULL,
  dim         INT NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entries (
  id           TEXT PRIMARY KEY,
  collection   TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
  source       TEXT NOT NULL,
  page         INT NOT NULL DEFAULT 0,
  char_offset  INT NOT NULL DEFAULT 0,
  content      TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  embedding    vector NOT NULL,
  created_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS entries_collection_idx
  ON entries (collection);

CREATE INDEX IF NOT EXISTS entries_hash_idx
  ON entries (content_hash);
`
	_, err := s.pool.Exec(ctx, q)
	return err
}

// Ping checks the database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// ListCollections returns the names of all collections.
func (s *Postgres) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Postgres) Collection(ctx context.Context, name string) (models.Collection, bool, error) {
	const q = `
      SELECT c.name, c.embed_model, c.dim, c.created_at,
             (SELECT count(*) FROM entries e WHERE e.collection = c.name)
      FROM collections c
      WHERE c.name = $1`
	var c models.Collection
	err := s.pool.QueryRow(ctx, q, name).Scan(&c.Name, &c.EmbedModel, &c.Dim, &c.CreatedAt, &c.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Collection{}, false, nil
		}
		return models.Collection{}, false, err
	}
	return c, true, nil
}

func (s *Postgres) EnsureCollection(ctx context.Context, name, embedModel string, dim int) (models.Collection, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collections (name, embed_model, dim) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`, name, embedModel, dim)
	if err != nil {
		return models.Collection{}, fmt.Errorf("creating collection: %w", err)
	}
	c, _, err := s.Collection(ctx, name)
	if err != nil {
		return models.Collection{}, err
	}
	return c, CheckCompatible(c, embedModel, dim)
}

func (s *Postgres) AddEntries(ctx context.Context, collection string, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	c, found, err := s.Collection(ctx, collection)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	if err := checkEntries(c, entries); err != nil {
		return err
	}

	const q = `
		INSERT INTO entries (
			id, collection, source, page, char_offset, content, content_hash, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
		ON CONFLICT (id) DO UPDATE SET
			content      = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			embedding    = EXCLUDED.embedding,
			created_at   = entries.created_at;`

	batch := &pgx.Batch{}
	for _, e := range entries {
		ch := e.Chunk
		batch.Queue(q, ch.ID, collection, ch.Source, ch.Page, ch.Offset,
			ch.Content, ch.ContentHash, pgvector.NewVector(e.Embedding))
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *Postgres) Search(ctx context.Context, collection string, vec []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	const q = `
SELECT id, source, page, char_offset, content, content_hash, created_at,
       1 - (embedding <=> $2) AS score
FROM entries
WHERE collection = $1
ORDER BY embedding <=> $2
LIMIT $3;`

	rows, err := s.pool.Query(ctx, q, collection, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var c models.Chunk
		var score float64
		if err := rows.Scan(
			&c.ID, &c.Source, &c.Page, &c.Offset, &c.Content, &c.ContentHash, &c.CreatedAt,
			&score,
		); err != nil {
			return nil, err
		}
		c.Collection = collection
		out = append(out, models.SearchResult{Chunk: c, Score: score})
	}
	return out, rows.Err()
}
