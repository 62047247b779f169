package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/seanblong/researchagent/internal/dedup"
	"github.com/seanblong/researchagent/pkg/models"
)

// DBFile is the database file kept inside the store directory.
const DBFile = "collections.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
  name        TEXT PRIMARY KEY,
  embed_model TEXT NOT NULL,
  dim         INTEGER NOT NULL,
  created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
  id           TEXT PRIMARY KEY,
  collection   TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
  source       TEXT NOT NULL,
  page         INTEGER NOT NULL DEFAULT 0,
  char_offset  INTEGER NOT NULL DEFAULT 0,
  content      TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  embedding    BLOB NOT NULL,
  created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS entries_collection_idx ON entries (collection);
`

// SQLite is a directory-backed VectorStore. Nothing touches the disk until
// the first write; reads against a missing directory report "not found".
type SQLite struct {
	dir  string
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLite returns a store rooted at dir (e.g. data/chroma_store).
func NewSQLite(dir string) *SQLite {
	return &SQLite{dir: dir, path: filepath.Join(dir, DBFile)}
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

// handle returns the open database. When create is false and the database
// file does not exist, it returns (nil, nil).
func (s *SQLite) handle(create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	if !create {
		if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		} else if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	s.db = db
	return db, nil
}

// ListCollections returns the names of all collections, or none when the
// store has never been written.
func (s *SQLite) ListCollections(ctx context.Context) ([]string, error) {
	db, err := s.handle(false)
	if err != nil || db == nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
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

func (s *SQLite) Collection(ctx context.Context, name string) (models.Collection, bool, error) {
	db, err := s.handle(false)
	if err != nil || db == nil {
		return models.Collection{}, false, err
	}

	const q = `
		SELECT c.name, c.embed_model, c.dim, c.created_at,
		       (SELECT COUNT(*) FROM entries e WHERE e.collection = c.name)
		FROM collections c WHERE c.name = ?`
	var c models.Collection
	var created int64
	err = db.QueryRowContext(ctx, q, name).Scan(&c.Name, &c.EmbedModel, &c.Dim, &created, &c.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Collection{}, false, nil
	}
	if err != nil {
		return models.Collection{}, false, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, true, nil
}

func (s *SQLite) EnsureCollection(ctx context.Context, name, embedModel string, dim int) (models.Collection, error) {
	db, err := s.handle(true)
	if err != nil {
		return models.Collection{}, err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO collections (name, embed_model, dim, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, embedModel, dim, time.Now().Unix())
	if err != nil {
		return models.Collection{}, fmt.Errorf("creating collection: %w", err)
	}

	c, _, err := s.Collection(ctx, name)
	if err != nil {
		return models.Collection{}, err
	}
	return c, CheckCompatible(c, embedModel, dim)
}

func (s *SQLite) AddEntries(ctx context.Context, collection string, entries []models.Entry) error {
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

	db, err := s.handle(true)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, collection, source, page, char_offset, content, content_hash, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content      = excluded.content,
			content_hash = excluded.content_hash,
			embedding    = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, e := range entries {
		ch := e.Chunk
		if _, err := stmt.ExecContext(ctx, ch.ID, collection, ch.Source, ch.Page, ch.Offset,
			ch.Content, ch.ContentHash, float32SliceToBytes(e.Embedding), now); err != nil {
			return fmt.Errorf("inserting entry %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// Search scores every entry in the collection; collections here are small,
// local, single-user indexes.
func (s *SQLite) Search(ctx context.Context, collection string, vec []float32, k int) ([]models.SearchResult, error) {
	db, err := s.handle(false)
	if err != nil || db == nil || k <= 0 {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, source, page, char_offset, content, content_hash, created_at, embedding
		FROM entries WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var c models.Chunk
		var created int64
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Offset, &c.Content, &c.ContentHash, &created, &blob); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		c.Collection = collection
		c.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, models.SearchResult{Chunk: c, Score: dedup.Cosine(vec, bytesToFloat32Slice(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *SQLite) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to close store")
	}
	s.db = nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
