package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seanblong/researchagent/internal/ai"
	"github.com/seanblong/researchagent/internal/chunker"
	"github.com/seanblong/researchagent/internal/dedup"
	"github.com/seanblong/researchagent/internal/loader"
	"github.com/seanblong/researchagent/internal/store"
	"github.com/seanblong/researchagent/pkg/models"
)

const (
	DefaultCollection = "default"
	DefaultWorkers    = 4
)

// Result summarises one ingestion run.
type Result struct {
	Files       int  `json:"files"`
	Skipped     int  `json:"skipped"`
	Documents   int  `json:"documents"`
	Chunks      int  `json:"chunks"`
	Retained    int  `json:"retained"`
	NoDocuments bool `json:"no_documents"`
}

// Ingester loads files, chunks and embeds them, drops near-duplicates and
// appends what remains to a collection.
type Ingester struct {
	Store      store.VectorStore
	Embedder   ai.Embedder
	Loader     *loader.Loader
	Splitter   *chunker.Splitter
	Filter     *dedup.Filter
	Collection string
	Workers    int
}

type Option func(*Ingester)

func WithCollection(name string) Option {
	return func(ix *Ingester) {
		if name != "" {
			ix.Collection = name
		}
	}
}

func WithSplitter(s *chunker.Splitter) Option {
	return func(ix *Ingester) { ix.Splitter = s }
}

func WithFilter(f *dedup.Filter) Option {
	return func(ix *Ingester) { ix.Filter = f }
}

func WithLoader(l *loader.Loader) Option {
	return func(ix *Ingester) { ix.Loader = l }
}

// WithWorkers bounds how many embedding calls run at once.
func WithWorkers(n int) Option {
	return func(ix *Ingester) {
		if n > 0 {
			ix.Workers = n
		}
	}
}

func New(s store.VectorStore, e ai.Embedder, opts ...Option) *Ingester {
	ix := &Ingester{
		Store:      s,
		Embedder:   e,
		Loader:     loader.New(),
		Splitter:   chunker.New(),
		Filter:     dedup.New(dedup.DefaultThreshold),
		Collection: DefaultCollection,
		Workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// hashContent returns the SHA-1 hash of the given content as a hex string.
func hashContent(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// chunkID is stable for the same chunk of the same file, so re-ingesting
// replaces rather than duplicates it.
func chunkID(collection string, c models.Chunk) string {
	key := collection + "\x00" + c.Source + "\x00" + strconv.Itoa(c.Page) + "\x00" +
		strconv.Itoa(c.Offset) + "\x00" + c.ContentHash
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Ingest processes paths (files or directories). Unreadable and unsupported
// files are logged and skipped. When nothing loads, the store is not touched.
func (ix *Ingester) Ingest(ctx context.Context, paths []string) (Result, error) {
	var res Result

	files := ix.Loader.Resolve(paths)
	res.Files = len(files)

	var docs []models.Document
	for _, f := range files {
		if !loader.Supported(f) {
			log.Warn().Str("path", f).Msg("unsupported file type, skipping")
			res.Skipped++
			continue
		}
		loaded, err := ix.Loader.Load(ctx, f)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			log.Warn().Err(err).Str("path", f).Msg("failed to load file, skipping")
			res.Skipped++
			continue
		}
		log.Info().Str("path", f).Int("documents", len(loaded)).Msg("loaded file")
		docs = append(docs, loaded...)
	}
	res.Documents = len(docs)

	if len(docs) == 0 {
		log.Warn().Int("files", res.Files).Msg("no documents loaded, nothing to ingest")
		res.NoDocuments = true
		return res, nil
	}

	var chunks []models.Chunk
	for _, d := range docs {
		for _, c := range ix.Splitter.Split(d) {
			c.Collection = ix.Collection
			c.ContentHash = hashContent(c.Content)
			c.ID = chunkID(ix.Collection, c)
			chunks = append(chunks, c)
		}
	}
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		log.Warn().Int("documents", res.Documents).Msg("documents contained no text")
		return res, nil
	}

	entries, err := ix.embed(ctx, chunks)
	if err != nil {
		return res, err
	}

	kept := ix.Filter.Apply(entries)
	log.Info().
		Int("chunks", len(entries)).
		Int("retained", len(kept)).
		Msg("redundancy filter applied")

	dim := len(kept[0].Embedding)
	if _, err := ix.Store.EnsureCollection(ctx, ix.Collection, ix.Embedder.Model(), dim); err != nil {
		return res, err
	}
	if err := ix.Store.AddEntries(ctx, ix.Collection, kept); err != nil {
		return res, fmt.Errorf("storing entries: %w", err)
	}
	res.Retained = len(kept)

	log.Info().
		Str("collection", ix.Collection).
		Int("retained", res.Retained).
		Msg("ingestion complete")
	return res, nil
}

// embed computes one embedding per chunk, in parallel, preserving order.
func (ix *Ingester) embed(ctx context.Context, chunks []models.Chunk) ([]models.Entry, error) {
	entries := make([]models.Entry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.Workers)

	for i, c := range chunks {
		g.Go(func() error {
			vec, err := ix.Embedder.Embed(gctx, c.Content)
			if err != nil {
				return fmt.Errorf("embedding chunk %d of %s: %w", i, c.Source, err)
			}
			entries[i] = models.Entry{Chunk: c, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
