package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/researchagent/internal/ai"
	"github.com/seanblong/researchagent/internal/store"
	"github.com/seanblong/researchagent/pkg/models"
)

// DefaultK is the number of passages returned when the caller asks for none.
const DefaultK = 3

// Response carries ranked results. Found is false when the collection has
// never been written, which callers should report rather than treat as an error.
type Response struct {
	Results []models.SearchResult `json:"results"`
	Found   bool                  `json:"found"`
}

// Passages returns the result texts in rank order.
func (r Response) Passages() []string {
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Chunk.Content)
	}
	return out
}

type Service struct {
	Embedder   ai.Embedder
	Store      store.VectorStore
	Collection string
}

// NewService creates a new search service over one collection.
func NewService(embedder ai.Embedder, s store.VectorStore, collection string) *Service {
	return &Service{
		Embedder:   embedder,
		Store:      s,
		Collection: collection,
	}
}

func (s *Service) Query(ctx context.Context, q string, k int) (Response, error) {
	if k <= 0 {
		k = DefaultK
	}
	q = strings.TrimSpace(q)

	col, found, err := s.Store.Collection(ctx, s.Collection)
	if err != nil {
		return Response{}, fmt.Errorf("reading collection %q: %w", s.Collection, err)
	}
	if !found {
		log.Warn().Str("collection", s.Collection).Msg("collection not found, ingest documents first")
		return Response{Results: []models.SearchResult{}}, nil
	}

	vec, err := s.Embedder.Embed(ctx, q)
	if err != nil {
		return Response{Found: true}, fmt.Errorf("embedding query: %w", err)
	}
	if err := store.CheckCompatible(col, s.Embedder.Model(), len(vec)); err != nil {
		return Response{Found: true}, err
	}

	res, err := s.Store.Search(ctx, s.Collection, vec, k)
	if err != nil {
		return Response{Found: true}, err
	}
	if len(res) == 0 {
		log.Warn().Str("collection", s.Collection).Str("query", q).Msg("no documents retrieved")
		res = []models.SearchResult{}
	}
	return Response{Results: res, Found: true}, nil
}
