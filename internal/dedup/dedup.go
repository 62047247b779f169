// Package dedup drops chunks whose embeddings are near-duplicates of chunks
// already kept.
package dedup

import (
	"math"

	"github.com/seanblong/researchagent/pkg/models"
)

// DefaultThreshold matches the usual redundancy cutoff for sentence embeddings.
const DefaultThreshold = 0.95

// Filter keeps the first of any group of entries whose embeddings have cosine
// similarity >= Threshold.
type Filter struct {
	Threshold float64
}

func New(threshold float64) *Filter {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Filter{Threshold: threshold}
}

// Apply returns the retained entries in their original order.
func (f *Filter) Apply(entries []models.Entry) []models.Entry {
	kept := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		redundant := false
		for _, k := range kept {
			if Cosine(e.Embedding, k.Embedding) >= f.Threshold {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, e)
		}
	}
	return kept
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
