// Package chunker splits document text into bounded, overlapping chunks.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/seanblong/researchagent/pkg/models"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by consecutive chunks.
const DefaultChunkOverlap = 150

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter recursively splits text on the coarsest separator that keeps
// pieces under the chunk size, then merges pieces back up to the limit
// while carrying an overlap between neighbours.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator list. The empty string should come last.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		if len(seps) > 0 {
			s.separators = seps
		}
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

func (s *Splitter) ChunkSize() int { return s.chunkSize }
func (s *Splitter) Overlap() int   { return s.overlap }

// Split chunks one document. Offsets are byte offsets into doc.Content and
// are best-effort: a chunk whose separators were collapsed (e.g. a run of
// spaces) is not a verbatim substring, so its offset is where its first word
// appears.
func (s *Splitter) Split(doc models.Document) []models.Chunk {
	texts := s.SplitText(doc.Content)
	chunks := make([]models.Chunk, 0, len(texts))

	from := 0
	for _, text := range texts {
		offset := from
		if idx := locate(doc.Content[from:], text); idx >= 0 {
			offset = from + idx
			from = offset + 1
		}
		chunks = append(chunks, models.Chunk{
			Source:  doc.Source,
			Page:    doc.Page,
			Offset:  offset,
			Content: text,
		})
	}
	return chunks
}

// locate finds text in content, falling back to its first word.
func locate(content, text string) int {
	if idx := strings.Index(content, text); idx >= 0 {
		return idx
	}
	if words := strings.Fields(text); len(words) > 0 {
		return strings.Index(content, words[0])
	}
	return -1
}

// SplitText returns the chunk texts for text, trimmed of surrounding whitespace.
func (s *Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, c := range seps {
		if c == "" {
			sep = c
			break
		}
		if strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var final, good []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) < s.chunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, p)
		} else {
			final = append(final, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, sep)...)
	}
	return final
}

// merge joins pieces with sep into chunks no longer than chunkSize, keeping up
// to overlap characters of trailing pieces at the head of the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var docs, current []string
	total := 0

	join := func() {
		if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
			docs = append(docs, doc)
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if len(current) > 0 && total+n+sepLen > s.chunkSize {
			join()
			for total > s.overlap || (total > 0 && total+n+sepIf(len(current) > 0, sepLen) > s.chunkSize) {
				total -= utf8.RuneCountInString(current[0]) + sepIf(len(current) > 1, sepLen)
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n + sepIf(len(current) > 1, sepLen)
	}
	join()
	return docs
}

func sepIf(cond bool, n int) int {
	if cond {
		return n
	}
	return 0
}
