package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanblong/researchagent/pkg/models"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		s := New()
		assert.Equal(t, 1000, s.ChunkSize())
		assert.Equal(t, 150, s.Overlap())
	})

	t.Run("custom values", func(t *testing.T) {
		s := New(WithChunkSize(500), WithOverlap(50))
		assert.Equal(t, 500, s.ChunkSize())
		assert.Equal(t, 50, s.Overlap())
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		s := New(WithChunkSize(100), WithOverlap(150))
		assert.Equal(t, 25, s.Overlap())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		s := New(WithChunkSize(0), WithOverlap(-1), WithSeparators())
		assert.Equal(t, DefaultChunkSize, s.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, s.Overlap())
		assert.Equal(t, DefaultSeparators, s.separators)
	})
}

func TestSplitText_EmptyAndShort(t *testing.T) {
	s := New()
	assert.Nil(t, s.SplitText(""))
	assert.Nil(t, s.SplitText("  \n\n\t "))
	assert.Equal(t, []string{"Agile is iterative."}, s.SplitText("  Agile is iterative.\n"))
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	a := strings.Repeat("a", 600)
	b := strings.Repeat("b", 600)

	chunks := New().SplitText(a + "\n\n" + b)
	assert.Equal(t, []string{a, b}, chunks)
}

func TestSplitText_BoundsAndOverlap(t *testing.T) {
	var words []string
	for i := 0; i < 600; i++ {
		words = append(words, fmt.Sprintf("word%04d", i))
	}
	text := strings.Join(words, " ")

	chunks := New().SplitText(text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000, "chunk %d too long", i)
		if i == 0 {
			continue
		}
		first := strings.Fields(c)[0]
		assert.Contains(t, chunks[i-1], first, "chunk %d should start inside the previous chunk", i)
		prevFields := strings.Fields(chunks[i-1])
		overlap := c[:strings.Index(c, prevFields[len(prevFields)-1])+len(prevFields[len(prevFields)-1])]
		assert.LessOrEqual(t, utf8.RuneCountInString(overlap), 150)
	}

	assert.True(t, strings.HasPrefix(chunks[0], "word0000"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "word0599"))
}

func TestSplitText_CountsRunes(t *testing.T) {
	text := strings.Repeat("ü", 1500)
	chunks := New().SplitText(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
	}
}

func TestSplit_OffsetsAndMetadata(t *testing.T) {
	a := strings.Repeat("a", 600)
	b := strings.Repeat("b", 600)
	doc := models.Document{Source: "notes.txt", Page: 2, Content: a + "\n\n" + b}

	chunks := New().Split(doc)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 602, chunks[1].Offset)
	for _, c := range chunks {
		assert.Equal(t, "notes.txt", c.Source)
		assert.Equal(t, 2, c.Page)
		assert.Equal(t, c.Content, doc.Content[c.Offset:c.Offset+len(c.Content)])
	}
}

func TestSplit_CollapsedSpacesOffset(t *testing.T) {
	doc := models.Document{Content: "aaaa  bbbb cccc dddd"}

	chunks := New(WithChunkSize(12), WithOverlap(0)).Split(doc)
	require.Len(t, chunks, 2)

	assert.Equal(t, "aaaa bbbb", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, "cccc dddd", chunks[1].Content)
	assert.Equal(t, 11, chunks[1].Offset)
}
