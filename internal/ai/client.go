package ai

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

var (
	// ErrUnsupported is returned by providers that cannot serve an operation,
	// e.g. text generation on a local embedding-only model.
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrMissingAPIKey is returned at call time when a hosted provider has no key.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY unset")
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
	Model() string
}

// Completer sends a single prompt to a text-generation model.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// Client provides both embedding and text-generation capabilities
type Client interface {
	Embedder
	Completer
}

// CompletionOptions tunes one text-generation call. Zero values fall back to
// the provider's configured chat model.
type CompletionOptions struct {
	Model       string
	Temperature float32
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderLocal    Provider = "local"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey     string
	APIBase    string
	EmbedModel string
	ChatModel  string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
	ModelDir   string
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderLocal:
		return NewLocalClient(config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

const defaultStubDim = 384

// StubClient is an offline Client. Embeddings are hashed bags of words, so texts
// sharing vocabulary land close together; completions are a fixed numbered plan.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = defaultStubDim
	}
	return &StubClient{dim: dim}
}

// Embed implements the embedding functionality
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, s.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32()%uint32(s.dim))] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

// Complete returns a canned three step plan naming the research question.
func (s *StubClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	topic := "the question"
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Research Question:") {
			topic = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "Research Question:")), `"`)
		}
	}
	return "1. Define the scope of " + topic + "\n" +
		"2. Collect primary and secondary sources\n" +
		"3. Summarize the key findings\n", nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}

func (s *StubClient) Model() string {
	return "stub-hash"
}
