package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultVertexEmbedModel = "text-embedding-005"
	defaultVertexChatModel  = "gemini-2.0-flash"
	defaultVertexDim        = 768
	defaultVertexLocation   = "us-central1"
)

// VertexAIClient serves embeddings and plan generation from Gemini models on
// Vertex AI.
type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient connects with project credentials when a project ID is
// configured and in API-key (express) mode otherwise. genai rejects configs
// that set both.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	applyVertexDefaults(config)
	return newVertexAIClient(ctx, config, vertexClientConfig(config))
}

func newVertexAIClient(ctx context.Context, config *ClientConfig, cc *genai.ClientConfig) (*VertexAIClient, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating vertex ai client: %w", err)
	}
	return &VertexAIClient{config: config, client: client}, nil
}

func applyVertexDefaults(config *ClientConfig) {
	if config.EmbedModel == "" {
		config.EmbedModel = defaultVertexEmbedModel
	}
	if config.ChatModel == "" {
		config.ChatModel = defaultVertexChatModel
	}
	if config.Dim == 0 {
		config.Dim = defaultVertexDim
	}
}

func vertexClientConfig(config *ClientConfig) *genai.ClientConfig {
	cc := &genai.ClientConfig{Backend: genai.BackendVertexAI}
	if project := strings.TrimSpace(config.ProjectID); project != "" {
		cc.Project = project
		cc.Location = strings.TrimSpace(config.Location)
		if cc.Location == "" {
			cc.Location = defaultVertexLocation
		}
		return cc
	}
	cc.APIKey = strings.TrimSpace(config.APIKey)
	return cc
}

// Embed returns the embedding of one document chunk or query.
func (c *VertexAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.client == nil {
		return nil, errors.New("vertex ai client not initialized")
	}
	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text),
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"})
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", c.config.EmbedModel, err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return res.Embeddings[0].Values, nil
}

// Complete sends prompt as a single user turn and joins the text parts of the
// first candidate.
func (c *VertexAIClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if c.client == nil {
		return "", errors.New("vertex ai client not initialized")
	}
	model := opts.Model
	if model == "" {
		model = c.config.ChatModel
	}

	temp := opts.Temperature
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: &temp})
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no content returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no content returned")
	}
	return sb.String(), nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}

func (c *VertexAIClient) Model() string {
	return c.config.EmbedModel
}
