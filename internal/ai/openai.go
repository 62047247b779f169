package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	// Set default models if not provided
	if config.APIBase == "" {
		config.APIBase = defaultOpenAIBase
	}
	config.APIBase = strings.TrimRight(config.APIBase, "/")
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.ChatModel == "" {
		config.ChatModel = "gpt-3.5-turbo"
	}
	if config.Dim == 0 {
		switch config.EmbedModel {
		case "text-embedding-3-large":
			config.Dim = 3072
		default:
			// text-embedding-3-small and ada-002
			config.Dim = 1536
		}
	}

	transport := &http.Transport{}

	// Corporate proxies sometimes re-sign TLS.
	if skipTLS, _ := strconv.ParseBool(os.Getenv("RESEARCH_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   60 * time.Second,
		Transport: transport,
	}

	return &OpenAIClient{
		config: config,
		http:   httpClient,
	}
}

// Embed implements the embedding functionality
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload := map[string]string{
		"input": text,
		"model": c.config.EmbedModel,
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.APIBase+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("openai embedding non-200")
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New("no embedding")
	}
	return out.Data[0].Embedding, nil
}

// Complete sends one chat completion request holding the prompt as a single user message.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if c.config.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	model := opts.Model
	if model == "" {
		model = c.config.ChatModel
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": opts.Temperature,
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.APIBase+"/chat/completions", &buf)
	if err != nil {
		return "", err
	}

	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct{ Error struct{ Message string } }
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message != "" {
			return "", errors.New(e.Error.Message)
		}
		return "", errors.New(resp.Status)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}

	return out.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

func (c *OpenAIClient) Model() string {
	return c.config.EmbedModel
}

// setHeaders sets common headers for OpenAI-compatible requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}
