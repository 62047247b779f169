package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockTransport implements http.RoundTripper for testing
type MockTransport struct {
	mu             sync.RWMutex
	statuses       map[string]int
	responseBodies map[string]string
	requests       []*http.Request
	bodies         []string
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		statuses:       make(map[string]int),
		responseBodies: make(map[string]string),
	}
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		m.bodies = append(m.bodies, string(b))
	}

	key := fmt.Sprintf("%s %s", req.Method, req.URL.String())
	if status, exists := m.statuses[key]; exists {
		return &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Body:       io.NopCloser(strings.NewReader(m.responseBodies[key])),
			Header:     make(http.Header),
		}, nil
	}

	return &http.Response{
		StatusCode: 500,
		Status:     "500 Internal Server Error",
		Body:       io.NopCloser(strings.NewReader(`{"error": {"message": "Mock not configured"}}`)),
		Header:     make(http.Header),
	}, nil
}

func (m *MockTransport) AddResponse(method, url string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s %s", method, url)
	m.statuses[key] = statusCode
	m.responseBodies[key] = body
}

func (m *MockTransport) LastBody() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bodies) == 0 {
		return ""
	}
	return m.bodies[len(m.bodies)-1]
}

func (m *MockTransport) GetRequests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requests := make([]*http.Request, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// errTransport fails every request, standing in for network errors.
type errTransport struct{ err error }

func (e errTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, e.err }

func createMockClient(transport http.RoundTripper, apiKey, base string) *OpenAIClient {
	client := NewOpenAIClient(&ClientConfig{
		APIKey:     apiKey,
		APIBase:    base,
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-3.5-turbo",
		ProjectID:  "test-project",
	})
	client.http = &http.Client{
		Transport: transport,
		Timeout:   5 * time.Second,
	}
	return client
}

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name      string
		config    *ClientConfig
		wantBase  string
		wantEmbed string
		wantChat  string
		wantDim   int
	}{
		{
			name:      "defaults",
			config:    &ClientConfig{},
			wantBase:  "https://api.openai.com/v1",
			wantEmbed: "text-embedding-3-small",
			wantChat:  "gpt-3.5-turbo",
			wantDim:   1536,
		},
		{
			name:      "openrouter base with trailing slash",
			config:    &ClientConfig{APIBase: "https://openrouter.ai/api/v1/", ChatModel: "openai/gpt-3.5-turbo"},
			wantBase:  "https://openrouter.ai/api/v1",
			wantEmbed: "text-embedding-3-small",
			wantChat:  "openai/gpt-3.5-turbo",
			wantDim:   1536,
		},
		{
			name:      "large embedding model",
			config:    &ClientConfig{EmbedModel: "text-embedding-3-large"},
			wantBase:  "https://api.openai.com/v1",
			wantEmbed: "text-embedding-3-large",
			wantChat:  "gpt-3.5-turbo",
			wantDim:   3072,
		},
		{
			name:      "explicit dim kept",
			config:    &ClientConfig{Dim: 256},
			wantBase:  "https://api.openai.com/v1",
			wantEmbed: "text-embedding-3-small",
			wantChat:  "gpt-3.5-turbo",
			wantDim:   256,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(tt.config)
			if c.config.APIBase != tt.wantBase {
				t.Errorf("Expected base %q, got %q", tt.wantBase, c.config.APIBase)
			}
			if c.Model() != tt.wantEmbed {
				t.Errorf("Expected embed model %q, got %q", tt.wantEmbed, c.Model())
			}
			if c.config.ChatModel != tt.wantChat {
				t.Errorf("Expected chat model %q, got %q", tt.wantChat, c.config.ChatModel)
			}
			if c.Dim() != tt.wantDim {
				t.Errorf("Expected dim %d, got %d", tt.wantDim, c.Dim())
			}
			if c.http == nil {
				t.Error("Expected http client to be set")
			}
		})
	}
}

func TestOpenAIClient_Embed(t *testing.T) {
	const url = "https://api.openai.com/v1/embeddings"
	tests := []struct {
		name         string
		apiKey       string
		statusCode   int
		responseBody string
		expectError  bool
		errorMsg     string
		expectedLen  int
	}{
		{
			name:        "missing API key",
			apiKey:      "",
			expectError: true,
			errorMsg:    "OPENAI_API_KEY unset",
		},
		{
			name:         "successful embedding",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": [{"embedding": [0.1, 0.2, 0.3, 0.4, 0.5]}]}`,
			expectedLen:  5,
		},
		{
			name:         "non-200 status code",
			apiKey:       "test-key",
			statusCode:   400,
			responseBody: `{"error": {"message": "Bad request"}}`,
			expectError:  true,
			errorMsg:     "openai embedding non-200",
		},
		{
			name:         "invalid JSON response",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `invalid json`,
			expectError:  true,
		},
		{
			name:         "empty data array",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": []}`,
			expectError:  true,
			errorMsg:     "no embedding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			transport.AddResponse("POST", url, tt.statusCode, tt.responseBody)
			client := createMockClient(transport, tt.apiKey, "")

			vec, err := client.Embed(context.Background(), "test text")
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(vec) != tt.expectedLen {
				t.Errorf("Expected %d values, got %d", tt.expectedLen, len(vec))
			}

			var sent map[string]string
			if err := json.Unmarshal([]byte(transport.LastBody()), &sent); err != nil {
				t.Fatalf("Request body is not JSON: %v", err)
			}
			if sent["input"] != "test text" || sent["model"] != "text-embedding-3-small" {
				t.Errorf("Unexpected request payload: %v", sent)
			}
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	const base = "https://openrouter.ai/api/v1"
	const url = base + "/chat/completions"

	tests := []struct {
		name         string
		apiKey       string
		opts         CompletionOptions
		statusCode   int
		responseBody string
		expected     string
		expectError  bool
		errorMsg     string
		wantModel    string
	}{
		{
			name:        "missing API key",
			expectError: true,
			errorMsg:    "OPENAI_API_KEY unset",
		},
		{
			name:         "successful completion keeps newlines",
			apiKey:       "test-key",
			opts:         CompletionOptions{Temperature: 0.3},
			statusCode:   200,
			responseBody: `{"choices": [{"message": {"content": "1. Find sources\n2. Summarize findings\n"}}]}`,
			expected:     "1. Find sources\n2. Summarize findings\n",
			wantModel:    "gpt-3.5-turbo",
		},
		{
			name:         "model override",
			apiKey:       "test-key",
			opts:         CompletionOptions{Model: "openai/gpt-4o-mini", Temperature: 0.3},
			statusCode:   200,
			responseBody: `{"choices": [{"message": {"content": "- Do X"}}]}`,
			expected:     "- Do X",
			wantModel:    "openai/gpt-4o-mini",
		},
		{
			name:         "provider error message surfaced",
			apiKey:       "test-key",
			statusCode:   401,
			responseBody: `{"error": {"message": "Invalid API key"}}`,
			expectError:  true,
			errorMsg:     "Invalid API key",
		},
		{
			name:         "rate limit without message uses status",
			apiKey:       "test-key",
			statusCode:   429,
			responseBody: `{}`,
			expectError:  true,
			errorMsg:     "429",
		},
		{
			name:         "no choices",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"choices": []}`,
			expectError:  true,
			errorMsg:     "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			transport.AddResponse("POST", url, tt.statusCode, tt.responseBody)
			client := createMockClient(transport, tt.apiKey, base)

			out, err := client.Complete(context.Background(), "prompt text", tt.opts)
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if out != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, out)
			}

			var sent struct {
				Model       string              `json:"model"`
				Temperature float32             `json:"temperature"`
				Messages    []map[string]string `json:"messages"`
			}
			if err := json.Unmarshal([]byte(transport.LastBody()), &sent); err != nil {
				t.Fatalf("Request body is not JSON: %v", err)
			}
			if sent.Model != tt.wantModel {
				t.Errorf("Expected model %q, got %q", tt.wantModel, sent.Model)
			}
			if sent.Temperature != tt.opts.Temperature {
				t.Errorf("Expected temperature %v, got %v", tt.opts.Temperature, sent.Temperature)
			}
			if len(sent.Messages) != 1 || sent.Messages[0]["content"] != "prompt text" {
				t.Errorf("Unexpected messages: %v", sent.Messages)
			}
		})
	}
}

func TestOpenAIClient_NetworkError(t *testing.T) {
	client := createMockClient(errTransport{err: errors.New("connection refused")}, "test-key", "")
	_, err := client.Complete(context.Background(), "p", CompletionOptions{})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Expected network error to propagate, got %v", err)
	}
}

func TestOpenAIClient_setHeaders(t *testing.T) {
	tests := []struct {
		name          string
		apiKey        string
		projectID     string
		expectProject bool
	}{
		{"regular key", "sk-test", "proj", false},
		{"project key with project", "sk-proj-abc", "proj", true},
		{"project key without project", "sk-proj-abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, ProjectID: tt.projectID})
			req, _ := http.NewRequest("POST", "https://example.com", nil)
			c.setHeaders(req)

			if got := req.Header.Get("Authorization"); got != "Bearer "+tt.apiKey {
				t.Errorf("Unexpected Authorization header %q", got)
			}
			if got := req.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Unexpected Content-Type %q", got)
			}
			if has := req.Header.Get("OpenAI-Project") != ""; has != tt.expectProject {
				t.Errorf("OpenAI-Project presence = %v, want %v", has, tt.expectProject)
			}
		})
	}
}
