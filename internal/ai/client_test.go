package ai

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
)

// Test Provider constants
func TestProviderConstants(t *testing.T) {
	tests := []struct {
		provider Provider
		expected string
	}{
		{ProviderOpenAI, "openai"},
		{ProviderVertexAI, "vertexai"},
		{ProviderLocal, "local"},
		{ProviderStub, "stub"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if string(tt.provider) != tt.expected {
				t.Errorf("Provider constant mismatch. Expected: %s, Got: %s", tt.expected, string(tt.provider))
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		config      *ClientConfig
		expectError bool
		errorMsg    string
		clientType  string
	}{
		{
			name:        "nil config",
			config:      nil,
			expectError: true,
			errorMsg:    "client config is required",
		},
		{
			name: "openai provider",
			config: &ClientConfig{
				Provider: ProviderOpenAI,
				APIKey:   "test-key",
			},
			clientType: "*ai.OpenAIClient",
		},
		{
			name: "local provider",
			config: &ClientConfig{
				Provider: ProviderLocal,
				ModelDir: t.TempDir(),
			},
			clientType: "*ai.LocalClient",
		},
		{
			name: "stub provider",
			config: &ClientConfig{
				Provider: ProviderStub,
				Dim:      256,
			},
			clientType: "*ai.StubClient",
		},
		{
			name: "unsupported provider",
			config: &ClientConfig{
				Provider: Provider("unsupported"),
			},
			expectError: true,
			errorMsg:    "unsupported provider: unsupported",
		},
		{
			name:        "empty provider",
			config:      &ClientConfig{},
			expectError: true,
			errorMsg:    "unsupported provider: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				if client != nil {
					t.Errorf("Expected nil client when error occurs, got %v", client)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			clientTypeName := "unknown"
			switch client.(type) {
			case *OpenAIClient:
				clientTypeName = "*ai.OpenAIClient"
			case *VertexAIClient:
				clientTypeName = "*ai.VertexAIClient"
			case *LocalClient:
				clientTypeName = "*ai.LocalClient"
			case *StubClient:
				clientTypeName = "*ai.StubClient"
			}
			if clientTypeName != tt.clientType {
				t.Errorf("Expected client type '%s', got '%s'", tt.clientType, clientTypeName)
			}
		})
	}
}

func TestNewStubClient(t *testing.T) {
	tests := []struct {
		name     string
		dim      int
		expected int
	}{
		{"explicit dimension", 512, 512},
		{"small dimension", 16, 16},
		{"zero dimension uses default", 0, defaultStubDim},
		{"negative dimension uses default", -1, defaultStubDim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewStubClient(tt.dim)
			if client.Dim() != tt.expected {
				t.Errorf("Expected Dim() to return %d, got %d", tt.expected, client.Dim())
			}
		})
	}
}

func TestStubClient_Embed(t *testing.T) {
	client := NewStubClient(128)
	ctx := context.Background()

	t.Run("dimension and unit length", func(t *testing.T) {
		vec, err := client.Embed(ctx, "agile frameworks like scrum and kanban")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(vec) != 128 {
			t.Fatalf("Expected embedding length 128, got %d", len(vec))
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("Expected unit vector, got squared norm %f", norm)
		}
	})

	t.Run("empty text yields zero vector", func(t *testing.T) {
		vec, err := client.Embed(ctx, "")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		for i, v := range vec {
			if v != 0 {
				t.Fatalf("Expected zero at index %d, got %f", i, v)
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _ := client.Embed(ctx, "Scrum uses sprints")
		b, _ := client.Embed(ctx, "scrum USES sprints!")
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("Expected identical embeddings, differ at %d", i)
			}
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := client.Embed(cctx, "text"); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

func TestStubClient_Complete(t *testing.T) {
	client := NewStubClient(0)
	prompt := "You are a research assistant AI.\nResearch Question: \"How do bees navigate?\"\nList the subtasks."

	out, err := client.Complete(context.Background(), prompt, CompletionOptions{Temperature: 0.3})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(out, "1. Define the scope of How do bees navigate?") {
		t.Errorf("Unexpected completion: %q", out)
	}
	if strings.Count(out, "\n") != 3 {
		t.Errorf("Expected three lines, got %q", out)
	}
}

func TestClientInterfaceCompliance(t *testing.T) {
	var _ Client = &StubClient{}
	var _ Client = &OpenAIClient{}
	var _ Client = &VertexAIClient{}
	var _ Client = &LocalClient{}
}

func TestStubClientConcurrency(t *testing.T) {
	client := NewStubClient(64)
	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Embed(context.Background(), "concurrent text"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error: %v", err)
	}
}

func BenchmarkStubClient_Embed(b *testing.B) {
	client := NewStubClient(384)
	text := "This is a test text for embedding benchmark"
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.Embed(ctx, text)
	}
}
