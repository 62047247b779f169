package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/rs/zerolog/log"
)

const (
	defaultLocalModel = "sentence-transformers/all-MiniLM-L6-v2"
	defaultLocalDim   = 384
)

// LocalClient embeds text in-process with a sentence-transformers ONNX model
// run through hugot's pure Go backend. The model is downloaded into ModelDir
// on first use.
type LocalClient struct {
	config *ClientConfig

	mu      sync.Mutex
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)
}

func NewLocalClient(config *ClientConfig) (*LocalClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.EmbedModel == "" {
		config.EmbedModel = defaultLocalModel
	}
	if !strings.Contains(config.EmbedModel, "/") {
		config.EmbedModel = "sentence-transformers/" + config.EmbedModel
	}
	if config.Dim == 0 {
		config.Dim = defaultLocalDim
	}
	if config.ModelDir == "" {
		config.ModelDir = "./models"
	}
	return &LocalClient{config: config}, nil
}

// prepareModel downloads the model if it doesn't exist and returns the model path
func (c *LocalClient) prepareModel() (string, error) {
	modelPath := filepath.Join(c.config.ModelDir, strings.ReplaceAll(c.config.EmbedModel, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if err := os.MkdirAll(c.config.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	log.Info().Str("model", c.config.EmbedModel).Str("dir", c.config.ModelDir).Msg("downloading embedding model")
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(c.config.EmbedModel, c.config.ModelDir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloaded, nil
}

// init lazily builds the feature extraction pipeline. Callers hold c.mu.
func (c *LocalClient) init() error {
	if c.run != nil {
		return nil
	}
	modelPath, err := c.prepareModel()
	if err != nil {
		return err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("failed to create hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "research-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	c.session = session
	c.run = func(texts []string) ([][]float32, error) {
		out, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return out.Embeddings, nil
	}
	return nil
}

// Embed implements the embedding functionality. Calls are serialized; the
// pipeline is not safe for concurrent use.
func (c *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.init(); err != nil {
		return nil, err
	}
	vecs, err := c.run([]string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return vecs[0], nil
}

// Complete is not available for local embedding models.
func (c *LocalClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return "", fmt.Errorf("%s: %w", ProviderLocal, ErrUnsupported)
}

func (c *LocalClient) Dim() int {
	return c.config.Dim
}

func (c *LocalClient) Model() string {
	return c.config.EmbedModel
}

// Close releases the hugot session, if one was created.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	c.run = nil
	return err
}
