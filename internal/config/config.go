package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/seanblong/researchagent/internal/ai"
)

type Specification struct {
	// Chat provider used by the planner.
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"providerApiKey" envconfig:"OPENAI_API_KEY"`
	APIBase     string  `yaml:"providerApiBase" envconfig:"OPENAI_API_BASE"`
	ChatModel   string  `yaml:"providerChatModel" envconfig:"PROVIDER_CHAT_MODEL"`
	Temperature float32 `yaml:"temperature"`
	ProjectID   string  `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location    string  `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`

	// Embedding provider used by ingestion and retrieval.
	EmbedProvider string `yaml:"embedProvider" split_words:"true"`
	EmbedModel    string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	Dim           int    `yaml:"providerDim" envconfig:"EMBED_DIM"`
	ModelDir      string `yaml:"modelDir" split_words:"true"`

	StorePath  string `yaml:"storePath" split_words:"true"`
	Collection string `yaml:"collection"`
	Database   string `yaml:"database" envconfig:"DB_URL"`

	ChunkSize           int     `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap        int     `yaml:"chunkOverlap" split_words:"true"`
	RedundancyThreshold float64 `yaml:"redundancyThreshold" split_words:"true"`

	LogLevel string            `yaml:"logLevel" split_words:"true"`
	Port     int               `yaml:"port" split_words:"true"`
	Auth     AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AuthSpecification struct {
	Enabled   bool          `yaml:"enabled"`
	JwtSecret string        `yaml:"jwtSecret" split_words:"true"`
	TokenTTL  time.Duration `yaml:"tokenTTL" envconfig:"TOKEN_TTL"`
}

const envPrefix = "RESEARCH"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// ChatClientConfig returns the settings for the planner's language model.
func (s *Specification) ChatClientConfig() *ai.ClientConfig {
	return &ai.ClientConfig{
		Provider:  ai.Provider(s.Provider),
		APIKey:    s.APIKey,
		APIBase:   s.APIBase,
		ChatModel: s.ChatModel,
		ProjectID: s.ProjectID,
		Location:  s.Location,
		ModelDir:  s.ModelDir,
	}
}

// EmbedClientConfig returns the settings for the embedding model.
func (s *Specification) EmbedClientConfig() *ai.ClientConfig {
	return &ai.ClientConfig{
		Provider:   ai.Provider(s.EmbedProvider),
		APIKey:     s.APIKey,
		APIBase:    s.APIBase,
		EmbedModel: s.EmbedModel,
		Dim:        s.Dim,
		ProjectID:  s.ProjectID,
		Location:   s.Location,
		ModelDir:   s.ModelDir,
	}
}

// Load => defaults < YAML < .env/env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// .env never overrides variables that are already set
	if err := loadDotEnv(".env"); err != nil {
		return Specification{}, fmt.Errorf("load .env: %w", err)
	}

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/research.yaml",
				"config/config.yaml",
				"./research.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate checks ranges. The API key is deliberately not checked here; a
// missing key surfaces when the model is first called.
func (s *Specification) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", s.ChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", s.ChunkSize, s.ChunkOverlap)
	}
	if s.RedundancyThreshold <= 0 || s.RedundancyThreshold > 1 {
		return fmt.Errorf("redundancy threshold must be in (0, 1], got %g", s.RedundancyThreshold)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g", s.Temperature)
	}
	if strings.TrimSpace(s.Collection) == "" {
		return errors.New("collection name is required")
	}
	return nil
}

// ---------- helpers ----------

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Chat provider (openai, vertexai, stub)")
	fs.String("provider-api-key", c.APIKey, "Provider API key (falls back to OPENAI_API_KEY)")
	fs.String("provider-api-base", c.APIBase, "OpenAI-compatible API base URL, e.g. https://openrouter.ai/api/v1")
	fs.String("provider-chat-model", c.ChatModel, "Chat model used for planning")
	fs.Float32("temperature", c.Temperature, "Sampling temperature for planning")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")

	fs.String("embed-provider", c.EmbedProvider, "Embedding provider (local, openai, vertexai, stub)")
	fs.String("provider-embedding-model", c.EmbedModel, "Embedding model")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")
	fs.String("model-dir", c.ModelDir, "Directory for downloaded local models")

	fs.String("store-path", c.StorePath, "Directory of the on-disk vector store")
	fs.String("collection", c.Collection, "Vector collection name")
	fs.String("db-url", c.Database, "Postgres URL (DSN); when set, replaces the on-disk store")

	fs.Int("chunk-size", c.ChunkSize, "Maximum characters per chunk")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Characters shared by neighbouring chunks")
	fs.Float64("redundancy-threshold", c.RedundancyThreshold, "Cosine similarity at which chunks count as duplicates")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "Planner server port")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require a bearer token on the planner API")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")
	fs.Duration("auth-token-ttl", c.Auth.TokenTTL, "Lifetime of issued tokens")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-api-base", &c.APIBase)
	setStr("provider-chat-model", &c.ChatModel)
	if fs.Changed("temperature") {
		c.Temperature, _ = fs.GetFloat32("temperature")
	}
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)

	setStr("embed-provider", &c.EmbedProvider)
	setStr("provider-embedding-model", &c.EmbedModel)
	setInt("embed-dim", &c.Dim)
	setStr("model-dir", &c.ModelDir)

	setStr("store-path", &c.StorePath)
	setStr("collection", &c.Collection)
	setStr("db-url", &c.Database)

	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)
	if fs.Changed("redundancy-threshold") {
		c.RedundancyThreshold, _ = fs.GetFloat64("redundancy-threshold")
	}

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	// Auth flags
	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
	if fs.Changed("auth-token-ttl") {
		c.Auth.TokenTTL, _ = fs.GetDuration("auth-token-ttl")
	}
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.Provider = "openai"
	c.Temperature = 0.3
	c.EmbedProvider = "local"
	c.ModelDir = "./models"
	c.StorePath = "data/chroma_store"
	c.Collection = "default"
	c.Database = ""
	c.ChunkSize = 1000
	c.ChunkOverlap = 150
	c.RedundancyThreshold = 0.95
	c.Auth.Enabled = false
	c.Auth.TokenTTL = 24 * time.Hour
	c.Dim = 0
	c.Location = "us-central1"
	c.Port = 8501
}
