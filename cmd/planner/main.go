package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/researchagent/internal/ai"
	"github.com/seanblong/researchagent/internal/auth"
	"github.com/seanblong/researchagent/internal/config"
	"github.com/seanblong/researchagent/internal/planner"
	"github.com/seanblong/researchagent/internal/search"
	"github.com/seanblong/researchagent/internal/store"
	"github.com/seanblong/researchagent/internal/web"
)

func main() {
	fs := pflag.NewFlagSet("planner", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s': %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	auth.InitializeAuth(cfg.Auth.JwtSecret, cfg.Auth.TokenTTL, cfg.Auth.Enabled)

	// planner token <subject>
	if args := fs.Args(); len(args) > 0 {
		if args[0] != "token" || len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: planner [flags] [token <subject>]")
			os.Exit(2)
		}
		token, err := auth.GenerateToken(args[1])
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	chatConfig := cfg.ChatClientConfig()
	chat, err := ai.NewClient(chatConfig)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.Provider).Msg("failed to create chat client")
	}
	// NewClient fills in the provider's default chat model.
	p := planner.New(chat,
		planner.WithModel(chatConfig.ChatModel),
		planner.WithTemperature(cfg.Temperature),
	)
	logger.Info().
		Str("provider", cfg.Provider).
		Str("model", p.Model()).
		Float32("temperature", p.Temperature()).
		Bool("auth_enabled", auth.IsAuthEnabled()).
		Msg("starting planner")

	srv := &web.Server{Planner: p}

	ctx := context.Background()
	searcher, closeSearch, err := newSearcher(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("passage search disabled")
	} else {
		defer closeSearch()
		srv.Searcher = searcher
	}

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: srv.Handler(logger)}
	logger.Info().Str("addr", s.Addr).Msg("planner listening")
	if err := s.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// newSearcher wires /api/search to the same collection the retriever writes.
func newSearcher(ctx context.Context, cfg config.Specification) (*search.Service, func(), error) {
	if strings.TrimSpace(cfg.EmbedProvider) == "" {
		return nil, nil, fmt.Errorf("no embedding provider configured")
	}
	embedder, err := ai.NewClient(cfg.EmbedClientConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding client: %w", err)
	}
	st, err := store.Open(ctx, cfg.Database, cfg.StorePath)
	if err != nil {
		closeClient(embedder)
		return nil, nil, err
	}
	cleanup := func() {
		st.Close()
		closeClient(embedder)
	}
	return search.NewService(embedder, st, cfg.Collection), cleanup, nil
}

// closeClient releases clients that hold resources, such as a loaded local model.
func closeClient(c ai.Client) {
	if cl, ok := c.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close client")
		}
	}
}
