package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/researchagent/internal/ai"
	"github.com/seanblong/researchagent/internal/chunker"
	"github.com/seanblong/researchagent/internal/config"
	"github.com/seanblong/researchagent/internal/dedup"
	"github.com/seanblong/researchagent/internal/ingest"
	"github.com/seanblong/researchagent/internal/search"
	"github.com/seanblong/researchagent/internal/store"
)

const (
	defaultFile  = "data/papers/Agile_Frameworks.pdf"
	defaultQuery = "Explain agile frameworks."
	previewRunes = 400
)

type options struct {
	Files      []string
	Query      string
	K          int
	SkipIngest bool
}

// newEmbedder is swapped in tests.
var newEmbedder = ai.NewClient

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	headColor = color.New(color.FgCyan, color.Bold)
)

func main() {
	fs := pflag.NewFlagSet("retriever", pflag.ExitOnError)
	file := fs.String("file", defaultFile, "File or directory to ingest")
	query := fs.String("query", defaultQuery, "Query to run after ingestion")
	k := fs.IntP("results", "n", search.DefaultK, "Number of passages to retrieve")
	skipIngest := fs.Bool("skip-ingest", false, "Query the existing collection without ingesting")

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
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := options{Files: []string{*file}, Query: *query, K: *k, SkipIngest: *skipIngest}
	// Positional paths replace the sample file unless --file was given.
	if args := fs.Args(); len(args) > 0 {
		if fs.Changed("file") {
			opts.Files = append(opts.Files, args...)
		} else {
			opts.Files = args
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("retriever failed")
	}
}

// run ingests opts.Files into the configured collection and prints the
// passages retrieved for opts.Query.
func run(ctx context.Context, cfg config.Specification, opts options, out io.Writer) error {
	embedder, err := newEmbedder(cfg.EmbedClientConfig())
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}
	if c, ok := embedder.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close embedding client")
			}
		}()
	}

	st, err := store.Open(ctx, cfg.Database, cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	if !opts.SkipIngest {
		ix := ingest.New(st, embedder,
			ingest.WithCollection(cfg.Collection),
			ingest.WithSplitter(chunker.New(
				chunker.WithChunkSize(cfg.ChunkSize),
				chunker.WithOverlap(cfg.ChunkOverlap),
			)),
			ingest.WithFilter(dedup.New(cfg.RedundancyThreshold)),
		)
		res, err := ix.Ingest(ctx, opts.Files)
		if err != nil {
			return fmt.Errorf("ingesting: %w", err)
		}
		if res.NoDocuments {
			failColor.Fprintln(out, "❌ No valid documents found.")
		} else {
			okColor.Fprintf(out, "✅ Stored %d refined chunks in %s\n", res.Retained, location(cfg))
		}
	}

	resp, err := search.NewService(embedder, st, cfg.Collection).Query(ctx, opts.Query, opts.K)
	if err != nil {
		return fmt.Errorf("querying: %w", err)
	}
	printResults(out, resp)
	return nil
}

func location(cfg config.Specification) string {
	if cfg.Database != "" {
		return "collection " + cfg.Collection
	}
	return cfg.StorePath
}

func printResults(out io.Writer, resp search.Response) {
	if !resp.Found {
		failColor.Fprintln(out, "❌ Vector DB not found. Ingest documents first.")
		return
	}
	if len(resp.Results) == 0 {
		warnColor.Fprintln(out, "⚠️ No results found.")
		return
	}

	headColor.Fprintf(out, "\n🔎 Retrieved %d chunks:\n\n", len(resp.Results))
	for i, r := range resp.Results {
		fmt.Fprintf(out, "Result %d\n%s\n%s...\n\n", i+1, strings.Repeat("-", 60), preview(r.Chunk.Content))
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > previewRunes {
		r = r[:previewRunes]
	}
	return string(r)
}
