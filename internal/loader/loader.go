package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/researchagent/pkg/models"
)

var (
	// ErrUnsupported marks a path whose extension has no loader.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrPDFToolNotFound is returned when pdftotext is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler: brew install poppler / apt install poppler-utils)")
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (d *DefaultFileReader) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Loader reads .txt and .pdf files into documents.
type Loader struct {
	Walker     FileSystemWalker
	FileReader FileReader
	Runner     CommandRunner
	// LookPath resolves the pdftotext binary; swapped in tests.
	LookPath func(file string) (string, error)
}

// New creates a Loader backed by the real filesystem and pdftotext.
func New() *Loader {
	return &Loader{
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
		Runner:     ExecRunner{},
		LookPath:   exec.LookPath,
	}
}

// Supported reports whether path has an extension with a loader.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".pdf":
		return true
	}
	return false
}

// Resolve expands directories into the files beneath them, sorted, and passes
// plain file paths through untouched. Missing paths are logged and dropped.
func (l *Loader) Resolve(paths []string) []string {
	var out []string
	for _, p := range paths {
		fi, err := l.FileReader.Stat(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("cannot stat input, skipping")
			continue
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}

		var found []string
		err = l.Walker.Walk(p, &godirwalk.Options{
			Unsorted: true,
			Callback: func(path string, de *godirwalk.Dirent) error {
				if de != nil && de.IsDir() {
					if path != p && strings.HasPrefix(de.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				found = append(found, path)
				return nil
			},
		})
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("walk failed")
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out
}

// Load reads one file. Text files yield a single document; PDFs yield one
// document per page. Unsupported extensions return ErrUnsupported.
func (l *Loader) Load(ctx context.Context, path string) ([]models.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return l.loadText(path)
	case ".pdf":
		return l.loadPDF(ctx, path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
}

func (l *Loader) loadText(path string) ([]models.Document, error) {
	b, err := l.FileReader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []models.Document{{Source: path, Page: 0, Content: string(b)}}, nil
}

func (l *Loader) loadPDF(ctx context.Context, path string) ([]models.Document, error) {
	if l.LookPath != nil {
		if _, err := l.LookPath("pdftotext"); err != nil {
			return nil, ErrPDFToolNotFound
		}
	}

	out, err := l.Runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed for %s: %w", path, err)
	}

	// pdftotext terminates every page with a form feed.
	pages := strings.Split(string(out), "\f")
	docs := make([]models.Document, 0, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		docs = append(docs, models.Document{Source: path, Page: i, Content: page})
	}
	return docs, nil
}
