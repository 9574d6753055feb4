// Package extract runs the extraction tool for a detected format and works
// out which files the run produced.
//
// Archive formats are reconciled with a directory snapshot: after the tool
// exits, every regular file directly inside the working directory except the
// archive itself counts as produced. Files that were already there are
// reported too. That over-approximation is kept on purpose because the tools
// do not report a manifest, and reprocessing a plain file is harmless.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"peel/pkg/format"
)

var (
	// ErrExtraction is returned when an extraction tool fails. It is fatal to
	// an unwrap run.
	ErrExtraction = errors.New("extraction failed")
	// ErrToolTimeout is returned when a tool exceeds its deadline
	ErrToolTimeout = errors.Wrap(ErrExtraction, "tool deadline exceeded")
)

// Runner executes an extraction command inside dir
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) error
}

// ToolError records a failed extraction command
type ToolError struct {
	Argv []string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Is reports every ToolError as an ErrExtraction
func (e *ToolError) Is(target error) bool { return target == ErrExtraction }

// Extractor invokes format tools in a working directory
type Extractor struct {
	Dir    string
	Runner Runner
	Logger *slog.Logger
}

// New returns an Extractor running tools in dir
func New(dir string, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Dir: dir, Runner: runner, Logger: logger}
}

// Extract runs d's tool on path and returns the files it produced
func (x *Extractor) Extract(ctx context.Context, path string, d format.Descriptor) ([]string, error) {
	argv := d.Command(path)
	x.Logger.Info("decompressing", "path", path, "format", d.Format.String(), "command", strings.Join(argv, " "))
	if err := x.Runner.Run(ctx, x.Dir, argv); err != nil {
		return nil, &ToolError{Argv: argv, Err: err}
	}
	if d.Kind == format.Archive {
		return listProduced(x.Dir, path)
	}
	return []string{StreamOutput(path, d.Extension)}, nil
}

// StreamOutput names the single file a stream decompressor leaves behind:
// path without ext, or path itself when it does not end in ext
func StreamOutput(path, ext string) string {
	if ext != "" && strings.HasSuffix(path, ext) && len(path) > len(ext) {
		return strings.TrimSuffix(path, ext)
	}
	return path
}

// listProduced snapshots the regular files directly in dir, minus archive
func listProduced(dir, archive string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	archive = filepath.Clean(archive)
	var produced []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if path == archive {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		produced = append(produced, path)
	}
	return produced, nil
}
