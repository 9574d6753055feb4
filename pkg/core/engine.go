// Package core drives the unwrap loop: a FIFO worklist of candidate files
// that are sniffed, renamed to their canonical extension and extracted until
// nothing recognisable is left.
package core

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"peel/pkg/extract"
	"peel/pkg/format"
	"peel/pkg/normalize"
	"peel/pkg/sniff"
)

// Fatal error classes. Any of them aborts a run.
var (
	ErrSniff      = sniff.ErrSniff
	ErrExtraction = extract.ErrExtraction
	ErrTimeout    = extract.ErrToolTimeout
	ErrCollision  = normalize.ErrCollision
)

// Extractor runs the tool for a descriptor and reports the files produced
type Extractor interface {
	Extract(ctx context.Context, path string, d format.Descriptor) ([]string, error)
}

// Normalizer gives a file its canonical extension
type Normalizer interface {
	Normalize(path string, d format.Descriptor) (string, error)
}

// Engine unwraps nested compressed files. Each Run owns a fresh worklist and
// processed set, so independent engines can share a process.
type Engine struct {
	dir        string
	sniffer    sniff.Sniffer
	catalog    *format.Catalog
	normalizer Normalizer
	extractor  Extractor
	logger     *slog.Logger
}

// Options configures an Engine
type Options struct {
	// Dir is the working directory extraction tools run in. Relative
	// candidate paths are resolved against it.
	Dir        string
	Sniffer    sniff.Sniffer
	Catalog    *format.Catalog
	Normalizer Normalizer
	Extractor  Extractor
	Logger     *slog.Logger
}

// New validates opts and returns an Engine
func New(opts Options) (*Engine, error) {
	if opts.Sniffer == nil {
		return nil, errors.New("sniffer is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving working directory")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "working directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("working directory %s is not a directory", dir)
	}
	e := &Engine{
		dir:        dir,
		sniffer:    opts.Sniffer,
		catalog:    opts.Catalog,
		normalizer: opts.Normalizer,
		extractor:  opts.Extractor,
		logger:     opts.Logger,
	}
	if e.catalog == nil {
		e.catalog = format.DefaultCatalog()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.normalizer == nil {
		e.normalizer = normalize.New(normalize.Suffix, e.logger)
	}
	return e, nil
}

// Dir returns the absolute working directory
func (e *Engine) Dir() string { return e.dir }

// Result summarises a completed run
type Result struct {
	// Processed lists every handled path in processing order
	Processed []string
	// Extracted lists the processed paths a tool was run on
	Extracted []string
	// Leaves lists the processed paths with no recognised format
	Leaves []string
}

// run is the per-invocation state
type run struct {
	queue     []string
	processed map[string]struct{}
	result    Result
}

func (r *run) done(path string) bool {
	_, ok := r.processed[path]
	return ok
}

// Run unwraps path until the worklist is empty. Sniffing or extraction
// failures abort the run; files extracted before the failure stay on disk.
func (e *Engine) Run(ctx context.Context, path string) (*Result, error) {
	r := &run{
		queue:     []string{e.resolve(path)},
		processed: make(map[string]struct{}),
	}
	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return &r.result, errors.Wrap(err, "unwrap interrupted")
		}
		current := r.queue[0]
		r.queue = r.queue[1:]
		if r.done(current) || !isRegular(current) {
			e.logger.Debug("skipping", "path", current)
			continue
		}
		produced, err := e.step(ctx, r, current)
		if err != nil {
			return &r.result, err
		}
		for _, p := range produced {
			p = e.resolve(p)
			if !r.done(p) && isRegular(p) {
				r.queue = append(r.queue, p)
			}
		}
	}
	e.logger.Info("Decompression complete.", "processed", len(r.result.Processed), "extracted", len(r.result.Extracted))
	return &r.result, nil
}

// step sniffs, normalizes and extracts one file, marks it processed and
// returns the files it produced
func (e *Engine) step(ctx context.Context, r *run, path string) ([]string, error) {
	mime, err := e.sniffer.Sniff(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "sniffing %s", path)
	}
	e.logger.Info("detected MIME type", "mime", mime, "path", path)

	d, ok := e.catalog.Lookup(mime)
	if !ok {
		r.processed[path] = struct{}{}
		r.result.Processed = append(r.result.Processed, path)
		r.result.Leaves = append(r.result.Leaves, path)
		return nil, nil
	}

	path, err = e.normalizer.Normalize(path, d)
	if err != nil {
		return nil, errors.Wrap(err, "normalizing extension")
	}
	produced, err := e.extractor.Extract(ctx, path, d)
	if err != nil {
		return nil, err
	}
	r.processed[path] = struct{}{}
	r.result.Processed = append(r.result.Processed, path)
	r.result.Extracted = append(r.result.Extracted, path)
	return produced, nil
}

func (e *Engine) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.dir, path)
	}
	return filepath.Clean(path)
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
