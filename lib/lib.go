// Package lib assembles a ready-to-run unwrap engine from a Config.
// It is the entry point for programs embedding peel.
package lib

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"peel/pkg/config"
	"peel/pkg/core"
	"peel/pkg/extract"
	"peel/pkg/format"
	"peel/pkg/normalize"
	"peel/pkg/progress"
	"peel/pkg/sniff"
)

// Result re-exported from core
type Result = core.Result

// Fatal error classes re-exported from core
var (
	ErrSniff      = core.ErrSniff
	ErrExtraction = core.ErrExtraction
	ErrTimeout    = core.ErrTimeout
	ErrCollision  = core.ErrCollision
)

// Unwrapper is an engine plus the progress tracker feeding its builtin tools
type Unwrapper struct {
	Engine  *core.Engine
	Tracker *progress.Tracker
}

// New wires cfg into an Unwrapper. Progress lines go to out when
// cfg.Progress is set.
func New(cfg config.Config, logger *slog.Logger, out io.Writer) (*Unwrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}
	overrides, err := cfg.ToolOverrides()
	if err != nil {
		return nil, err
	}
	catalog, err := format.NewCatalog(overrides)
	if err != nil {
		return nil, err
	}
	sniffer, err := sniff.New(cfg.Sniffer)
	if err != nil {
		return nil, err
	}
	policy, err := normalize.ParsePolicy(cfg.OnCollision)
	if err != nil {
		return nil, err
	}

	if !cfg.Progress {
		out = nil
	}
	tracker := progress.NewTracker(out)
	builtin := extract.NewBuiltinRunner(tracker, logger)
	execRunner := extract.NewExecRunner(time.Duration(cfg.Timeout))
	var runner extract.Runner
	switch cfg.Backend {
	case config.BackendExec:
		runner = execRunner
	case config.BackendBuiltin:
		runner = builtin
	default:
		runner = &extract.AutoRunner{Exec: execRunner, Builtin: builtin}
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving working directory")
	}
	engine, err := core.New(core.Options{
		Dir:        dir,
		Sniffer:    sniffer,
		Catalog:    catalog,
		Normalizer: normalize.New(policy, logger),
		Extractor:  extract.New(dir, runner, logger),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return &Unwrapper{Engine: engine, Tracker: tracker}, nil
}

// Unwrap peels path until nothing recognisable is left
func (u *Unwrapper) Unwrap(ctx context.Context, path string) (*Result, error) {
	u.Tracker.Start()
	defer u.Tracker.Stop()
	return u.Engine.Run(ctx, path)
}
