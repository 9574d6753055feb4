package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"peel/lib"
	"peel/pkg/config"
	"peel/pkg/progress"
)

type options struct {
	configPath  string
	dir         string
	backend     string
	sniffer     string
	onCollision string
	timeout     time.Duration
	noProgress  bool
	verbose     bool
	quiet       bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := rootCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func rootCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "peel [flags] <file>",
		Short: "Recursively unwrap nested compressed files",
		Long: `peel detects the format of a file from its content, extracts it, and
repeats on everything the extraction produced until only uncompressed
content is left. Archive output is collected from the working directory,
so run it in a directory that holds nothing but the file to unwrap.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0], stdout)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&opts.dir, "dir", "", "working directory extraction tools run in (default: current directory)")
	flags.StringVar(&opts.backend, "backend", "", "extraction backend: exec, builtin or auto")
	flags.StringVar(&opts.sniffer, "sniffer", "", "content detection: file, magic or auto")
	flags.StringVar(&opts.onCollision, "on-collision", "", "when a renamed file already exists: fail, overwrite or suffix")
	flags.DurationVar(&opts.timeout, "timeout", 0, "deadline for a single extraction tool, 0 for none")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "do not print byte progress for builtin extraction")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log skipped files and builtin tool activity")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

// loadConfig merges the config file, if any, with explicitly set flags
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Dir = opts.dir
	}
	if flags.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if flags.Changed("sniffer") {
		cfg.Sniffer = opts.sniffer
	}
	if flags.Changed("on-collision") {
		cfg.OnCollision = opts.onCollision
	}
	if flags.Changed("timeout") {
		cfg.Timeout = config.Duration(opts.timeout)
	}
	if opts.noProgress || opts.quiet {
		cfg.Progress = false
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, opts options) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.verbose:
		level = slog.LevelDebug
	case opts.quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(cmd *cobra.Command, opts options, path string, stdout io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return errors.Wrap(err, "configuration")
	}
	// The file argument is relative to where peel was started, not --dir.
	path, err = filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "resolving input path")
	}
	// Progress lines and log records share stdout.
	stdout = progress.NewSyncWriter(stdout)
	logger := newLogger(stdout, opts)

	u, err := lib.New(cfg, logger, stdout)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := u.Unwrap(ctx, path)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(stdout, "Decompression complete. No more compressed files detected (%d processed, %d extracted).\n",
		len(res.Processed), len(res.Extracted))
	return nil
}
