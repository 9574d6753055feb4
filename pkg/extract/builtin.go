package extract

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/mholt/archives"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"peel/pkg/progress"
)

// toolFunc extracts path inside dir the way the named tool would
type toolFunc func(ctx context.Context, b *BuiltinRunner, dir, path string) error

// BuiltinRunner emulates the stock extraction tools in-process. Each
// emulation leaves the same files on disk as the tool it stands in for.
type BuiltinRunner struct {
	Tracker *progress.Tracker
	Logger  *slog.Logger
	tools   map[string]toolFunc
}

// NewBuiltinRunner returns a BuiltinRunner reporting bytes to tracker, which
// may be nil
func NewBuiltinRunner(tracker *progress.Tracker, logger *slog.Logger) *BuiltinRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuiltinRunner{
		Tracker: tracker,
		Logger:  logger,
		tools: map[string]toolFunc{
			"gunzip":  stream(".gz", false, openGzip),
			"bunzip2": stream(".bz2", false, openBzip2),
			"unxz":    stream(".xz", false, openXz),
			"zstd":    stream(".zst", true, openZstd),
			"lz4":     stream(".lz4", true, openLz4),
			"unzip":   archive(archives.Zip{}),
			"7z":      archive(archives.SevenZip{}),
			"unrar":   archive(archives.Rar{}),
			"tar":     archive(archives.Tar{}),
		},
	}
}

// Supports reports whether tool has a builtin emulation
func (b *BuiltinRunner) Supports(tool string) bool {
	_, ok := b.tools[filepath.Base(tool)]
	return ok
}

// Tools lists the emulated tool names
func (b *BuiltinRunner) Tools() []string {
	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run emulates argv. The file operand is the last argument; flags are
// accepted and ignored since each emulation implements exactly the stock
// invocation.
func (b *BuiltinRunner) Run(ctx context.Context, dir string, argv []string) error {
	if len(argv) < 2 {
		return errors.Errorf("builtin: expected a tool and a file, got %q", argv)
	}
	fn, ok := b.tools[filepath.Base(argv[0])]
	if !ok {
		return errors.Errorf("builtin: no emulation for %s", argv[0])
	}
	path := argv[len(argv)-1]
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	b.Logger.Debug("running builtin tool", "tool", argv[0], "path", path)
	return fn(ctx, b, dir, path)
}

func (b *BuiltinRunner) writer(w io.Writer) io.Writer {
	if b.Tracker == nil {
		return w
	}
	return &progress.Writer{W: w, T: b.Tracker}
}

func (b *BuiltinRunner) fileDone() {
	if b.Tracker != nil {
		b.Tracker.AddFile()
	}
}

func openGzip(r io.Reader) (io.ReadCloser, error) {
	return pgzip.NewReader(r)
}

func openBzip2(r io.Reader) (io.ReadCloser, error) {
	return archives.Bz2{}.OpenReader(r)
}

func openXz(r io.Reader) (io.ReadCloser, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(zr), nil
}

func openZstd(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

func openLz4(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// writeFile copies r into path, replacing any existing file. The old entry
// is unlinked first so a symlink at path is replaced, not followed. A
// partial file is removed on failure.
func (b *BuiltinRunner) writeFile(path string, r io.Reader, mode os.FileMode) (err error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "replacing %s", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", path)
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	if _, err := io.Copy(b.writer(f), r); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	b.fileDone()
	return nil
}
