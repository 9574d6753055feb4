package extract

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

// stream emulates a single-stream decompressor such as gunzip: the output is
// written next to path with ext removed. keepInput mirrors tools like zstd
// and lz4 that leave the compressed file in place.
func stream(ext string, keepInput bool, open func(io.Reader) (io.ReadCloser, error)) toolFunc {
	return func(ctx context.Context, b *BuiltinRunner, dir, path string) error {
		if !strings.HasSuffix(path, ext) || len(path) == len(ext) {
			return errors.Errorf("%s: unknown suffix, expected %s", path, ext)
		}
		out := strings.TrimSuffix(path, ext)

		in, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "opening %s", path)
		}
		defer in.Close()
		info, err := in.Stat()
		if err != nil {
			return errors.Wrapf(err, "stat %s", path)
		}

		zr, err := open(in)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		defer zr.Close()

		if err := b.writeFile(out, &ctxReader{ctx: ctx, r: zr}, info.Mode().Perm()); err != nil {
			return err
		}
		if keepInput {
			return nil
		}
		in.Close()
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "removing %s", path)
		}
		return nil
	}
}

// archive emulates an archive tool extracting every entry into dir,
// overwriting files that already exist
func archive(ex archives.Extractor) toolFunc {
	return func(ctx context.Context, b *BuiltinRunner, dir, path string) error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "opening %s", path)
		}
		defer f.Close()

		return ex.Extract(ctx, f, func(ctx context.Context, fi archives.FileInfo) error {
			target, err := safeJoin(dir, fi.NameInArchive)
			if err != nil {
				return err
			}
			switch {
			case fi.IsDir():
				return os.MkdirAll(target, 0755)
			case !fi.Mode().IsRegular():
				b.Logger.Debug("skipping non-regular archive entry", "archive", path, "entry", fi.NameInArchive, "mode", fi.Mode().String())
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return errors.Wrapf(err, "creating parent of %s", target)
			}
			rc, err := fi.Open()
			if err != nil {
				return errors.Wrapf(err, "opening %s in %s", fi.NameInArchive, path)
			}
			defer rc.Close()
			return b.writeFile(target, &ctxReader{ctx: ctx, r: rc}, entryMode(fi.Mode()))
		})
	}
}

func entryMode(m fs.FileMode) os.FileMode {
	if perm := m.Perm(); perm != 0 {
		return perm
	}
	return 0644
}

// safeJoin resolves an archive entry name inside dir and rejects names that
// would land outside it
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return "", errors.Wrapf(err, "resolving entry %q", name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("refusing entry %q outside %s", name, dir)
	}
	return target, nil
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
