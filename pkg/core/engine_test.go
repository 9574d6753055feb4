package core

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"peel/internal/peeltest"
	"peel/pkg/extract"
	"peel/pkg/normalize"
	"peel/pkg/sniff"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingSniffer remembers every path it was asked about
type recordingSniffer struct {
	inner sniff.Sniffer
	paths []string
	err   error
}

func (s *recordingSniffer) Sniff(ctx context.Context, path string) (string, error) {
	s.paths = append(s.paths, path)
	if s.err != nil {
		return "", s.err
	}
	return s.inner.Sniff(ctx, path)
}

// failingRunner fails the named tool and delegates everything else
type failingRunner struct {
	tool  string
	inner extract.Runner
	calls [][]string
}

func (r *failingRunner) Run(ctx context.Context, dir string, argv []string) error {
	r.calls = append(r.calls, argv)
	if argv[0] == r.tool {
		return errors.New("exit status 1")
	}
	return r.inner.Run(ctx, dir, argv)
}

type harness struct {
	dir     string
	sniffer *recordingSniffer
	runner  *failingRunner
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:     t.TempDir(),
		sniffer: &recordingSniffer{inner: sniff.Magic{}},
		runner:  &failingRunner{inner: extract.NewBuiltinRunner(nil, discard)},
	}
	e, err := New(Options{
		Dir:        h.dir,
		Sniffer:    h.sniffer,
		Normalizer: normalize.New(normalize.Suffix, discard),
		Extractor:  extract.New(h.dir, h.runner, discard),
		Logger:     discard,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.engine = e
	h.dir = e.Dir()
	return h
}

func (h *harness) path(name string) string { return filepath.Join(h.dir, name) }

func (h *harness) paths(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = h.path(n)
	}
	return out
}

func (h *harness) listing(t *testing.T) []string {
	t.Helper()
	var names []string
	err := filepath.WalkDir(h.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(h.dir, path)
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	return names
}

func TestRunSingleLayerRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("incident report line\n"), 200)
	tests := []struct {
		name     string
		ext      string
		compress func(testing.TB, []byte) []byte
	}{
		{"gzip", ".gz", peeltest.Gzip},
		{"bzip2", ".bz2", peeltest.Bzip2},
		{"xz", ".xz", peeltest.Xz},
		{"zstd", ".zst", peeltest.Zstd},
		{"lz4", ".lz4", peeltest.Lz4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			peeltest.Write(t, h.path("report.txt"+tc.ext), tc.compress(t, plain))

			res, err := h.engine.Run(context.Background(), h.path("report.txt"+tc.ext))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !bytes.Equal(peeltest.Read(t, h.path("report.txt")), plain) {
				t.Error("unwrapped content differs from the original")
			}
			if diff := cmp.Diff(h.paths("report.txt"+tc.ext, "report.txt"), res.Processed); diff != "" {
				t.Errorf("Processed mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(h.paths("report.txt"), res.Leaves); diff != "" {
				t.Errorf("Leaves mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunMultiLayer(t *testing.T) {
	h := newHarness(t)
	tarball := peeltest.Tar(t, peeltest.File{Name: "notes.txt", Body: "layered secret\n"})
	peeltest.Write(t, h.path("bundle.tar.gz"), peeltest.Gzip(t, tarball))

	res, err := h.engine.Run(context.Background(), h.path("bundle.tar.gz"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"bundle.tar", "notes.txt"}, h.listing(t)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(peeltest.Read(t, h.path("bundle.tar")), tarball) {
		t.Error("intermediate tar differs")
	}
	if got := string(peeltest.Read(t, h.path("notes.txt"))); got != "layered secret\n" {
		t.Errorf("notes.txt = %q", got)
	}
	if diff := cmp.Diff(h.paths("bundle.tar.gz", "bundle.tar"), res.Extracted); diff != "" {
		t.Errorf("Extracted mismatch (-want +got):\n%s", diff)
	}
}

func TestRunExtensionCorrection(t *testing.T) {
	h := newHarness(t)
	peeltest.Write(t, h.path("data.bin"), peeltest.Zip(t, peeltest.File{Name: "inner.txt", Body: "inside"}))

	res, err := h.engine.Run(context.Background(), h.path("data.bin"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(h.paths("data.bin.zip", "inner.txt"), res.Processed); diff != "" {
		t.Errorf("Processed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"data.bin.zip", "inner.txt"}, h.listing(t)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
	want := [][]string{{"unzip", "-o", h.path("data.bin.zip")}}
	if diff := cmp.Diff(want, h.runner.calls); diff != "" {
		t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRunUnknownLeaf(t *testing.T) {
	h := newHarness(t)
	peeltest.Write(t, h.path("plain.txt"), []byte("nothing to see"))

	res, err := h.engine.Run(context.Background(), h.path("plain.txt"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.runner.calls) != 0 {
		t.Errorf("tool invoked for a plain file: %v", h.runner.calls)
	}
	want := &Result{Processed: h.paths("plain.txt"), Leaves: h.paths("plain.txt")}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBzhTextIsLeaf(t *testing.T) {
	h := newHarness(t)
	peeltest.Write(t, h.path("notes.txt"), []byte("BZh, see the report\n"))

	res, err := h.engine.Run(context.Background(), h.path("notes.txt"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.runner.calls) != 0 {
		t.Errorf("tool invoked for text: %v", h.runner.calls)
	}
	if diff := cmp.Diff(h.paths("notes.txt"), res.Leaves); diff != "" {
		t.Errorf("Leaves mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"notes.txt"}, h.listing(t)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestRunIdempotent(t *testing.T) {
	h := newHarness(t)
	tarball := peeltest.Tar(t,
		peeltest.File{Name: "a.txt", Body: "alpha"},
		peeltest.File{Name: "b.txt", Body: "beta"},
	)
	peeltest.Write(t, h.path("set.tar.xz"), peeltest.Xz(t, tarball))
	if _, err := h.engine.Run(context.Background(), h.path("set.tar.xz")); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := h.listing(t)

	for _, name := range before {
		if _, err := h.engine.Run(context.Background(), h.path(name)); err != nil {
			t.Fatalf("re-Run(%s): %v", name, err)
		}
	}
	if diff := cmp.Diff(before, h.listing(t)); diff != "" {
		t.Errorf("re-run changed the directory (-want +got):\n%s", diff)
	}
}

func TestRunVisitsEachFileOnce(t *testing.T) {
	h := newHarness(t)
	inner := peeltest.Zip(t, peeltest.File{Name: "leaf.txt", Body: "leaf"})
	peeltest.Write(t, h.path("outer.zip"), peeltest.Zip(t, peeltest.File{Name: "inner.zip", Body: string(inner)}))

	res, err := h.engine.Run(context.Background(), h.path("outer.zip"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Extracting inner.zip lists outer.zip again; it must not be reprocessed.
	if diff := cmp.Diff(h.paths("outer.zip", "inner.zip"), res.Extracted); diff != "" {
		t.Errorf("Extracted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(h.paths("outer.zip", "inner.zip", "leaf.txt"), res.Processed); diff != "" {
		t.Errorf("Processed mismatch (-want +got):\n%s", diff)
	}
}

func TestRunExtractionFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.runner.tool = "gunzip"
	peeltest.Write(t, h.path("bundle.zip"), peeltest.Zip(t,
		peeltest.File{Name: "first.txt.gz", Body: string(peeltest.Gzip(t, []byte("one")))},
		peeltest.File{Name: "second.txt", Body: "two"},
	))

	_, err := h.engine.Run(context.Background(), h.path("bundle.zip"))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	if diff := cmp.Diff(h.paths("bundle.zip", "first.txt.gz"), h.sniffer.paths); diff != "" {
		t.Errorf("sniffed paths mismatch (-want +got):\n%s", diff)
	}
	// Earlier extraction results are not rolled back.
	if _, err := os.Stat(h.path("second.txt")); err != nil {
		t.Errorf("second.txt missing: %v", err)
	}
}

func TestRunSniffFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.sniffer.err = errors.Wrap(sniff.ErrSniff, "file exited 1")
	peeltest.Write(t, h.path("a.gz"), peeltest.Gzip(t, []byte("a")))

	_, err := h.engine.Run(context.Background(), h.path("a.gz"))
	if !errors.Is(err, ErrSniff) {
		t.Fatalf("err = %v, want ErrSniff", err)
	}
	if len(h.runner.calls) != 0 {
		t.Errorf("tool invoked after sniff failure: %v", h.runner.calls)
	}
}

func TestRunCollisionFailIsFatal(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{
		Dir:        dir,
		Sniffer:    sniff.Magic{},
		Normalizer: normalize.New(normalize.Fail, discard),
		Extractor:  extract.New(dir, extract.NewBuiltinRunner(nil, discard), discard),
		Logger:     discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	peeltest.Write(t, filepath.Join(dir, "blob"), peeltest.Lz4(t, []byte("x")))
	peeltest.Write(t, filepath.Join(dir, "blob.lz4"), []byte("occupied"))

	if _, err := e.Run(context.Background(), filepath.Join(dir, "blob")); !errors.Is(err, ErrCollision) {
		t.Errorf("err = %v, want ErrCollision", err)
	}
}

func TestRunSkipsMissingAndDirectories(t *testing.T) {
	h := newHarness(t)
	if err := os.Mkdir(h.path("folder"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"missing", "folder"} {
		res, err := h.engine.Run(context.Background(), h.path(name))
		if err != nil {
			t.Fatalf("Run(%s): %v", name, err)
		}
		if len(res.Processed) != 0 || len(h.sniffer.paths) != 0 {
			t.Errorf("Run(%s) processed %v, sniffed %v", name, res.Processed, h.sniffer.paths)
		}
	}
}

func TestRunRelativePath(t *testing.T) {
	h := newHarness(t)
	peeltest.Write(t, h.path("doc.txt.zst"), peeltest.Zstd(t, []byte("relative")))

	res, err := h.engine.Run(context.Background(), "doc.txt.zst")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(h.paths("doc.txt.zst", "doc.txt"), res.Processed); diff != "" {
		t.Errorf("Processed mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t)
	peeltest.Write(t, h.path("a.gz"), peeltest.Gzip(t, []byte("a")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Run(ctx, h.path("a.gz"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(h.sniffer.paths) != 0 {
		t.Errorf("sniffed after cancellation: %v", h.sniffer.paths)
	}
}

func TestNewValidates(t *testing.T) {
	dir := t.TempDir()
	x := extract.New(dir, extract.NewBuiltinRunner(nil, discard), discard)
	if _, err := New(Options{Dir: dir, Extractor: x}); err == nil {
		t.Error("New accepted a missing sniffer")
	}
	if _, err := New(Options{Dir: dir, Sniffer: sniff.Magic{}}); err == nil {
		t.Error("New accepted a missing extractor")
	}
	if _, err := New(Options{Dir: filepath.Join(dir, "nope"), Sniffer: sniff.Magic{}, Extractor: x}); err == nil {
		t.Error("New accepted a missing directory")
	}
	e, err := New(Options{Dir: dir, Sniffer: sniff.Magic{}, Extractor: x})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.catalog == nil || e.normalizer == nil || e.logger == nil {
		t.Error("defaults not applied")
	}
	if _, ok := e.catalog.Lookup("application/zip"); !ok {
		t.Error("default catalog lacks zip")
	}
}
