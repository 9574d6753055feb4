package progress

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tc := range tests {
		if got := formatSize(tc.in); got != tc.want {
			t.Errorf("formatSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := formatRate(2048); got != "2.0 KiB/s" {
		t.Errorf("formatRate(2048) = %q", got)
	}
}

func TestWriterCounts(t *testing.T) {
	tr := NewTracker(nil)
	var dst bytes.Buffer
	w := &Writer{W: &dst, T: tr}
	for i := 0; i < 3; i++ {
		if _, err := w.Write([]byte("abcd")); err != nil {
			t.Fatal(err)
		}
	}
	if tr.Bytes() != 12 {
		t.Errorf("Bytes() = %d, want 12", tr.Bytes())
	}
	if dst.String() != "abcdabcdabcd" {
		t.Errorf("dst = %q", dst.String())
	}
}

func TestStopPrintsSummary(t *testing.T) {
	var out syncBuffer
	tr := NewTracker(&out)
	tr.Start()
	tr.AddBytes(2048)
	tr.AddFile()
	tr.Stop()
	// A second Stop is a no-op.
	tr.Stop()

	if got := out.String(); !strings.Contains(got, "Completed extracting 2.0 KiB in 1 files") {
		t.Errorf("summary missing, got %q", got)
	}
}

func TestStopSilentWhenIdle(t *testing.T) {
	var out syncBuffer
	tr := NewTracker(&out)
	tr.Start()
	tr.Stop()
	if got := out.String(); got != "" {
		t.Errorf("idle tracker printed %q", got)
	}
}

func TestSharedWriterWithTicks(t *testing.T) {
	var buf bytes.Buffer
	out := NewSyncWriter(&buf)
	if NewSyncWriter(out) != out {
		t.Fatal("NewSyncWriter rewrapped a SyncWriter")
	}
	tr := NewTracker(out)
	tr.interval = time.Millisecond
	tr.Start()

	// Writes here interleave with the tracker's own ticks on out.
	for i := 0; i < 200; i++ {
		tr.AddBytes(1)
		fmt.Fprintf(out, "log line %d\n", i)
		time.Sleep(50 * time.Microsecond)
	}
	tr.Stop()

	got := buf.String()
	if !strings.Contains(got, "log line 199\n") {
		t.Errorf("log lines missing from %q", got)
	}
	if !strings.Contains(got, "Completed extracting 200 B") {
		t.Errorf("summary missing from %q", got)
	}
}
