package progress

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker reports how many bytes in-process extraction has written
type Tracker struct {
	out      io.Writer
	interval time.Duration

	written atomic.Uint64
	files   atomic.Uint64

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewTracker returns a Tracker printing to out. A nil out discards reports
// but still counts bytes. Pass the SyncWriter a logger also writes to when
// both share a stream.
func NewTracker(out io.Writer) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{out: NewSyncWriter(out), interval: time.Second}
}

// Start begins periodic reporting
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	t.written.Store(0)
	t.files.Store(0)
	t.done = make(chan struct{})
	t.stopped = make(chan struct{})
	t.running = true
	go t.logger(t.done, t.stopped)
}

// Stop ends reporting and prints a summary
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		close(t.done)
		<-t.stopped
		t.running = false
	}
}

// AddBytes adds written bytes to the counter
func (t *Tracker) AddBytes(n uint64) {
	if n > 0 {
		t.written.Add(n)
	}
}

// AddFile counts one completed output file
func (t *Tracker) AddFile() {
	t.files.Add(1)
}

// Bytes returns the number of bytes written so far
func (t *Tracker) Bytes() uint64 {
	return t.written.Load()
}

// Files returns the number of completed output files
func (t *Tracker) Files() uint64 {
	return t.files.Load()
}

// formatSize returns a human-readable size string
func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatRate returns a human-readable rate string
func formatRate(bytesPerSec uint64) string {
	return formatSize(bytesPerSec) + "/s"
}

// logger prints a line whenever the byte count moved since the last tick
func (t *Tracker) logger(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	var prevBytes uint64
	startTime := time.Now()

	for {
		select {
		case <-ticker.C:
			current := t.written.Load()
			if current == prevBytes {
				continue
			}
			rate := uint64(float64(current-prevBytes) / t.interval.Seconds())
			prevBytes = current
			fmt.Fprintf(t.out, "Extracted %s in %d files | Rate: %s\n",
				formatSize(current), t.files.Load(), formatRate(rate))
		case <-done:
			total := t.written.Load()
			if total == 0 {
				return
			}
			elapsed := time.Since(startTime).Seconds()
			if elapsed < 0.001 {
				elapsed = 0.001
			}
			fmt.Fprintf(t.out, "Completed extracting %s in %d files in %.1f seconds (avg rate: %s)\n",
				formatSize(total), t.files.Load(), elapsed, formatRate(uint64(float64(total)/elapsed)))
			return
		}
	}
}

// Writer tracks bytes written through it
type Writer struct {
	W io.Writer
	T *Tracker
}

// Write implements io.Writer and tracks bytes written
func (pw *Writer) Write(p []byte) (n int, err error) {
	n, err = pw.W.Write(p)
	if n > 0 && pw.T != nil {
		pw.T.AddBytes(uint64(n))
	}
	return
}

// SyncWriter serializes writes to an underlying writer
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w, returning w itself if it already is a SyncWriter
func NewSyncWriter(w io.Writer) *SyncWriter {
	if sw, ok := w.(*SyncWriter); ok {
		return sw
	}
	return &SyncWriter{w: w}
}

// Write implements io.Writer
func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
