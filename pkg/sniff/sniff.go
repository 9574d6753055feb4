// Package sniff detects the content type of a file and reports it as a MIME
// type string.
package sniff

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

// ErrSniff is returned when a file's content type cannot be determined.
// It is fatal to an unwrap run.
var ErrSniff = errors.New("content type detection failed")

// Fallback MIME types for content no signature matches
const (
	OctetStream = "application/octet-stream"
	PlainText   = "text/plain"
	Empty       = "inode/x-empty"
)

// Sniffer maps a file path to a MIME type
type Sniffer interface {
	Sniff(ctx context.Context, path string) (string, error)
}

// Auto returns a FileCommand sniffer when the file utility is installed and
// a Magic sniffer otherwise
func Auto() Sniffer {
	if _, err := exec.LookPath(fileBinary); err == nil {
		return FileCommand{}
	}
	return Magic{}
}

// New returns the sniffer registered under name: "file", "magic" or "auto"
func New(name string) (Sniffer, error) {
	switch name {
	case "", "auto":
		return Auto(), nil
	case "file":
		return FileCommand{}, nil
	case "magic":
		return Magic{}, nil
	default:
		return nil, errors.Errorf("unknown sniffer %q", name)
	}
}
