package sniff

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

const fileBinary = "file"

// FileCommand asks the file(1) utility for the MIME type
type FileCommand struct {
	// Binary overrides the utility path, defaults to "file" on PATH
	Binary string
}

// Sniff runs file --brief --mime-type on path
func (fc FileCommand) Sniff(ctx context.Context, path string) (string, error) {
	bin := fc.Binary
	if bin == "" {
		bin = fileBinary
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--brief", "--mime-type", "--", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(ErrSniff, "running %s on %s: %v: %s", bin, path, err, strings.TrimSpace(stderr.String()))
	}
	mime := strings.TrimSpace(stdout.String())
	if mime == "" {
		return "", errors.Wrapf(ErrSniff, "%s printed no type for %s", bin, path)
	}
	return mime, nil
}
