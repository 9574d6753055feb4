// Package normalize renames files so their extension matches their detected
// content. Several extraction tools pick their behaviour from the file name,
// so a zip stored as data.bin has to become data.bin.zip first.
package normalize

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"

	"peel/pkg/format"
)

// ErrCollision is returned when the renamed path is already taken and the
// policy does not allow replacing it
var ErrCollision = errors.New("rename target already exists")

// Policy decides what happens when the renamed path already exists
type Policy int

const (
	// Suffix picks the first free name of the form path-N+ext
	Suffix Policy = iota
	// Fail aborts with ErrCollision
	Fail
	// Overwrite replaces the existing file
	Overwrite
)

// maxSuffix bounds the search for a free name under the Suffix policy
const maxSuffix = 1000

func (p Policy) String() string {
	switch p {
	case Fail:
		return "fail"
	case Overwrite:
		return "overwrite"
	default:
		return "suffix"
	}
}

// ParsePolicy parses "fail", "overwrite" or "suffix"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "suffix":
		return Suffix, nil
	case "fail":
		return Fail, nil
	case "overwrite":
		return Overwrite, nil
	default:
		return Suffix, errors.Errorf("unknown collision policy %q", s)
	}
}

// Normalizer gives files their canonical extension
type Normalizer struct {
	Policy Policy
	Logger *slog.Logger
}

// New returns a Normalizer using policy
func New(policy Policy, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{Policy: policy, Logger: logger}
}

// Normalize renames path to carry d's extension when it does not already,
// and returns the path the file now lives at
func (n *Normalizer) Normalize(path string, d format.Descriptor) (string, error) {
	ext := d.Extension
	if ext == "" || strings.HasSuffix(path, ext) {
		return path, nil
	}
	target, err := n.target(path, ext)
	if err != nil {
		return "", err
	}
	n.Logger.Info("renaming for proper extension", "from", path, "to", target)
	if err := os.Rename(path, target); err != nil {
		return "", errors.Wrapf(err, "renaming %s to %s", path, target)
	}
	return target, nil
}

func (n *Normalizer) target(path, ext string) (string, error) {
	target := path + ext
	taken, err := exists(target)
	if err != nil || !taken {
		return target, err
	}
	switch n.Policy {
	case Overwrite:
		return target, nil
	case Fail:
		return "", errors.Wrapf(ErrCollision, "renaming %s to %s", path, target)
	}
	for i := 1; i <= maxSuffix; i++ {
		candidate := fmt.Sprintf("%s-%d%s", path, i, ext)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrCollision, "no free name for %s after %d attempts", path, maxSuffix)
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "checking %s", path)
	}
}
