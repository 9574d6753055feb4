// Package config loads peel's optional YAML configuration file.
//
// Example:
//
//	backend: auto
//	sniffer: file
//	on_collision: suffix
//	timeout: 10m
//	tools:
//	  7z: [7z, x, -y]
//	  gzip: [pigz, -d]
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v3"

	"peel/pkg/format"
	"peel/pkg/normalize"
	"peel/pkg/sniff"
)

// Extraction backends
const (
	BackendExec    = "exec"
	BackendBuiltin = "builtin"
	BackendAuto    = "auto"
)

// Config holds everything needed to build an unwrap engine
type Config struct {
	Dir         string              `yaml:"dir"`
	Backend     string              `yaml:"backend"`
	Sniffer     string              `yaml:"sniffer"`
	OnCollision string              `yaml:"on_collision"`
	Timeout     Duration            `yaml:"timeout"`
	Progress    bool                `yaml:"progress"`
	Tools       map[string][]string `yaml:"tools"`
}

// Duration is a time.Duration read from strings such as "90s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d: parsing duration", node.Line)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Dir:         ".",
		Backend:     BackendAuto,
		Sniffer:     "auto",
		OnCollision: normalize.Suffix.String(),
		Progress:    true,
	}
}

// Load reads path on top of Default
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "validating %s", path)
	}
	return cfg, nil
}

// Validate checks every field names something peel knows
func (c Config) Validate() error {
	switch c.Backend {
	case BackendExec, BackendBuiltin, BackendAuto:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := sniff.New(c.Sniffer); err != nil {
		return err
	}
	if _, err := normalize.ParsePolicy(c.OnCollision); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	_, err := c.ToolOverrides()
	return err
}

// ToolOverrides converts the tools map into catalog overrides
func (c Config) ToolOverrides() (map[format.Format][]string, error) {
	if len(c.Tools) == 0 {
		return nil, nil
	}
	out := make(map[format.Format][]string, len(c.Tools))
	for name, argv := range c.Tools {
		f, err := format.ParseFormat(name)
		if err != nil {
			return nil, errors.Wrap(err, "tools")
		}
		if len(argv) == 0 {
			return nil, errors.Errorf("tools: empty command for %s", name)
		}
		out[f] = argv
	}
	return out, nil
}
