// Package format holds the static table of compression and archive formats
// peel knows how to unwrap.
package format

import (
	"fmt"
	"strings"
)

// Format identifies a compression or archive format
type Format int

const (
	Unknown Format = iota
	Gzip
	Bzip2
	Xz
	Zstd
	Lz4
	Zip
	SevenZip
	Rar
	Tar

	numFormats
)

// Kind distinguishes how output files are discovered after extraction
type Kind int

const (
	// SingleStream formats turn one input into exactly one output
	SingleStream Kind = iota
	// Archive formats expand into zero or more files in the working directory
	Archive
)

func (k Kind) String() string {
	if k == Archive {
		return "archive"
	}
	return "single-stream"
}

// Descriptor describes how a detected format is normalized and extracted
type Descriptor struct {
	MIMEType  string   // Detected MIME type that selected this descriptor
	Format    Format   // Format identifier
	Extension string   // Canonical extension, empty means no rename
	Kind      Kind     // Output discovery rule
	Tool      []string // Extraction command, the path is appended
}

// Command returns the argv that extracts path
func (d Descriptor) Command(path string) []string {
	argv := make([]string, 0, len(d.Tool)+1)
	argv = append(argv, d.Tool...)
	return append(argv, path)
}

type entry struct {
	name      string
	extension string
	kind      Kind
	tool      []string
}

var entries = [numFormats]entry{
	Unknown:  {name: "unknown"},
	Gzip:     {name: "gzip", extension: ".gz", kind: SingleStream, tool: []string{"gunzip"}},
	Bzip2:    {name: "bzip2", extension: ".bz2", kind: SingleStream, tool: []string{"bunzip2"}},
	Xz:       {name: "xz", extension: ".xz", kind: SingleStream, tool: []string{"unxz"}},
	Zstd:     {name: "zstd", extension: ".zst", kind: SingleStream, tool: []string{"zstd", "-d"}},
	Lz4:      {name: "lz4", extension: ".lz4", kind: SingleStream, tool: []string{"lz4", "-d"}},
	Zip:      {name: "zip", extension: ".zip", kind: Archive, tool: []string{"unzip", "-o"}},
	SevenZip: {name: "7z", extension: ".7z", kind: Archive, tool: []string{"7z", "x"}},
	Rar:      {name: "rar", extension: ".rar", kind: Archive, tool: []string{"unrar", "x", "-o+"}},
	Tar:      {name: "tar", extension: ".tar", kind: Archive, tool: []string{"tar", "-xf"}},
}

var mimeTypes = map[string]Format{
	"application/gzip":             Gzip,
	"application/x-gzip":           Gzip,
	"application/x-bzip2":          Bzip2,
	"application/x-xz":             Xz,
	"application/zstd":             Zstd,
	"application/x-zstd":           Zstd,
	"application/x-lz4":            Lz4,
	"application/zip":              Zip,
	"application/x-7z-compressed":  SevenZip,
	"application/x-rar":            Rar,
	"application/x-rar-compressed": Rar,
	"application/vnd.rar":          Rar,
	"application/x-tar":            Tar,
	"application/x-gtar":           Tar,
}

func (f Format) String() string {
	if f < 0 || f >= numFormats {
		return fmt.Sprintf("format(%d)", int(f))
	}
	return entries[f].name
}

// Formats returns every known format except Unknown
func Formats() []Format {
	out := make([]Format, 0, numFormats-1)
	for f := Unknown + 1; f < numFormats; f++ {
		out = append(out, f)
	}
	return out
}

// ParseFormat maps a format name such as "gzip" or "7z" to its Format
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Formats() {
		if entries[f].name == name {
			return f, nil
		}
	}
	return Unknown, fmt.Errorf("unknown format %q", name)
}

// FromMIME returns the format for a MIME type, or Unknown
func FromMIME(mime string) Format {
	return mimeTypes[strings.ToLower(strings.TrimSpace(mime))]
}
