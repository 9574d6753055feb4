package format

import (
	"fmt"
	"strings"
)

// Catalog maps detected MIME types to descriptors. It is read-only once built.
type Catalog struct {
	tools [numFormats][]string
}

// NewCatalog builds a catalog, replacing the default tool of any format
// present in overrides
func NewCatalog(overrides map[Format][]string) (*Catalog, error) {
	c := &Catalog{}
	for f := Unknown + 1; f < numFormats; f++ {
		c.tools[f] = entries[f].tool
	}
	for f, tool := range overrides {
		if f <= Unknown || f >= numFormats {
			return nil, fmt.Errorf("override for unknown format %d", int(f))
		}
		if len(tool) == 0 {
			return nil, fmt.Errorf("empty tool override for %s", f)
		}
		c.tools[f] = append([]string(nil), tool...)
	}
	return c, nil
}

// DefaultCatalog returns a catalog with the stock tool for every format
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(nil)
	return c
}

// Lookup returns the descriptor for a MIME type. A false result means the
// content is not something peel unwraps.
func (c *Catalog) Lookup(mime string) (Descriptor, bool) {
	f := FromMIME(mime)
	if f == Unknown {
		return Descriptor{}, false
	}
	return c.Describe(f, strings.ToLower(strings.TrimSpace(mime))), true
}

// Describe returns the descriptor for a known format
func (c *Catalog) Describe(f Format, mime string) Descriptor {
	e := entries[f]
	return Descriptor{
		MIMEType:  mime,
		Format:    f,
		Extension: e.extension,
		Kind:      e.kind,
		Tool:      append([]string(nil), c.tools[f]...),
	}
}
