package sniff

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

type signature struct {
	offset int
	magic  []byte
	mime   string
	// valid, when set, must also accept the head
	valid func(head []byte) bool
}

// Longer matches come first where prefixes overlap.
var signatures = []signature{
	{offset: 0, magic: []byte{0x1F, 0x8B}, mime: "application/gzip"},
	{offset: 0, magic: []byte("BZh"), mime: "application/x-bzip2", valid: isBzip2},
	{offset: 0, magic: []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}, mime: "application/x-xz"},
	{offset: 0, magic: []byte{0x28, 0xB5, 0x2F, 0xFD}, mime: "application/zstd"},
	{offset: 0, magic: []byte{0x04, 0x22, 0x4D, 0x18}, mime: "application/x-lz4"},
	{offset: 0, magic: []byte{0x02, 0x21, 0x4C, 0x18}, mime: "application/x-lz4"},
	{offset: 0, magic: []byte{0x50, 0x4B, 0x03, 0x04}, mime: "application/zip"},
	{offset: 0, magic: []byte{0x50, 0x4B, 0x05, 0x06}, mime: "application/zip"},
	{offset: 0, magic: []byte{0x50, 0x4B, 0x07, 0x08}, mime: "application/zip"},
	{offset: 0, magic: []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, mime: "application/x-7z-compressed"},
	{offset: 0, magic: []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, mime: "application/x-rar"},
	{offset: 0, magic: []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}, mime: "application/x-rar"},
	{offset: tarMagicOffset, magic: []byte("ustar  \x00"), mime: "application/x-gtar"},
	{offset: tarMagicOffset, magic: []byte("ustar\x00"), mime: "application/x-tar"},
}

const (
	tarMagicOffset = 257
	peekSize       = 1024
)

// Magic detects formats from their leading signature bytes without any
// external tool
type Magic struct{}

// Sniff reads the head of path and matches it against known signatures
func (Magic) Sniff(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(ErrSniff, "opening %s: %v", path, err)
	}
	defer f.Close()

	buf := make([]byte, peekSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", errors.Wrapf(ErrSniff, "reading %s: %v", path, err)
	}
	return Detect(buf[:n]), nil
}

// Detect returns the MIME type for a buffer holding the start of a file
func Detect(head []byte) string {
	if len(head) == 0 {
		return Empty
	}
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if end > len(head) {
			continue
		}
		if !bytes.Equal(head[sig.offset:end], sig.magic) {
			continue
		}
		if sig.valid == nil || sig.valid(head) {
			return sig.mime
		}
	}
	if isBinary(head) {
		return OctetStream
	}
	return PlainText
}

var (
	bzip2Block = []byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}
	bzip2End   = []byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}
)

// isBzip2 checks the block size digit after "BZh" and the magic of the
// first block, so text that happens to start with "BZh" stays text.
func isBzip2(head []byte) bool {
	if len(head) < 10 || head[3] < '1' || head[3] > '9' {
		return false
	}
	m := head[4:10]
	return bytes.Equal(m, bzip2Block) || bytes.Equal(m, bzip2End)
}

func isBinary(buf []byte) bool {
	if bytes.IndexByte(buf, 0) >= 0 {
		return true
	}
	// A high share of control characters other than whitespace means binary.
	nonPrintable := 0
	for _, b := range buf {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' && b != '\f' {
			nonPrintable++
		}
	}
	return nonPrintable*4 > len(buf)
}
