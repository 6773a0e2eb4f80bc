package tagcodec

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Wire geometry of the reader's tag memory.
const (
	// BlockSize is the size of one transponder memory block in bytes.
	BlockSize = 4

	// BlockCount is the number of blocks read or written per tag.
	BlockCount = 56

	// PayloadSize is the fixed payload slot (BlockCount * BlockSize).
	PayloadSize = BlockCount * BlockSize

	// TagIDSize is the fixed identifier slot.
	TagIDSize = 32

	// DefaultCharset is the code page used when none is configured.
	DefaultCharset = "windows-1251"
)

// Payload is one tag's user memory as exchanged with the driver.
type Payload [PayloadSize]byte

// TagID is one transponder identifier as exchanged with the driver.
type TagID [TagIDSize]byte

// IsBlank reports whether every byte of the payload is NUL.
func (p *Payload) IsBlank() bool {
	return *p == Payload{}
}

// Codec encodes payload text with a fixed single-byte code page or UTF-8.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	charset string
	enc     encoding.Encoding
	utf8    bool
}

// New returns a Codec for the named charset (WHATWG names, e.g.
// "windows-1251", "koi8-r", "utf-8").
func New(charset string) (*Codec, error) {
	if charset == "" {
		charset = DefaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCharset, charset)
	}

	c := &Codec{charset: strings.ToLower(charset), enc: enc}
	switch enc.(type) {
	case *charmap.Charmap:
	default:
		if enc != unicode.UTF8 {
			return nil, fmt.Errorf("%w: %q is not a single-byte code page", ErrUnsupportedCharset, charset)
		}
		c.utf8 = true
	}
	return c, nil
}

// Default returns a Codec for DefaultCharset.
func Default() *Codec {
	return &Codec{charset: DefaultCharset, enc: charmap.Windows1251}
}

// Charset returns the configured code page name.
func (c *Codec) Charset() string {
	return c.charset
}

// EncodePayload converts text to a payload block. Text longer than
// PayloadSize after encoding is truncated; shorter text is NUL padded.
// Empty text yields an all-NUL (blank) block.
func (c *Codec) EncodePayload(text string) (Payload, error) {
	var p Payload
	if strings.IndexByte(text, 0) >= 0 {
		return p, fmt.Errorf("%w: text contains NUL", ErrInvalidPayload)
	}

	raw, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return p, fmt.Errorf("%w: not representable in %s: %w", ErrInvalidPayload, c.charset, err)
	}
	if len(raw) > PayloadSize {
		raw = c.truncate(raw)
	}
	copy(p[:], raw)
	return p, nil
}

// truncate cuts raw to PayloadSize without splitting a UTF-8 sequence.
func (c *Codec) truncate(raw []byte) []byte {
	n := PayloadSize
	if c.utf8 {
		for n > 0 && !utf8.RuneStart(raw[n]) {
			n--
		}
	}
	return raw[:n]
}

// DecodePayload converts a payload block back to text. Trailing NUL bytes
// are stripped before decoding.
func (c *Codec) DecodePayload(p Payload) (string, error) {
	trimmed := bytes.TrimRight(p[:], "\x00")
	out, err := c.enc.NewDecoder().Bytes(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return string(out), nil
}

// EncodeTagID converts an ASCII identifier to its fixed slot. Non-ASCII
// characters, NUL bytes and identifiers longer than TagIDSize are rejected.
func EncodeTagID(text string) (TagID, error) {
	var id TagID
	if len(text) > TagIDSize {
		return id, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidTagID, len(text), TagIDSize)
	}
	for i := 0; i < len(text); i++ {
		b := text[i]
		if b == 0 || b >= utf8.RuneSelf {
			return id, fmt.Errorf("%w: non-ASCII byte 0x%02x at %d", ErrInvalidTagID, b, i)
		}
	}
	copy(id[:], text)
	return id, nil
}

// DecodeTagID converts an identifier slot back to text.
func DecodeTagID(id TagID) (string, error) {
	trimmed := bytes.TrimRight(id[:], "\x00")
	for i, b := range trimmed {
		if b == 0 || b >= utf8.RuneSelf {
			return "", fmt.Errorf("%w: non-ASCII byte 0x%02x at %d", ErrInvalidTagID, b, i)
		}
	}
	return string(trimmed), nil
}

// ValidTagID reports whether text is a non-empty identifier accepted by
// EncodeTagID.
func ValidTagID(text string) bool {
	if text == "" {
		return false
	}
	_, err := EncodeTagID(text)
	return err == nil
}
