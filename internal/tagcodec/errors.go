package tagcodec

import "errors"

var (
	// ErrInvalidTagID is returned when an identifier is empty of meaning for
	// the wire: non-ASCII, containing NUL, or longer than TagIDSize.
	ErrInvalidTagID = errors.New("tagcodec: invalid tag id")

	// ErrInvalidPayload is returned when text cannot be represented in the
	// reader's code page or contains NUL bytes.
	ErrInvalidPayload = errors.New("tagcodec: invalid payload")

	// ErrUnsupportedCharset is returned by New for unknown or multi-byte
	// code pages other than UTF-8.
	ErrUnsupportedCharset = errors.New("tagcodec: unsupported charset")
)
