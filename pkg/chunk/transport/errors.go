package transport

import "github.com/cockroachdb/errors"

var (
	// Framing errors. Every decode error poisons the connection; the reader
	// cannot resynchronize on a stream with a bad length prefix.
	ErrFrameTooLarge    = errors.New("frame exceeds max frame size")
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrMalformedFrame   = errors.New("malformed frame")
)
