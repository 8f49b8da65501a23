package protocol

import "errors"

var (
	// ErrMalformedFrame is returned for frames that do not follow the framing.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge is returned for frames above the configured limit.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrMalformedPacket is returned for well framed packets that do not
	// decode. The connection stays usable.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrUnknownFraming is returned for unsupported framing names.
	ErrUnknownFraming = errors.New("unknown framing")
)
