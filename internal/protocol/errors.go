package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrTruncated          = errors.New("protocol: truncated data")
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrPayloadTooLarge    = errors.New("protocol: payload too large")
	ErrCorrelationTooLong = errors.New("protocol: correlation id too long")
	ErrMalformedPayload   = errors.New("protocol: malformed payload")
)

// CodecError reports an envelope or payload that could not be decoded.
// Raw holds the offending bytes so the frame can be inspected after the fact.
type CodecError struct {
	Reason string
	Raw    []byte
	Err    error
}

func (e *CodecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol: codec: %s (raw=%d bytes)", e.Reason, len(e.Raw))
	}
	return fmt.Sprintf("protocol: codec: %s (raw=%d bytes): %v", e.Reason, len(e.Raw), e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// NewCodecError builds a CodecError, copying raw so callers may reuse their buffer.
func NewCodecError(reason string, raw []byte, err error) *CodecError {
	var cp []byte
	if len(raw) > 0 {
		cp = make([]byte, len(raw))
		copy(cp, raw)
	}
	return &CodecError{Reason: reason, Raw: cp, Err: err}
}

// IsCodecError reports whether err carries a CodecError.
func IsCodecError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce)
}
