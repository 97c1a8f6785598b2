package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/txprocessor/internal/protocol"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
)

const (
	Magic          uint32 = 0x54505231 // "TPR1"
	Version        uint16 = 1
	FixedHeaderLen        = 16
)

var (
	ErrShortHeader = errors.New("frame: short fixed header")
	ErrShortBody   = errors.New("frame: short body")
)

// Header is the fixed wire header preceding every envelope.
type Header struct {
	Magic          uint32
	Version        uint16
	MessageType    schema.MessageType
	CorrelationLen uint16
	Flags          uint16
	ContentLen     uint32
}

// Envelope is one complete wire message.
type Envelope struct {
	Type          schema.MessageType
	CorrelationID string
	Content       []byte
}

// Limits constrains envelope decode/encode memory use.
type Limits struct {
	MaxCorrelationBytes uint16
	MaxContentBytes     uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxCorrelationBytes: 256,
		MaxContentBytes:     16 * 1024 * 1024,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxCorrelationBytes == 0 {
		l.MaxCorrelationBytes = d.MaxCorrelationBytes
	}
	if l.MaxContentBytes == 0 {
		l.MaxContentBytes = d.MaxContentBytes
	}
	return l
}

// ReadEnvelope reads exactly one envelope from r. A clean close before any
// header byte returns io.EOF; every other failure is a *protocol.CodecError
// or the underlying read error.
func ReadEnvelope(r io.Reader, limits Limits) (Envelope, error) {
	limits = limits.withDefaults()

	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Envelope{}, protocol.NewCodecError("truncated header", fixed[:], ErrShortHeader)
		}
		return Envelope{}, err
	}

	h := DecodeHeader(fixed[:])
	if err := checkHeader(h, limits, fixed[:]); err != nil {
		return Envelope{}, err
	}

	body := make([]byte, int(h.CorrelationLen)+int(h.ContentLen))
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Envelope{}, protocol.NewCodecError("truncated body", fixed[:], ErrShortBody)
			}
			return Envelope{}, err
		}
	}
	return finish(h, body, fixed[:])
}

// Decode parses one envelope occupying all of b.
func Decode(b []byte, limits Limits) (Envelope, error) {
	limits = limits.withDefaults()
	if len(b) < FixedHeaderLen {
		return Envelope{}, protocol.NewCodecError("truncated header", b, ErrShortHeader)
	}
	h := DecodeHeader(b[:FixedHeaderLen])
	if err := checkHeader(h, limits, b); err != nil {
		return Envelope{}, err
	}
	want := FixedHeaderLen + int(h.CorrelationLen) + int(h.ContentLen)
	if len(b) < want {
		return Envelope{}, protocol.NewCodecError("truncated body", b, ErrShortBody)
	}
	if len(b) > want {
		return Envelope{}, protocol.NewCodecError(
			fmt.Sprintf("trailing bytes: %d", len(b)-want), b, protocol.ErrMalformedPayload)
	}
	return finish(h, b[FixedHeaderLen:], b[:FixedHeaderLen])
}

// WriteEnvelope encodes env and writes it with a single Write call.
func WriteEnvelope(w io.Writer, env Envelope, limits Limits) error {
	buf, err := Encode(env, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Encode renders env to its wire form.
func Encode(env Envelope, limits Limits) ([]byte, error) {
	limits = limits.withDefaults()
	if !schema.Known(env.Type) {
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnknownMessageType, uint16(env.Type))
	}
	if len(env.CorrelationID) > int(limits.MaxCorrelationBytes) {
		return nil, protocol.ErrCorrelationTooLong
	}
	if uint64(len(env.Content)) > uint64(limits.MaxContentBytes) {
		return nil, protocol.ErrPayloadTooLarge
	}

	h := Header{
		Magic:          Magic,
		Version:        Version,
		MessageType:    env.Type,
		CorrelationLen: uint16(len(env.CorrelationID)),
		ContentLen:     uint32(len(env.Content)),
	}
	buf := make([]byte, 0, FixedHeaderLen+len(env.CorrelationID)+len(env.Content))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, env.CorrelationID...)
	buf = append(buf, env.Content...)
	return buf, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.MessageType))
	binary.BigEndian.PutUint16(buf[8:10], h.CorrelationLen)
	binary.BigEndian.PutUint16(buf[10:12], h.Flags)
	binary.BigEndian.PutUint32(buf[12:16], h.ContentLen)
	return buf
}

// DecodeHeader parses the fixed header; b must hold at least FixedHeaderLen bytes.
func DecodeHeader(b []byte) Header {
	return Header{
		Magic:          binary.BigEndian.Uint32(b[0:4]),
		Version:        binary.BigEndian.Uint16(b[4:6]),
		MessageType:    schema.MessageType(binary.BigEndian.Uint16(b[6:8])),
		CorrelationLen: binary.BigEndian.Uint16(b[8:10]),
		Flags:          binary.BigEndian.Uint16(b[10:12]),
		ContentLen:     binary.BigEndian.Uint32(b[12:16]),
	}
}

func checkHeader(h Header, limits Limits, raw []byte) error {
	switch {
	case h.Magic != Magic:
		return protocol.NewCodecError(fmt.Sprintf("magic=0x%08x", h.Magic), raw, protocol.ErrInvalidMagic)
	case h.Version != Version:
		return protocol.NewCodecError(fmt.Sprintf("version=%d", h.Version), raw, protocol.ErrUnsupportedVersion)
	case h.CorrelationLen > limits.MaxCorrelationBytes:
		return protocol.NewCodecError(fmt.Sprintf("correlation_len=%d", h.CorrelationLen), raw, protocol.ErrCorrelationTooLong)
	case h.ContentLen > limits.MaxContentBytes:
		return protocol.NewCodecError(fmt.Sprintf("content_len=%d", h.ContentLen), raw, protocol.ErrPayloadTooLarge)
	}
	return nil
}

func finish(h Header, body []byte, header []byte) (Envelope, error) {
	corr := body[:h.CorrelationLen]
	content := body[h.CorrelationLen:]
	if !schema.Known(h.MessageType) {
		raw := append(append([]byte{}, header...), body...)
		return Envelope{}, protocol.NewCodecError(
			fmt.Sprintf("message_type=%d", uint16(h.MessageType)), raw, protocol.ErrUnknownMessageType)
	}
	if len(content) == 0 {
		content = nil
	}
	return Envelope{Type: h.MessageType, CorrelationID: string(corr), Content: content}, nil
}
