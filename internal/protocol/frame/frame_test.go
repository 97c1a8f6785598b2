package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/txprocessor/internal/protocol"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
)

func TestReadWriteEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		Type:          schema.MsgTpProcessRequest,
		CorrelationID: "a1b2c3",
		Content:       []byte{0xa1, 0x01, 0x02},
	}
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
	out, err := ReadEnvelope(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if out.Type != in.Type || out.CorrelationID != in.CorrelationID {
		t.Fatalf("envelope mismatch: got=%+v want=%+v", out, in)
	}
	if !bytes.Equal(out.Content, in.Content) {
		t.Fatalf("content mismatch")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected reader drained, %d bytes left", buf.Len())
	}
}

func TestReadEnvelopeSequence(t *testing.T) {
	var buf bytes.Buffer
	for _, id := range []string{"one", "two", ""} {
		if err := WriteEnvelope(&buf, Envelope{Type: schema.MsgPingRequest, CorrelationID: id}, DefaultLimits()); err != nil {
			t.Fatalf("write %q: %v", id, err)
		}
	}
	for _, want := range []string{"one", "two", ""} {
		env, err := ReadEnvelope(&buf, DefaultLimits())
		if err != nil {
			t.Fatalf("read %q: %v", want, err)
		}
		if env.CorrelationID != want || env.Content != nil {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	}
	if _, err := ReadEnvelope(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at clean boundary, got %v", err)
	}
}

func TestReadEnvelopeTruncatedHeader(t *testing.T) {
	_, err := ReadEnvelope(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	if !protocol.IsCodecError(err) {
		t.Fatalf("expected CodecError, got %T", err)
	}
}

func TestReadEnvelopeTruncatedBody(t *testing.T) {
	b, err := Encode(Envelope{Type: schema.MsgTpEventAddRequest, CorrelationID: "abc", Content: []byte("payload")}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = ReadEnvelope(bytes.NewReader(b[:len(b)-2]), DefaultLimits())
	if !errors.Is(err, ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
}

func TestReadEnvelopeUnknownTypeCarriesRaw(t *testing.T) {
	h := EncodeHeader(Header{Magic: Magic, Version: Version, MessageType: 999, CorrelationLen: 2, ContentLen: 1})
	raw := append(h, 'i', 'd', 0x7f)
	_, err := ReadEnvelope(bytes.NewReader(raw), DefaultLimits())
	if !errors.Is(err, protocol.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	var ce *protocol.CodecError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CodecError, got %T", err)
	}
	if !bytes.Equal(ce.Raw, raw) {
		t.Fatalf("raw mismatch: got=%x want=%x", ce.Raw, raw)
	}
}

func TestReadEnvelopeBadMagicAndVersion(t *testing.T) {
	badMagic := EncodeHeader(Header{Magic: 1, Version: Version, MessageType: schema.MsgPingRequest})
	if _, err := ReadEnvelope(bytes.NewReader(badMagic), DefaultLimits()); !errors.Is(err, protocol.ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	badVersion := EncodeHeader(Header{Magic: Magic, Version: 9, MessageType: schema.MsgPingRequest})
	if _, err := ReadEnvelope(bytes.NewReader(badVersion), DefaultLimits()); !errors.Is(err, protocol.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestLimitsEnforced(t *testing.T) {
	limits := Limits{MaxCorrelationBytes: 4, MaxContentBytes: 8}
	if _, err := Encode(Envelope{Type: schema.MsgPingRequest, CorrelationID: "toolong"}, limits); !errors.Is(err, protocol.ErrCorrelationTooLong) {
		t.Fatalf("expected ErrCorrelationTooLong, got %v", err)
	}
	if _, err := Encode(Envelope{Type: schema.MsgPingRequest, Content: make([]byte, 9)}, limits); !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	h := EncodeHeader(Header{Magic: Magic, Version: Version, MessageType: schema.MsgPingRequest, ContentLen: 9})
	if _, err := ReadEnvelope(bytes.NewReader(h), limits); !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	if _, err := Encode(Envelope{Type: 999}, DefaultLimits()); !errors.Is(err, protocol.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeWholeFrame(t *testing.T) {
	b, err := Encode(Envelope{Type: schema.MsgTpStateGetResponse, CorrelationID: "x", Content: []byte{1}}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(b, DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != schema.MsgTpStateGetResponse || env.CorrelationID != "x" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if _, err := Decode(append(b, 0), DefaultLimits()); !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Fatalf("expected trailing-bytes error, got %v", err)
	}
	if _, err := Decode(b[:5], DefaultLimits()); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}
