package session

import (
	"github.com/danmuck/txprocessor/internal/protocol"
	"github.com/danmuck/txprocessor/internal/protocol/codec"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
)

type validator interface {
	Validate() error
}

// Encode validates msg when it has a Validate method and serializes it.
func Encode(msg any) ([]byte, error) {
	if v, ok := msg.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return codec.Marshal(msg)
}

// Decode unmarshals a payload of the given kind and validates it. Every
// failure is a *protocol.CodecError carrying the raw payload.
func Decode[T any](kind schema.MessageType, data []byte) (T, error) {
	var out T
	if err := codec.Decode(kind.String(), data, &out); err != nil {
		return out, err
	}
	if v, ok := any(&out).(validator); ok {
		if err := v.Validate(); err != nil {
			return out, protocol.NewCodecError("validate "+kind.String(), data, err)
		}
	}
	return out, nil
}
