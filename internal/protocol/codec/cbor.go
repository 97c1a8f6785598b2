// Package codec serializes envelope payloads as CBOR.
//
// Encoding uses Core Deterministic Encoding so the same logical payload
// always produces identical bytes. Decoding into any-typed targets yields
// map[string]any, and unknown struct fields are ignored.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/danmuck/txprocessor/internal/protocol"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode unmarshals a payload and reports failure as a *protocol.CodecError
// tagged with kind.
func Decode(kind string, data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return protocol.NewCodecError(fmt.Sprintf("decode %s", kind), data, fmt.Errorf("%w: %v", protocol.ErrMalformedPayload, err))
	}
	return nil
}

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage

// Diagnose returns CBOR diagnostic notation for data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
