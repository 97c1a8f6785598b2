// Package intkey is the integer key family: named unsigned 32-bit counters
// that can be set once, then incremented or decremented.
package intkey

import (
	"context"
	"fmt"
	"strconv"

	"github.com/danmuck/txprocessor/internal/handler"
	"github.com/danmuck/txprocessor/internal/processor"
	"github.com/danmuck/txprocessor/internal/protocol/codec"
	"github.com/danmuck/txprocessor/internal/signing"
)

const (
	FamilyName    = "intkey"
	FamilyVersion = "1.0"

	MaxValue   = 1<<32 - 1
	MaxNameLen = 20
)

const (
	VerbSet = "set"
	VerbInc = "inc"
	VerbDec = "dec"
)

// Namespace is the address prefix for every intkey entry.
var Namespace = processor.NamespacePrefix(FamilyName)

// Payload is the CBOR transaction body.
type Payload struct {
	Verb  string `cbor:"Verb"`
	Name  string `cbor:"Name"`
	Value uint64 `cbor:"Value"`
}

func (p Payload) Validate() error {
	switch p.Verb {
	case VerbSet, VerbInc, VerbDec:
	default:
		return fmt.Errorf("unknown verb %q", p.Verb)
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > MaxNameLen {
		return fmt.Errorf("name %q longer than %d bytes", p.Name, MaxNameLen)
	}
	if p.Value > MaxValue {
		return fmt.Errorf("value %d out of range [0, %d]", p.Value, uint64(MaxValue))
	}
	return nil
}

func EncodePayload(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return codec.Marshal(p)
}

// Address returns the state address holding name.
func Address(name string) string {
	return processor.MakeAddress(Namespace, name)
}

type Options struct {
	// VerifySignatures checks the transaction signature against the signer
	// public key over the CBOR-encoded header before applying.
	VerifySignatures bool
}

type Handler struct {
	opts Options
}

var _ handler.Handler = (*Handler)(nil)

func New(opts Options) *Handler {
	return &Handler{opts: opts}
}

func (h *Handler) FamilyName() string       { return FamilyName }
func (h *Handler) FamilyVersions() []string { return []string{FamilyVersion} }
func (h *Handler) Namespaces() []string     { return []string{Namespace} }

func (h *Handler) Apply(ctx context.Context, req *handler.Request, state handler.State) error {
	if h.opts.VerifySignatures {
		if err := verifySignature(req); err != nil {
			return handler.InvalidTransaction("%v", err)
		}
	}

	var p Payload
	if err := codec.Unmarshal(req.Payload, &p); err != nil {
		return handler.InvalidTransaction("malformed payload: %v", err)
	}
	if err := p.Validate(); err != nil {
		return handler.InvalidTransaction("%v", err)
	}

	addr := Address(p.Name)
	got, err := state.GetState(ctx, []string{addr})
	if err != nil {
		return handler.Internal("get state", err)
	}
	// Names whose addresses collide share one CBOR map.
	entries := map[string]uint64{}
	if raw := got[addr]; len(raw) > 0 {
		if err := codec.Unmarshal(raw, &entries); err != nil {
			return handler.Internal("corrupt state at "+addr, err)
		}
	}

	current, exists := entries[p.Name]
	var next uint64
	switch p.Verb {
	case VerbSet:
		if exists {
			return handler.InvalidTransaction("verb is set but name %q already in state", p.Name)
		}
		next = p.Value
	case VerbInc:
		if !exists {
			return handler.InvalidTransaction("verb is inc but name %q not in state", p.Name)
		}
		next = current + p.Value
		if next > MaxValue {
			return handler.InvalidTransaction("inc would set %q above %d", p.Name, uint64(MaxValue))
		}
	case VerbDec:
		if !exists {
			return handler.InvalidTransaction("verb is dec but name %q not in state", p.Name)
		}
		if p.Value > current {
			return handler.InvalidTransaction("dec would set %q below 0", p.Name)
		}
		next = current - p.Value
	}
	entries[p.Name] = next

	data, err := codec.Marshal(entries)
	if err != nil {
		return handler.Internal("encode state", err)
	}
	set, err := state.SetState(ctx, map[string][]byte{addr: data})
	if err != nil {
		return handler.Internal("set state", err)
	}
	if len(set) != 1 {
		return handler.Internal(fmt.Sprintf("set state for %s returned %d addresses", addr, len(set)), nil)
	}

	value := strconv.FormatUint(next, 10)
	if err := state.AddEvent(ctx, handler.Event{
		Type: FamilyName + "/" + p.Verb,
		Attributes: []handler.Attribute{
			{Key: "name", Value: p.Name},
			{Key: "value", Value: value},
		},
	}); err != nil {
		return handler.Internal("add event", err)
	}
	if err := state.AddReceiptData(ctx, []byte(p.Name+"="+value)); err != nil {
		return handler.Internal("add receipt data", err)
	}
	return nil
}

func verifySignature(req *handler.Request) error {
	header, err := codec.Marshal(req.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := signing.VerifyHex(req.Header.SignerPublicKey, header, req.Signature); err != nil {
		return fmt.Errorf("signature check failed: %w", err)
	}
	return nil
}
