package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/txprocessor/internal/protocol"
	"github.com/danmuck/txprocessor/internal/protocol/codec"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2.0, MaxDelay: time.Second, Jitter: true}
	b := NewBackoff(cfg)
	for attempt := 1; attempt <= 8; attempt++ {
		d := b.Delay(attempt)
		if d < 50*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("attempt %d delay out of bounds: %v", attempt, d)
		}
	}
}

func TestBackoffSleepHonorsContext(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(BackoffConfig{InitialDelay: time.Hour, Multiplier: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Sleep(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigWithDefaultsFillsZeroFields(t *testing.T) {
	testlog.Start(t)
	cfg := Config{RequestTimeout: time.Second}.WithDefaults()
	d := DefaultConfig()
	if cfg.RequestTimeout != time.Second {
		t.Fatalf("explicit request timeout overwritten: %v", cfg.RequestTimeout)
	}
	if cfg.ConnectTimeout != d.ConnectTimeout || cfg.RegisterTimeout != d.RegisterTimeout {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Backoff.InitialDelay != d.Backoff.InitialDelay || cfg.Backoff.Multiplier != d.Backoff.Multiplier {
		t.Fatalf("backoff defaults not applied: %+v", cfg.Backoff)
	}
}

func TestProcessRequestRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := ProcessRequest{
		Header: TransactionHeader{
			FamilyName:      "my-family",
			FamilyVersion:   "1.0",
			SignerPublicKey: "02ab",
			Inputs:          []string{"abcdef"},
		},
		Payload:   []byte("payload"),
		Signature: "sig",
		ContextID: "ctx-1",
	}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode[ProcessRequest](schema.MsgTpProcessRequest, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header.FamilyName != "my-family" || out.ContextID != "ctx-1" || string(out.Payload) != "payload" {
		t.Fatalf("unexpected process request: %+v", out)
	}
}

func TestEncodeValidatesRequests(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(RegisterRequest{Family: "f"}); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("expected ErrInvalidRegistration, got %v", err)
	}
	if _, err := Encode(ProcessRequest{Header: TransactionHeader{FamilyName: "f", FamilyVersion: "1"}}); !errors.Is(err, ErrInvalidProcess) {
		t.Fatalf("expected ErrInvalidProcess, got %v", err)
	}
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	testlog.Start(t)
	b, err := codec.Marshal(RegisterResponse{Status: "MAYBE"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Decode[RegisterResponse](schema.MsgTpRegisterResponse, b)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if !protocol.IsCodecError(err) {
		t.Fatalf("expected CodecError, got %T", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	testlog.Start(t)
	_, err := Decode[StateGetResponse](schema.MsgTpStateGetResponse, []byte{0x1f})
	if !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}
