package signing

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

func TestSignAndVerify(t *testing.T) {
	testlog.Start(t)
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("transaction header bytes")
	sig := key.Sign(msg)
	if len(sig) != 2*SignatureLen {
		t.Fatalf("unexpected signature length %d", len(sig))
	}
	pub := key.PublicKey()
	if len(pub.Hex()) != 2*PublicKeyLen {
		t.Fatalf("unexpected public key length %d", len(pub.Hex()))
	}
	if err := pub.Verify(msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyHex(pub.Hex(), msg, sig); err != nil {
		t.Fatalf("verify hex: %v", err)
	}
	if err := pub.Verify([]byte("tampered"), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered message, got %v", err)
	}

	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := other.PublicKey().Verify(msg, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong key, got %v", err)
	}
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	testlog.Start(t)
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := ParsePrivateKeyHex(key.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.PublicKey().Hex() != key.PublicKey().Hex() {
		t.Fatalf("public key changed after hex round trip")
	}
	msg := []byte("m")
	if err := key.PublicKey().Verify(msg, parsed.Sign(msg)); err != nil {
		t.Fatalf("parsed key signature rejected: %v", err)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	for _, bad := range []string{"", "zz", strings.Repeat("00", PrivateKeyLen), strings.Repeat("ff", PrivateKeyLen), strings.Repeat("01", 31)} {
		if _, err := ParsePrivateKeyHex(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for private %q, got %v", bad, err)
		}
	}
	for _, bad := range []string{"", "02", "02" + strings.Repeat("ff", PublicKeyLen-1), strings.Repeat("ab", 65)} {
		if _, err := ParsePublicKeyHex(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for public %q, got %v", bad, err)
		}
	}

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pub := key.PublicKey()
	for _, bad := range []string{"", "abcd", strings.Repeat("00", SignatureLen), strings.Repeat("ff", SignatureLen)} {
		if err := pub.Verify([]byte("m"), bad); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature for %q, got %v", bad, err)
		}
	}
}
