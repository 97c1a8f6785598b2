// Package signing creates and checks secp256k1 transaction signatures.
//
// Signatures are 64-byte compact R||S over SHA-256(message), hex encoded.
// Public keys are 33-byte compressed points, hex encoded.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	ErrInvalidKey       = errors.New("signing: invalid key")
	ErrInvalidSignature = errors.New("signing: invalid signature")
)

const (
	PrivateKeyLen = 32
	PublicKeyLen  = 33
	SignatureLen  = 64
)

type PrivateKey struct {
	key *secp256k1.PrivateKey
}

type PublicKey struct {
	key *secp256k1.PublicKey
}

func GenerateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// ParsePrivateKeyHex accepts a 32-byte scalar in hex. Zero and values at or
// above the curve order are rejected.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != PrivateKeyLen {
		return nil, fmt.Errorf("%w: private key must be %d hex-encoded bytes", ErrInvalidKey, PrivateKeyLen)
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: private key out of range", ErrInvalidKey)
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&scalar)}, nil
}

func (k *PrivateKey) Hex() string {
	return hex.EncodeToString(k.key.Serialize())
}

func (k *PrivateKey) PublicKey() PublicKey {
	return PublicKey{key: k.key.PubKey()}
}

// Sign returns the hex signature of message.
func (k *PrivateKey) Sign(message []byte) string {
	hash := sha256.Sum256(message)
	// SignCompact prefixes a recovery byte that is not part of the wire form.
	compact := ecdsa.SignCompact(k.key, hash[:], true)
	return hex.EncodeToString(compact[1:])
}

func ParsePublicKeyHex(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: public key is not hex", ErrInvalidKey)
	}
	if len(raw) != PublicKeyLen {
		return PublicKey{}, fmt.Errorf("%w: public key must be %d compressed bytes, got %d", ErrInvalidKey, PublicKeyLen, len(raw))
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PublicKey{key: pub}, nil
}

func (p PublicKey) Hex() string {
	if p.key == nil {
		return ""
	}
	return hex.EncodeToString(p.key.SerializeCompressed())
}

// Verify checks a hex signature over message.
func (p PublicKey) Verify(message []byte, signature string) error {
	if p.key == nil {
		return ErrInvalidKey
	}
	raw, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(raw) != SignatureLen {
		return fmt.Errorf("%w: signature must be %d hex-encoded bytes", ErrInvalidSignature, SignatureLen)
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(raw[:32]); overflow || r.IsZero() {
		return fmt.Errorf("%w: r out of range", ErrInvalidSignature)
	}
	if overflow := s.SetByteSlice(raw[32:]); overflow || s.IsZero() {
		return fmt.Errorf("%w: s out of range", ErrInvalidSignature)
	}
	hash := sha256.Sum256(message)
	if !ecdsa.NewSignature(&r, &s).Verify(hash[:], p.key) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyHex parses publicKey and verifies signature over message.
func VerifyHex(publicKey string, message []byte, signature string) error {
	pub, err := ParsePublicKeyHex(publicKey)
	if err != nil {
		return err
	}
	return pub.Verify(message, signature)
}
