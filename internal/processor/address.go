package processor

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/txprocessor/internal/handler"
)

// AddressLen is the length of a state address in hex chars.
const AddressLen = 70

// ValidateAddress checks length and lowercase-hex form.
func ValidateAddress(addr string) error {
	if len(addr) != AddressLen {
		return fmt.Errorf("%w: %q: length %d, want %d", ErrInvalidAddress, addr, len(addr), AddressLen)
	}
	if !handler.IsLowerHex(addr) {
		return fmt.Errorf("%w: %q: not lowercase hex", ErrInvalidAddress, addr)
	}
	return nil
}

// ValidateWriteAddress additionally requires the address to fall under one
// of namespaces.
func ValidateWriteAddress(addr string, namespaces []string) error {
	if err := ValidateAddress(addr); err != nil {
		return err
	}
	for _, ns := range namespaces {
		if strings.HasPrefix(addr, ns) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q: outside registered namespaces %v", ErrInvalidAddress, addr, namespaces)
}

// NamespacePrefix derives the conventional 6-char namespace of a family name.
func NamespacePrefix(family string) string {
	return hexSHA512(family)[:handler.NamespaceLen]
}

// MakeAddress builds a full address from a namespace prefix and a key.
func MakeAddress(prefix, key string) string {
	return prefix + hexSHA512(key)[128-(AddressLen-handler.NamespaceLen):]
}

func hexSHA512(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
