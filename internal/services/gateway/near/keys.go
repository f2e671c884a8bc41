package near

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

// KeyType is the Borsh tag of a key or signature.
type KeyType uint8

// KeyTypeED25519 is the only key type the gateway creates or accepts.
const KeyTypeED25519 KeyType = 0

// PublicKey is an ed25519 public key in NEAR's tagged form.
type PublicKey struct {
	Type KeyType
	Data [ed25519.PublicKeySize]byte
}

// String renders the key as "ed25519:<base58>".
func (k PublicKey) String() string {
	return ed25519Prefix + base58.Encode(k.Data[:])
}

// ParsePublicKey parses "ed25519:<base58>" (the prefix is optional).
func ParsePublicKey(value string) (PublicKey, error) {
	raw, err := decodeTagged(value)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("parse public key: want %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	var key PublicKey
	copy(key.Data[:], raw)
	return key, nil
}

// KeyPair is an ed25519 signing key used as a function-call access key.
type KeyPair struct {
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a new random key pair from rand.
func GenerateKeyPair(rand io.Reader) (KeyPair, error) {
	_, private, err := ed25519.GenerateKey(rand)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return KeyPair{private: private}, nil
}

// ParseKeyPair parses a secret key in "ed25519:<base58>" form. Both the
// 64-byte expanded form and a bare 32-byte seed are accepted.
func ParseKeyPair(secret string) (KeyPair, error) {
	raw, err := decodeTagged(secret)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parse secret key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return KeyPair{private: ed25519.PrivateKey(raw)}, nil
	case ed25519.SeedSize:
		return KeyPair{private: ed25519.NewKeyFromSeed(raw)}, nil
	default:
		return KeyPair{}, fmt.Errorf("parse secret key: unexpected length %d", len(raw))
	}
}

// IsZero reports whether the key pair holds no key material.
func (k KeyPair) IsZero() bool {
	return len(k.private) == 0
}

// PublicKey returns the public half of the pair.
func (k KeyPair) PublicKey() PublicKey {
	var key PublicKey
	copy(key.Data[:], k.private.Public().(ed25519.PublicKey))
	return key
}

// Secret renders the private key as "ed25519:<base58>".
func (k KeyPair) Secret() string {
	return ed25519Prefix + base58.Encode(k.private)
}

// Sign signs message with the private key.
func (k KeyPair) Sign(message []byte) [ed25519.SignatureSize]byte {
	var sig [ed25519.SignatureSize]byte
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// Verify reports whether sig is a valid signature of message by pub.
func Verify(pub PublicKey, message []byte, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub.Data[:]), message, sig)
}

func decodeTagged(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if curve, rest, ok := strings.Cut(value, ":"); ok {
		if !strings.EqualFold(curve, "ed25519") {
			return nil, fmt.Errorf("unsupported key type %q", curve)
		}
		value = rest
	}
	if value == "" {
		return nil, fmt.Errorf("key is empty")
	}
	raw, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
