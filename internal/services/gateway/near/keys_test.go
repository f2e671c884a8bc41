package near

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestKeyPairSecretRoundTrip(t *testing.T) {
	pair, err := GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	secret := pair.Secret()
	if !strings.HasPrefix(secret, "ed25519:") {
		t.Fatalf("secret = %q", secret)
	}

	parsed, err := ParseKeyPair(secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.PublicKey() != pair.PublicKey() {
		t.Fatal("public keys differ after round trip")
	}
}

func TestKeyPairFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	pair, err := ParseKeyPair("ed25519:" + encodeForTest(seed))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if pair.IsZero() {
		t.Fatal("expected key material")
	}
}

func TestParsePublicKeyRoundTrip(t *testing.T) {
	pair := fixedKeyPair(t)
	text := pair.PublicKey().String()

	parsed, err := ParsePublicKey(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != pair.PublicKey() {
		t.Fatal("public key mismatch")
	}
}

func TestParsePublicKeyRejectsOtherCurves(t *testing.T) {
	if _, err := ParsePublicKey("secp256k1:abc"); err == nil {
		t.Fatal("expected unsupported curve error")
	}
	if _, err := ParsePublicKey("ed25519:"); err == nil {
		t.Fatal("expected empty key error")
	}
	if _, err := ParsePublicKey("ed25519:3yZe7d"); err == nil {
		t.Fatal("expected length error")
	}
}

func TestSignVerify(t *testing.T) {
	pair := fixedKeyPair(t)
	msg := []byte("hello")
	sig := pair.Sign(msg)
	if !Verify(pair.PublicKey(), msg, sig[:]) {
		t.Fatal("signature did not verify")
	}
	if Verify(pair.PublicKey(), []byte("other"), sig[:]) {
		t.Fatal("signature verified for the wrong message")
	}
}
