package near

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
)

func encodeForTest(raw []byte) string {
	return base58.Encode(raw)
}

func fixedKeyPair(t *testing.T) KeyPair {
	t.Helper()
	pair, err := ParseKeyPair("ed25519:" + base58.Encode(bytes.Repeat([]byte{1}, 32)))
	if err != nil {
		t.Fatalf("fixed key pair: %v", err)
	}
	return pair
}
