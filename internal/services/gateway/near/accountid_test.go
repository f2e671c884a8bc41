package near

import (
	"strings"
	"testing"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
)

func TestValidateAccountID(t *testing.T) {
	valid := []string{
		"ab",
		"alice.testnet",
		"pazzle.testnet",
		"bob_1-x.near",
		strings.Repeat("a", 64),
		"98793cd91a3f870fb126f66285808c7e094afcfc4eda8a970f6648cdf0dbd6de",
	}
	for _, id := range valid {
		if err := ValidateAccountID(id); err != nil {
			t.Errorf("ValidateAccountID(%q) = %v", id, err)
		}
	}

	invalid := []string{
		"",
		"a",
		strings.Repeat("a", 65),
		"Alice.testnet",
		".alice",
		"alice.",
		"alice..testnet",
		"alice@testnet",
		"alice testnet",
	}
	for _, id := range invalid {
		err := ValidateAccountID(id)
		if err == nil {
			t.Errorf("ValidateAccountID(%q) = nil, want error", id)
			continue
		}
		if apperrors.CodeOf(err) != apperrors.CodeInvalidAccountID {
			t.Errorf("code = %s", apperrors.CodeOf(err))
		}
	}
}

func TestNormalizeAccountID(t *testing.T) {
	got, err := NormalizeAccountID("  bob.testnet ")
	if err != nil || got != "bob.testnet" {
		t.Fatalf("got %q, %v", got, err)
	}
}
