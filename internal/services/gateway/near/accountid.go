package near

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
)

const (
	minAccountIDLength = 2
	maxAccountIDLength = 64
)

// ValidateAccountID checks the protocol's account id rules: 2 to 64
// characters of lowercase letters, digits and the separators '-', '_' and
// '.', where separators never lead, trail or repeat.
func ValidateAccountID(accountID string) error {
	if len(accountID) < minAccountIDLength || len(accountID) > maxAccountIDLength {
		return invalidAccountID(accountID, fmt.Sprintf("length must be between %d and %d", minAccountIDLength, maxAccountIDLength))
	}
	prevSeparator := true
	for i := 0; i < len(accountID); i++ {
		c := accountID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSeparator = false
		case c == '-' || c == '_' || c == '.':
			if prevSeparator {
				return invalidAccountID(accountID, "separators cannot lead or repeat")
			}
			prevSeparator = true
		default:
			return invalidAccountID(accountID, fmt.Sprintf("invalid character %q", c))
		}
	}
	if prevSeparator {
		return invalidAccountID(accountID, "separators cannot trail")
	}
	return nil
}

// NormalizeAccountID trims surrounding space and validates the result.
func NormalizeAccountID(accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if err := ValidateAccountID(accountID); err != nil {
		return "", err
	}
	return accountID, nil
}

func invalidAccountID(accountID, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidAccountID,
		fmt.Sprintf("invalid account id %q: %s", accountID, reason),
		map[string]string{"account_id": accountID},
	)
}
