// Package balance reports how much of the signed-in account's balance the
// UI may offer to stake.
package balance

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

// Reserve is held back from the available balance for fees: 0.05 NEAR.
var Reserve = sdkmath.NewIntWithDecimal(5, near.NominationExp-2)

// cent is 0.01 NEAR in yoctoNEAR.
var cent = sdkmath.NewIntWithDecimal(1, near.NominationExp-2)

// AccountSource yields the signer for the signed-in account.
type AccountSource interface {
	Account() (*near.Account, error)
}

// Snapshot is one balance reading.
type Snapshot struct {
	Raw       sdkmath.Int
	Available string
}

// Accessor reads balances through the session.
type Accessor struct {
	accounts AccountSource
}

// NewAccessor returns an accessor for the session's account.
func NewAccessor(accounts AccountSource) *Accessor {
	return &Accessor{accounts: accounts}
}

// PossiblyAvailable returns the available balance minus the reserve,
// floored to two decimals. The result is negative when the balance is below
// the reserve.
func (a *Accessor) PossiblyAvailable(ctx context.Context) (string, error) {
	snapshot, err := a.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snapshot.Available, nil
}

// Snapshot returns the raw available balance alongside its display form.
func (a *Accessor) Snapshot(ctx context.Context) (Snapshot, error) {
	account, err := a.accounts.Account()
	if err != nil {
		return Snapshot{}, err
	}
	balance, err := account.Balance(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Raw: balance.Available, Available: FormatPossiblyAvailable(balance.Available)}, nil
}

// FormatPossiblyAvailable computes floor((yocto/10^24 - 0.05) * 100) / 100
// exactly and renders it with two decimals.
func FormatPossiblyAvailable(yocto sdkmath.Int) string {
	shifted := yocto.Sub(Reserve).BigInt()
	// Euclidean division floors for a positive divisor.
	cents := new(big.Int).Div(shifted, cent.BigInt())

	sign := ""
	if cents.Sign() < 0 {
		sign = "-"
		cents.Neg(cents)
	}
	whole, frac := new(big.Int).QuoRem(cents, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s%s.%02d", sign, whole.String(), frac.Int64())
}
