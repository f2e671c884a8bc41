// Package sessiontest builds session managers wired to a neartest node.
package sessiontest

import (
	"context"
	"crypto/ed25519"
	"net/url"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
	"github.com/louisbranch/tileduel/internal/services/gateway/near/neartest"
	"github.com/louisbranch/tileduel/internal/services/gateway/netconfig"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
	"github.com/louisbranch/tileduel/internal/services/gateway/wallet"
)

// ContractID is the contract account test sessions are bound to.
const ContractID = "pazzle.testnet"

// BaseURL is the application location test sessions return to.
const BaseURL = "http://127.0.0.1:8080/"

// Config returns a session config pointing at node.
func Config(node *neartest.Node) session.Config {
	return session.Config{
		Network: netconfig.Config{
			NetworkID:    "testnet",
			NodeURL:      node.URL(),
			WalletURL:    "https://wallet.testnet.near.org",
			ContractName: ContractID,
		},
		AppKeyPrefix: "tileduel",
		BaseURL:      BaseURL,
		StateKey:     ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)),
	}
}

// New returns an initialized, signed-out manager backed by store.
func New(t testing.TB, node *neartest.Node, store keystore.Store) *session.Manager {
	t.Helper()
	manager := session.NewManager(Config(node), func(context.Context) (keystore.Store, error) {
		return store, nil
	})
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize session: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

// SignIn walks the wallet round trip for accountID with the session key
// registered as a full-access key, so it can sign deposits itself.
func SignIn(t testing.TB, node *neartest.Node, manager *session.Manager, accountID string) {
	t.Helper()
	signIn(t, manager, accountID, func(key near.PublicKey) []string {
		node.AddKey(accountID, key)
		return []string{key.String()}
	})
}

// WalletSignIn walks the round trip the way a browser wallet does: the
// session key is a function-call key for ContractID and the wallet reports
// its own full-access key alongside it. The full-access key is returned.
func WalletSignIn(t testing.TB, node *neartest.Node, manager *session.Manager, accountID string) near.PublicKey {
	t.Helper()
	owner, err := near.GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("generate wallet key: %v", err)
	}
	node.AddKey(accountID, owner.PublicKey())
	signIn(t, manager, accountID, func(key near.PublicKey) []string {
		node.AddFunctionCallKey(accountID, key, ContractID)
		return []string{key.String(), owner.PublicKey().String()}
	})
	return owner.PublicKey()
}

func signIn(t testing.TB, manager *session.Manager, accountID string, authorize func(near.PublicKey) []string) {
	t.Helper()
	ctx := context.Background()
	redirect, err := manager.Login(ctx)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	target, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	publicKey := target.Query().Get("public_key")
	success, err := url.Parse(target.Query().Get("success_url"))
	if err != nil {
		t.Fatalf("parse success url: %v", err)
	}
	parsed, err := near.ParsePublicKey(publicKey)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	allKeys := authorize(parsed)
	if _, err := manager.CompleteLogin(ctx, wallet.Callback{
		AccountID: accountID,
		PublicKey: publicKey,
		AllKeys:   allKeys,
		State:     success.Query().Get("state"),
	}); err != nil {
		t.Fatalf("complete login: %v", err)
	}
}

// Player funds accountID on node and returns a manager signed in as it.
func Player(t testing.TB, node *neartest.Node, accountID string, balanceNEAR int64) *session.Manager {
	t.Helper()
	node.SetAccount(accountID, neartest.Account{Amount: sdkmath.NewIntWithDecimal(balanceNEAR, near.NominationExp)})
	manager := New(t, node, keystore.NewMemory())
	SignIn(t, node, manager, accountID)
	return manager
}

// WalletPlayer funds accountID on node and returns a manager signed in as it
// through WalletSignIn.
func WalletPlayer(t testing.TB, node *neartest.Node, accountID string, balanceNEAR int64) *session.Manager {
	t.Helper()
	node.SetAccount(accountID, neartest.Account{Amount: sdkmath.NewIntWithDecimal(balanceNEAR, near.NominationExp)})
	manager := New(t, node, keystore.NewMemory())
	WalletSignIn(t, node, manager, accountID)
	return manager
}
