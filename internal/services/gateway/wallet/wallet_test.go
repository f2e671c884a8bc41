package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

type fixture struct {
	conn  *Connection
	store *keystore.Memory
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: keystore.NewMemory(), now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	stateKey := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	conn, err := New(context.Background(), Config{
		WalletURL:    "https://wallet.testnet.near.org",
		NetworkID:    "testnet",
		ContractID:   "pazzle.testnet",
		AppKeyPrefix: "tileduel",
		BaseURL:      "http://127.0.0.1:8080/",
		StateKey:     stateKey,
		Now:          func() time.Time { return f.now },
	}, f.store)
	if err != nil {
		t.Fatalf("new connection: %v", err)
	}
	f.conn = conn
	return f
}

// signIn requests a sign-in and returns the wallet redirect parameters.
func (f *fixture) signIn(t *testing.T) (publicKey, state string) {
	t.Helper()
	redirect, err := f.conn.RequestSignIn(context.Background())
	if err != nil {
		t.Fatalf("request sign in: %v", err)
	}
	target, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	success, err := url.Parse(target.Query().Get("success_url"))
	if err != nil {
		t.Fatalf("parse success url: %v", err)
	}
	return target.Query().Get("public_key"), success.Query().Get("state")
}

func TestNewValidatesConfig(t *testing.T) {
	key := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	valid := Config{WalletURL: "w", ContractID: "c", AppKeyPrefix: "p", BaseURL: "http://x", StateKey: key}
	cases := map[string]func(Config) Config{
		"wallet":   func(c Config) Config { c.WalletURL = ""; return c },
		"contract": func(c Config) Config { c.ContractID = ""; return c },
		"prefix":   func(c Config) Config { c.AppKeyPrefix = ""; return c },
		"key":      func(c Config) Config { c.StateKey = nil; return c },
		"base":     func(c Config) Config { c.BaseURL = ""; return c },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(context.Background(), mutate(valid), keystore.NewMemory()); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
	if _, err := New(context.Background(), valid, nil); err == nil {
		t.Fatal("expected store error")
	}
}

func TestRequestSignInBuildsWalletURL(t *testing.T) {
	f := newFixture(t)
	redirect, err := f.conn.RequestSignIn(context.Background())
	if err != nil {
		t.Fatalf("request sign in: %v", err)
	}
	target, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if target.Host != "wallet.testnet.near.org" || target.Path != "/login/" {
		t.Fatalf("redirect = %s", redirect)
	}
	query := target.Query()
	if query.Get("contract_id") != "pazzle.testnet" {
		t.Fatalf("contract_id = %q", query.Get("contract_id"))
	}
	if !strings.HasPrefix(query.Get("success_url"), "http://127.0.0.1:8080/auth/callback?state=") {
		t.Fatalf("success_url = %q", query.Get("success_url"))
	}
	if !strings.HasPrefix(query.Get("failure_url"), "http://127.0.0.1:8080/auth/failure?state=") {
		t.Fatalf("failure_url = %q", query.Get("failure_url"))
	}

	publicKey, err := near.ParsePublicKey(query.Get("public_key"))
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	pending, err := f.store.GetKey(context.Background(), "testnet", keystore.PendingAccount(publicKey))
	if err != nil || pending.IsZero() {
		t.Fatalf("pending key not stored: %v", err)
	}
	if f.conn.IsSignedIn() {
		t.Fatal("requesting sign in must not sign in")
	}
}

func TestCompleteSignInPromotesPendingKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	publicKey, state := f.signIn(t)

	accountID, err := f.conn.CompleteSignIn(ctx, Callback{
		AccountID: "alice.testnet",
		PublicKey: publicKey,
		AllKeys:   []string{publicKey, "ed25519:other"},
		State:     state,
	})
	if err != nil {
		t.Fatalf("complete sign in: %v", err)
	}
	if accountID != "alice.testnet" || f.conn.AccountID() != "alice.testnet" || !f.conn.IsSignedIn() {
		t.Fatalf("signed in as %q", f.conn.AccountID())
	}
	if keys := f.conn.AllKeys(); len(keys) != 2 {
		t.Fatalf("all keys = %v", keys)
	}

	key, err := f.store.GetKey(ctx, "testnet", "alice.testnet")
	if err != nil || key.PublicKey().String() != publicKey {
		t.Fatalf("account key = %v, %v", key.PublicKey(), err)
	}
	parsed, _ := near.ParsePublicKey(publicKey)
	pending, _ := f.store.GetKey(ctx, "testnet", keystore.PendingAccount(parsed))
	if !pending.IsZero() {
		t.Fatal("pending key should be removed")
	}
	auth, ok, err := f.store.GetAuth(ctx, "tileduel_wallet_auth_key")
	if err != nil || !ok || auth.AccountID != "alice.testnet" {
		t.Fatalf("auth = %+v ok=%v err=%v", auth, ok, err)
	}
}

func TestNewRestoresPersistedAuth(t *testing.T) {
	f := newFixture(t)
	publicKey, state := f.signIn(t)
	if _, err := f.conn.CompleteSignIn(context.Background(), Callback{AccountID: "alice.testnet", PublicKey: publicKey, State: state}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	restored, err := New(context.Background(), f.conn.cfg, f.store)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if restored.AccountID() != "alice.testnet" {
		t.Fatalf("restored account = %q", restored.AccountID())
	}
}

func TestCompleteSignInRejectsBadState(t *testing.T) {
	f := newFixture(t)
	publicKey, state := f.signIn(t)

	tests := map[string]Callback{
		"missing":  {AccountID: "alice.testnet", PublicKey: publicKey},
		"tampered": {AccountID: "alice.testnet", PublicKey: publicKey, State: state + "x"},
	}
	for name, cb := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.conn.CompleteSignIn(context.Background(), cb)
			if apperrors.CodeOf(err) != apperrors.CodeLoginStateInvalid {
				t.Fatalf("code = %s (%v)", apperrors.CodeOf(err), err)
			}
		})
	}

	f.now = f.now.Add(time.Hour)
	_, err := f.conn.CompleteSignIn(context.Background(), Callback{AccountID: "alice.testnet", PublicKey: publicKey, State: state})
	if apperrors.CodeOf(err) != apperrors.CodeLoginStateInvalid {
		t.Fatalf("expired state code = %s (%v)", apperrors.CodeOf(err), err)
	}
	if f.conn.IsSignedIn() {
		t.Fatal("rejected callback must not sign in")
	}
}

func TestCompleteSignInRejectsStateFromOtherKey(t *testing.T) {
	f := newFixture(t)
	stranger := newFixture(t)
	stranger.conn.cfg.StateKey = ed25519.NewKeyFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	publicKey, state := stranger.signIn(t)

	_, err := f.conn.CompleteSignIn(context.Background(), Callback{AccountID: "alice.testnet", PublicKey: publicKey, State: state})
	if apperrors.CodeOf(err) != apperrors.CodeLoginStateInvalid {
		t.Fatalf("code = %s (%v)", apperrors.CodeOf(err), err)
	}
}

func TestCompleteSignInRejectsMismatchedCallback(t *testing.T) {
	f := newFixture(t)
	_, state := f.signIn(t)
	otherKey, _ := f.signIn(t)

	_, err := f.conn.CompleteSignIn(context.Background(), Callback{AccountID: "alice.testnet", PublicKey: otherKey, State: state})
	if apperrors.CodeOf(err) != apperrors.CodeLoginCallbackInvalid {
		t.Fatalf("key mismatch code = %s (%v)", apperrors.CodeOf(err), err)
	}

	_, err = f.conn.CompleteSignIn(context.Background(), Callback{AccountID: "Not Valid", State: state})
	if apperrors.CodeOf(err) != apperrors.CodeLoginCallbackInvalid {
		t.Fatalf("account code = %s (%v)", apperrors.CodeOf(err), err)
	}
}

func TestRequestSignInDropsEarlierPendingKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	firstKey, firstState := f.signIn(t)
	secondKey, secondState := f.signIn(t)

	slots, err := f.store.Accounts(ctx, "testnet")
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(slots) != 1 || !strings.HasSuffix(slots[0], secondKey) {
		t.Fatalf("pending slots = %v", slots)
	}
	_, err = f.conn.CompleteSignIn(ctx, Callback{AccountID: "alice.testnet", PublicKey: firstKey, State: firstState})
	if apperrors.CodeOf(err) != apperrors.CodeLoginCallbackInvalid {
		t.Fatalf("superseded sign-in code = %s (%v)", apperrors.CodeOf(err), err)
	}
	if _, err := f.conn.CompleteSignIn(ctx, Callback{AccountID: "alice.testnet", PublicKey: secondKey, State: secondState}); err != nil {
		t.Fatalf("latest sign-in: %v", err)
	}
}

func TestSignURLCarriesEncodedTransaction(t *testing.T) {
	f := newFixture(t)
	key, err := near.GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := near.Transaction{
		SignerID:   "alice.testnet",
		PublicKey:  key.PublicKey(),
		Nonce:      8,
		ReceiverID: "pazzle.testnet",
		Actions:    []near.FunctionCall{{MethodName: "set_price", Args: []byte(`{}`), Gas: near.DefaultGas, Deposit: sdkmath.NewIntWithDecimal(1, 24)}},
	}
	redirect, err := f.conn.SignURL(tx)
	if err != nil {
		t.Fatalf("sign url: %v", err)
	}
	target, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if target.Host != "wallet.testnet.near.org" || target.Path != "/sign" {
		t.Fatalf("redirect = %s", redirect)
	}
	if got := target.Query().Get("callbackUrl"); got != "http://127.0.0.1:8080/" {
		t.Fatalf("callbackUrl = %q", got)
	}
	raw, err := base64.StdEncoding.DecodeString(target.Query().Get("transactions"))
	if err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	want, _ := tx.Encode()
	if !bytes.Equal(raw, want) {
		t.Fatal("transactions does not carry the borsh-encoded transaction")
	}
}

func TestCompleteSignInTwiceFails(t *testing.T) {
	f := newFixture(t)
	publicKey, state := f.signIn(t)
	cb := Callback{AccountID: "alice.testnet", PublicKey: publicKey, State: state}
	if _, err := f.conn.CompleteSignIn(context.Background(), cb); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := f.conn.CompleteSignIn(context.Background(), cb)
	if apperrors.CodeOf(err) != apperrors.CodeLoginCallbackInvalid {
		t.Fatalf("replay code = %s (%v)", apperrors.CodeOf(err), err)
	}
}

func TestCancelSignInRemovesPendingKey(t *testing.T) {
	f := newFixture(t)
	publicKey, state := f.signIn(t)
	if err := f.conn.CancelSignIn(context.Background(), state); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	parsed, _ := near.ParsePublicKey(publicKey)
	pending, _ := f.store.GetKey(context.Background(), "testnet", keystore.PendingAccount(parsed))
	if !pending.IsZero() {
		t.Fatal("pending key should be removed")
	}
	if err := f.conn.CancelSignIn(context.Background(), "garbage"); !errors.Is(err, apperrors.New(apperrors.CodeLoginStateInvalid, "")) {
		t.Fatalf("garbage state err = %v", err)
	}
}

func TestSignOutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	publicKey, state := f.signIn(t)
	if _, err := f.conn.CompleteSignIn(context.Background(), Callback{AccountID: "alice.testnet", PublicKey: publicKey, State: state}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.conn.SignOut(context.Background()); err != nil {
			t.Fatalf("sign out %d: %v", i, err)
		}
	}
	if f.conn.IsSignedIn() || f.conn.AccountID() != "" {
		t.Fatal("expected signed out")
	}
	if _, ok, _ := f.store.GetAuth(context.Background(), "tileduel_wallet_auth_key"); ok {
		t.Fatal("auth data should be cleared")
	}
}

func TestParseCallback(t *testing.T) {
	cb := ParseCallback(url.Values{
		"account_id": {" alice.testnet "},
		"public_key": {"ed25519:abc"},
		"all_keys":   {"ed25519:abc,, ed25519:def"},
		"state":      {"s"},
	})
	if cb.AccountID != "alice.testnet" || cb.PublicKey != "ed25519:abc" || cb.State != "s" {
		t.Fatalf("callback = %+v", cb)
	}
	if len(cb.AllKeys) != 2 || cb.AllKeys[1] != "ed25519:def" {
		t.Fatalf("all keys = %v", cb.AllKeys)
	}
}

func TestParseStateKey(t *testing.T) {
	random, err := ParseStateKey("")
	if err != nil || len(random) != ed25519.PrivateKeySize {
		t.Fatalf("random key: %v", err)
	}
	seeded, err := ParseStateKey("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	if err != nil {
		t.Fatalf("seed key: %v", err)
	}
	if !seeded.Equal(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))) {
		t.Fatal("seed key mismatch")
	}
	if _, err := ParseStateKey("c2hvcnQ="); err == nil {
		t.Fatal("expected length error")
	}
}
