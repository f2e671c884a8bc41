// Package wallet drives the browser wallet sign-in round trip.
//
// A sign-in request generates a function-call key pair, parks it in the key
// store under a pending slot and sends the user to the wallet. When the
// wallet redirects back, the pending key is moved to the account and the
// wallet's auth data is persisted so later boots start signed in.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

const (
	loginPath    = "/login/"
	signPath     = "/sign"
	callbackPath = "/auth/callback"
	failurePath  = "/auth/failure"
)

// Config configures a wallet connection.
type Config struct {
	WalletURL    string
	NetworkID    string
	ContractID   string
	AppKeyPrefix string
	// BaseURL is where the wallet sends the user back to.
	BaseURL  string
	StateKey ed25519.PrivateKey
	Now      func() time.Time
	Rand     io.Reader
}

// Callback is the query the wallet appends to the success URL.
type Callback struct {
	AccountID string
	PublicKey string
	AllKeys   []string
	State     string
}

// ParseCallback reads a wallet callback query.
func ParseCallback(query url.Values) Callback {
	var allKeys []string
	for _, key := range strings.Split(query.Get("all_keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			allKeys = append(allKeys, key)
		}
	}
	return Callback{
		AccountID: strings.TrimSpace(query.Get("account_id")),
		PublicKey: strings.TrimSpace(query.Get("public_key")),
		AllKeys:   allKeys,
		State:     query.Get("state"),
	}
}

// Connection is the signed-in state of one application against one wallet.
type Connection struct {
	cfg   Config
	store keystore.Store

	mu   sync.RWMutex
	auth keystore.AuthData
}

// New builds a connection and loads any persisted auth data.
func New(ctx context.Context, cfg Config, store keystore.Store) (*Connection, error) {
	if store == nil {
		return nil, fmt.Errorf("key store is required")
	}
	if strings.TrimSpace(cfg.WalletURL) == "" {
		return nil, fmt.Errorf("wallet url is required")
	}
	if strings.TrimSpace(cfg.ContractID) == "" {
		return nil, fmt.Errorf("contract id is required")
	}
	if strings.TrimSpace(cfg.AppKeyPrefix) == "" {
		return nil, fmt.Errorf("app key prefix is required")
	}
	if len(cfg.StateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("state signing key is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is invalid: %q", cfg.BaseURL)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	auth, _, err := store.GetAuth(ctx, authKey(cfg.AppKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("load wallet auth: %w", err)
	}
	return &Connection{cfg: cfg, store: store, auth: auth}, nil
}

// authKey is the slot wallet auth data is stored under.
func authKey(appKeyPrefix string) string {
	return appKeyPrefix + "_wallet_auth_key"
}

func (c *Connection) now() time.Time {
	if c.cfg.Now != nil {
		return c.cfg.Now()
	}
	return time.Now()
}

// IsSignedIn reports whether an account is signed in.
func (c *Connection) IsSignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.AccountID != ""
}

// AccountID returns the signed-in account, or "".
func (c *Connection) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.AccountID
}

// AllKeys returns the account's keys as reported by the wallet.
func (c *Connection) AllKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.auth.AllKeys)
}

// RequestSignIn stores a new pending key and returns the wallet URL that
// asks the user to authorize it for the contract. Pending keys of earlier
// unfinished sign-ins are dropped, so a callback for one of them fails.
func (c *Connection) RequestSignIn(ctx context.Context) (string, error) {
	key, err := near.GenerateKeyPair(c.cfg.Rand)
	if err != nil {
		return "", err
	}
	publicKey := key.PublicKey()
	if err := c.dropPendingKeys(ctx); err != nil {
		return "", err
	}
	if err := c.store.SetKey(ctx, c.cfg.NetworkID, keystore.PendingAccount(publicKey), key); err != nil {
		return "", fmt.Errorf("store pending key: %w", err)
	}
	state, err := c.issueState(publicKey.String())
	if err != nil {
		return "", err
	}

	success, err := c.returnURL(callbackPath, state)
	if err != nil {
		return "", err
	}
	failure, err := c.returnURL(failurePath, state)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(strings.TrimRight(c.cfg.WalletURL, "/") + loginPath)
	if err != nil {
		return "", fmt.Errorf("parse wallet url: %w", err)
	}
	query := target.Query()
	query.Set("success_url", success)
	query.Set("failure_url", failure)
	query.Set("contract_id", c.cfg.ContractID)
	query.Set("public_key", publicKey.String())
	target.RawQuery = query.Encode()
	return target.String(), nil
}

func (c *Connection) dropPendingKeys(ctx context.Context) error {
	slots, err := c.store.Accounts(ctx, c.cfg.NetworkID)
	if err != nil {
		return fmt.Errorf("list pending keys: %w", err)
	}
	for _, slot := range slots {
		if !strings.HasPrefix(slot, keystore.PendingKeyPrefix) {
			continue
		}
		if err := c.store.RemoveKey(ctx, c.cfg.NetworkID, slot); err != nil {
			return fmt.Errorf("remove pending key: %w", err)
		}
	}
	return nil
}

// SignURL returns the wallet URL that asks the user to sign tx with one of
// the account's full-access keys and then return to the application.
func (c *Connection) SignURL(tx near.Transaction) (string, error) {
	encoded, err := tx.Encode()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	target, err := url.Parse(strings.TrimRight(c.cfg.WalletURL, "/") + signPath)
	if err != nil {
		return "", fmt.Errorf("parse wallet url: %w", err)
	}
	query := target.Query()
	query.Set("transactions", base64.StdEncoding.EncodeToString(encoded))
	query.Set("callbackUrl", base.String())
	target.RawQuery = query.Encode()
	return target.String(), nil
}

func (c *Connection) returnURL(path, state string) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref := base.ResolveReference(&url.URL{Path: path})
	ref.RawQuery = url.Values{"state": {state}}.Encode()
	return ref.String(), nil
}

// CompleteSignIn finishes a sign-in from the wallet's callback: the pending
// key becomes the account's key and the auth data is persisted.
func (c *Connection) CompleteSignIn(ctx context.Context, cb Callback) (string, error) {
	statePublicKey, err := c.verifyState(cb.State)
	if err != nil {
		return "", err
	}
	accountID, err := near.NormalizeAccountID(cb.AccountID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeLoginCallbackInvalid, "wallet returned an invalid account id", err)
	}
	publicKey := cb.PublicKey
	if publicKey == "" {
		publicKey = statePublicKey
	}
	if publicKey != statePublicKey {
		return "", apperrors.New(apperrors.CodeLoginCallbackInvalid, "wallet returned a different public key")
	}
	parsedKey, err := near.ParsePublicKey(publicKey)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeLoginCallbackInvalid, "wallet returned an invalid public key", err)
	}

	pendingSlot := keystore.PendingAccount(parsedKey)
	key, err := c.store.GetKey(ctx, c.cfg.NetworkID, pendingSlot)
	if err != nil {
		return "", fmt.Errorf("load pending key: %w", err)
	}
	if key.IsZero() {
		return "", apperrors.New(apperrors.CodeLoginCallbackInvalid, "no pending sign-in for this key")
	}
	if err := c.store.SetKey(ctx, c.cfg.NetworkID, accountID, key); err != nil {
		return "", fmt.Errorf("store account key: %w", err)
	}
	if err := c.store.RemoveKey(ctx, c.cfg.NetworkID, pendingSlot); err != nil {
		return "", fmt.Errorf("remove pending key: %w", err)
	}

	auth := keystore.AuthData{AccountID: accountID, AllKeys: cb.AllKeys}
	if err := c.store.SetAuth(ctx, authKey(c.cfg.AppKeyPrefix), auth); err != nil {
		return "", fmt.Errorf("store wallet auth: %w", err)
	}
	c.mu.Lock()
	c.auth = auth
	c.mu.Unlock()
	return accountID, nil
}

// CancelSignIn drops the pending key of a sign-in the user declined.
func (c *Connection) CancelSignIn(ctx context.Context, state string) error {
	publicKey, err := c.verifyState(state)
	if err != nil {
		return err
	}
	parsedKey, err := near.ParsePublicKey(publicKey)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeLoginStateInvalid, "login state carries an invalid public key", err)
	}
	if err := c.store.RemoveKey(ctx, c.cfg.NetworkID, keystore.PendingAccount(parsedKey)); err != nil {
		return fmt.Errorf("remove pending key: %w", err)
	}
	return nil
}

// SignOut forgets the signed-in account. The account key stays in the key
// store. Signing out twice is not an error.
func (c *Connection) SignOut(ctx context.Context) error {
	if err := c.store.ClearAuth(ctx, authKey(c.cfg.AppKeyPrefix)); err != nil {
		return fmt.Errorf("clear wallet auth: %w", err)
	}
	c.mu.Lock()
	c.auth = keystore.AuthData{}
	c.mu.Unlock()
	return nil
}
