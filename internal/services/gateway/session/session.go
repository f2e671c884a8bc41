// Package session owns the gateway's single wallet session: the key store,
// the ledger connection and the signed-in identity.
//
// A Manager is created once per process and handed to every transport.
// Reads (IsSignedIn, AccountID) never touch the network.
package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	"github.com/louisbranch/tileduel/internal/platform/timeouts"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
	"github.com/louisbranch/tileduel/internal/services/gateway/netconfig"
	"github.com/louisbranch/tileduel/internal/services/gateway/wallet"
)

// StoreOpener opens the persistent key store.
type StoreOpener func(ctx context.Context) (keystore.Store, error)

// Config holds everything Initialize needs.
type Config struct {
	Network      netconfig.Config
	AppKeyPrefix string
	BaseURL      string
	StateKey     ed25519.PrivateKey
	// HTTPClient carries JSON-RPC requests; nil uses a default client.
	HTTPClient near.Doer
}

// Manager is the session lifecycle.
type Manager struct {
	cfg       Config
	openStore StoreOpener

	mu     sync.RWMutex
	store  keystore.Store
	conn   *near.Connection
	wallet *wallet.Connection
}

// NewManager returns an uninitialized manager.
func NewManager(cfg Config, openStore StoreOpener) *Manager {
	return &Manager{cfg: cfg, openStore: openStore}
}

// Initialize opens the key store, connects to the node, verifies it answers
// and restores any persisted sign-in. A failure leaves the manager
// uninitialized and should stop the process from booting.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.openStore == nil {
		return fmt.Errorf("key store opener is required")
	}
	store, err := m.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}

	conn, walletConn, err := m.connect(ctx, store)
	if err != nil {
		_ = store.Close()
		return err
	}

	m.mu.Lock()
	previous := m.store
	m.store = store
	m.conn = conn
	m.wallet = walletConn
	m.mu.Unlock()

	if previous != nil && previous != store {
		_ = previous.Close()
	}
	return nil
}

func (m *Manager) connect(ctx context.Context, store keystore.Store) (*near.Connection, *wallet.Connection, error) {
	network := m.cfg.Network
	client, err := near.NewClient(network.NodeURL, m.cfg.HTTPClient)
	if err != nil {
		return nil, nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeouts.NodeProbe)
	defer cancel()
	if _, err := client.Status(probeCtx); err != nil {
		return nil, nil, fmt.Errorf("reach node %s: %w", network.NodeURL, err)
	}

	conn, err := near.NewConnection(network.NetworkID, client, store)
	if err != nil {
		return nil, nil, err
	}
	walletConn, err := wallet.New(ctx, wallet.Config{
		WalletURL:    network.WalletURL,
		NetworkID:    network.NetworkID,
		ContractID:   network.ContractName,
		AppKeyPrefix: m.cfg.AppKeyPrefix,
		BaseURL:      m.cfg.BaseURL,
		StateKey:     m.cfg.StateKey,
	}, store)
	if err != nil {
		return nil, nil, fmt.Errorf("build wallet connection: %w", err)
	}
	return conn, walletConn, nil
}

func (m *Manager) walletConn() (*wallet.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.wallet == nil {
		return nil, apperrors.New(apperrors.CodeSessionNotReady, "session is not initialized")
	}
	return m.wallet, nil
}

// Login returns the wallet URL the user must visit to authorize a new key
// for the contract.
func (m *Manager) Login(ctx context.Context) (string, error) {
	w, err := m.walletConn()
	if err != nil {
		return "", err
	}
	return w.RequestSignIn(ctx)
}

// CompleteLogin consumes the wallet's callback and signs the session in.
func (m *Manager) CompleteLogin(ctx context.Context, cb wallet.Callback) (string, error) {
	w, err := m.walletConn()
	if err != nil {
		return "", err
	}
	return w.CompleteSignIn(ctx, cb)
}

// CancelLogin discards a sign-in the user declined at the wallet.
func (m *Manager) CancelLogin(ctx context.Context, state string) error {
	w, err := m.walletConn()
	if err != nil {
		return err
	}
	return w.CancelSignIn(ctx, state)
}

// Logout clears the wallet session and returns the application's base
// location with no query or fragment. Logging out when signed out is fine.
func (m *Manager) Logout(ctx context.Context) (string, error) {
	w, err := m.walletConn()
	if err != nil {
		return "", err
	}
	if err := w.SignOut(ctx); err != nil {
		return "", err
	}
	return BaseLocation(m.cfg.BaseURL)
}

// Home returns the application's base location.
func (m *Manager) Home() (string, error) {
	return BaseLocation(m.cfg.BaseURL)
}

// BaseLocation strips the query and fragment from rawURL.
func BaseLocation(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), nil
}

// IsSignedIn reports whether an account is signed in. It makes no network
// call.
func (m *Manager) IsSignedIn() bool {
	_, ok := m.AccountID()
	return ok
}

// AccountID returns the signed-in account. It makes no network call.
func (m *Manager) AccountID() (string, bool) {
	w, err := m.walletConn()
	if err != nil {
		return "", false
	}
	id := w.AccountID()
	return id, id != ""
}

// ContractID returns the contract the session is bound to.
func (m *Manager) ContractID() string {
	return m.cfg.Network.ContractName
}

// NetworkID returns the network the session talks to.
func (m *Manager) NetworkID() string {
	return m.cfg.Network.NetworkID
}

// Connection returns the ledger connection.
func (m *Manager) Connection() (*near.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, apperrors.New(apperrors.CodeSessionNotReady, "session is not initialized")
	}
	return m.conn, nil
}

// Account returns the signer for the signed-in account, or a NOT_SIGNED_IN
// error.
func (m *Manager) Account() (*near.Account, error) {
	conn, err := m.Connection()
	if err != nil {
		return nil, err
	}
	accountID, ok := m.AccountID()
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotSignedIn, "sign in with the wallet first")
	}
	return conn.Account(accountID), nil
}

// ApprovalURL returns the wallet URL that asks the user to sign the calls the
// session key may not sign, using the first full-access key the wallet
// reported at sign-in.
func (m *Manager) ApprovalURL(ctx context.Context, req *near.ApprovalRequiredError) (string, error) {
	w, err := m.walletConn()
	if err != nil {
		return "", err
	}
	conn, err := m.Connection()
	if err != nil {
		return "", err
	}
	account := conn.Account(req.SignerID)
	for _, raw := range w.AllKeys() {
		key, err := near.ParsePublicKey(raw)
		if err != nil {
			continue
		}
		tx, err := account.TransactionFor(ctx, key, req.ReceiverID, req.Actions)
		var rpcErr *near.RPCError
		if errors.Is(err, near.ErrNotFullAccess) || errors.As(err, &rpcErr) {
			continue
		}
		if err != nil {
			return "", err
		}
		return w.SignURL(tx)
	}
	return "", apperrors.New(apperrors.CodeApprovalRequired, "the wallet reported no full-access key for "+req.SignerID)
}

// Close releases the key store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	m.conn = nil
	m.wallet = nil
	return err
}
