// Package keystore defines durable storage for access keys and wallet
// sign-in data.
package keystore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

// PendingKeyPrefix marks a key generated for a sign-in that has not
// completed yet. The full account slot is PendingKeyPrefix + public key.
const PendingKeyPrefix = "pending_key"

// AuthData is what the wallet reported at the end of a sign-in.
type AuthData struct {
	AccountID string   `json:"accountId"`
	AllKeys   []string `json:"allKeys"`
}

// Store persists key pairs per network and account, plus the wallet auth
// data per application key prefix.
//
// GetKey returns a zero KeyPair and no error when nothing is stored.
type Store interface {
	SetKey(ctx context.Context, networkID, accountID string, key near.KeyPair) error
	GetKey(ctx context.Context, networkID, accountID string) (near.KeyPair, error)
	RemoveKey(ctx context.Context, networkID, accountID string) error
	Accounts(ctx context.Context, networkID string) ([]string, error)

	SetAuth(ctx context.Context, appKeyPrefix string, data AuthData) error
	GetAuth(ctx context.Context, appKeyPrefix string) (AuthData, bool, error)
	ClearAuth(ctx context.Context, appKeyPrefix string) error

	Close() error
}

// PendingAccount returns the account slot a pending key is stored under.
func PendingAccount(key near.PublicKey) string {
	return PendingKeyPrefix + key.String()
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]string
	auth map[string]AuthData
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{keys: map[string]string{}, auth: map[string]AuthData{}}
}

func memoryKey(networkID, accountID string) string {
	return networkID + ":" + accountID
}

func (m *Memory) SetKey(ctx context.Context, networkID, accountID string, key near.KeyPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[memoryKey(networkID, accountID)] = key.Secret()
	return nil
}

func (m *Memory) GetKey(ctx context.Context, networkID, accountID string) (near.KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return near.KeyPair{}, err
	}
	m.mu.RLock()
	secret, ok := m.keys[memoryKey(networkID, accountID)]
	m.mu.RUnlock()
	if !ok {
		return near.KeyPair{}, nil
	}
	return near.ParseKeyPair(secret)
}

func (m *Memory) RemoveKey(ctx context.Context, networkID, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, memoryKey(networkID, accountID))
	return nil
}

func (m *Memory) Accounts(ctx context.Context, networkID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accounts []string
	for slot := range m.keys {
		if account, ok := strings.CutPrefix(slot, networkID+":"); ok {
			accounts = append(accounts, account)
		}
	}
	slices.Sort(accounts)
	return accounts, nil
}

func (m *Memory) SetAuth(ctx context.Context, appKeyPrefix string, data AuthData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data.AllKeys = slices.Clone(data.AllKeys)
	m.auth[appKeyPrefix] = data
	return nil
}

func (m *Memory) GetAuth(ctx context.Context, appKeyPrefix string) (AuthData, bool, error) {
	if err := ctx.Err(); err != nil {
		return AuthData{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.auth[appKeyPrefix]
	data.AllKeys = slices.Clone(data.AllKeys)
	return data, ok, nil
}

func (m *Memory) ClearAuth(ctx context.Context, appKeyPrefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.auth, appKeyPrefix)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
