// Package sqlite provides a SQLite-backed key store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/tileduel/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore/sqlite/migrations"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists access keys and wallet auth data in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite key store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// SetKey stores or replaces the key for an account on a network.
func (s *Store) SetKey(ctx context.Context, networkID, accountID string, key near.KeyPair) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("account id is required")
	}
	if key.IsZero() {
		return fmt.Errorf("key pair is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO access_keys (network_id, account_id, secret_key, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(network_id, account_id) DO UPDATE SET
		   secret_key = excluded.secret_key,
		   updated_at = excluded.updated_at`,
		networkID,
		accountID,
		key.Secret(),
		toMillis(time.Now()),
	)
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("set key: database is locked: %w", err)
		}
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

// GetKey returns the stored key, or a zero KeyPair when none exists.
func (s *Store) GetKey(ctx context.Context, networkID, accountID string) (near.KeyPair, error) {
	if err := s.ready(ctx); err != nil {
		return near.KeyPair{}, err
	}
	var secret string
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT secret_key FROM access_keys WHERE network_id = ? AND account_id = ?`,
		networkID,
		accountID,
	).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return near.KeyPair{}, nil
	}
	if err != nil {
		return near.KeyPair{}, fmt.Errorf("get key: %w", err)
	}
	key, err := near.ParseKeyPair(secret)
	if err != nil {
		return near.KeyPair{}, fmt.Errorf("get key %s: %w", accountID, err)
	}
	return key, nil
}

// RemoveKey deletes the key for an account. Missing keys are not an error.
func (s *Store) RemoveKey(ctx context.Context, networkID, accountID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM access_keys WHERE network_id = ? AND account_id = ?`,
		networkID,
		accountID,
	); err != nil {
		return fmt.Errorf("remove key: %w", err)
	}
	return nil
}

// Accounts lists the accounts holding a key on a network, sorted.
func (s *Store) Accounts(ctx context.Context, networkID string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT account_id FROM access_keys WHERE network_id = ? ORDER BY account_id`,
		networkID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// SetAuth records the signed-in wallet account for an app key prefix.
func (s *Store) SetAuth(ctx context.Context, appKeyPrefix string, data keystore.AuthData) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(data.AccountID) == "" {
		return fmt.Errorf("account id is required")
	}
	allKeys := data.AllKeys
	if allKeys == nil {
		allKeys = []string{}
	}
	encodedKeys, err := json.Marshal(allKeys)
	if err != nil {
		return fmt.Errorf("encode all keys: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO wallet_auth (app_key_prefix, account_id, all_keys, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(app_key_prefix) DO UPDATE SET
		   account_id = excluded.account_id,
		   all_keys = excluded.all_keys,
		   updated_at = excluded.updated_at`,
		appKeyPrefix,
		data.AccountID,
		string(encodedKeys),
		toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("set auth: %w", err)
	}
	return nil
}

// GetAuth returns the stored auth data and whether any exists.
func (s *Store) GetAuth(ctx context.Context, appKeyPrefix string) (keystore.AuthData, bool, error) {
	if err := s.ready(ctx); err != nil {
		return keystore.AuthData{}, false, err
	}
	var data keystore.AuthData
	var encodedKeys string
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT account_id, all_keys FROM wallet_auth WHERE app_key_prefix = ?`,
		appKeyPrefix,
	).Scan(&data.AccountID, &encodedKeys)
	if errors.Is(err, sql.ErrNoRows) {
		return keystore.AuthData{}, false, nil
	}
	if err != nil {
		return keystore.AuthData{}, false, fmt.Errorf("get auth: %w", err)
	}
	if err := json.Unmarshal([]byte(encodedKeys), &data.AllKeys); err != nil {
		return keystore.AuthData{}, false, fmt.Errorf("decode all keys: %w", err)
	}
	return data, true, nil
}

// ClearAuth forgets the signed-in account for an app key prefix.
func (s *Store) ClearAuth(ctx context.Context, appKeyPrefix string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM wallet_auth WHERE app_key_prefix = ?`, appKeyPrefix); err != nil {
		return fmt.Errorf("clear auth: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

var _ keystore.Store = (*Store)(nil)
