package db

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/felo/mailparts/internal/crypto"
)

// Key sources
const (
	KeySourceKeyring   = "keyring"
	KeySourceAutocrypt = "autocrypt"
)

// KnownKey is a public key stored locally.
type KnownKey struct {
	KeyID       string   `json:"key_id"`
	Fingerprint string   `json:"fingerprint"`
	Addr        string   `json:"addr,omitempty"`
	UserIDs     []string `json:"user_ids"`
	Source      string   `json:"source"`
	CreatedAt   NullTime `json:"-"`
	AddedAt     NullTime `json:"-"`
	KeyData     []byte   `json:"-"`
}

// HasPublicKey reports whether the key with the given 16 digit id, or a
// fingerprint ending in it, is known. It makes the database a
// crypto.TrustStore.
func (db *DB) HasPublicKey(ctx context.Context, keyID string) (bool, error) {
	keyID = strings.ToUpper(strings.TrimSpace(keyID))
	if keyID == "" {
		return false, nil
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM known_keys WHERE key_id = ? OR fingerprint LIKE ?)",
		keyID, "%"+keyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up key: %w", err)
	}
	return exists, nil
}

// ImportKey stores a key, replacing an earlier copy with the same id. A key
// imported from a keyring is never replaced by an Autocrypt copy.
func (db *DB) ImportKey(ctx context.Context, k *KnownKey) error {
	if k.KeyID == "" {
		return fmt.Errorf("failed to import key: empty key id")
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO known_keys (key_id, fingerprint, addr, user_ids, key_data, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			addr = excluded.addr,
			user_ids = excluded.user_ids,
			key_data = excluded.key_data,
			source = excluded.source,
			created_at = excluded.created_at
		WHERE known_keys.source <> ? OR excluded.source = ?
	`, strings.ToUpper(k.KeyID), strings.ToUpper(k.Fingerprint), k.Addr,
		strings.Join(k.UserIDs, "\n"), k.KeyData, k.Source, k.CreatedAt,
		KeySourceKeyring, KeySourceKeyring)
	if err != nil {
		return fmt.Errorf("failed to import key %s: %w", k.KeyID, err)
	}
	return nil
}

// ImportAutocryptKey stores a key found in an Autocrypt header.
func (db *DB) ImportAutocryptKey(ctx context.Context, ak crypto.AutocryptKey) error {
	return db.ImportKey(ctx, &KnownKey{
		KeyID:       ak.Info.ID,
		Fingerprint: ak.Info.Fingerprint,
		Addr:        ak.Addr,
		UserIDs:     ak.Info.UserIDs,
		Source:      KeySourceAutocrypt,
		CreatedAt:   NewNullTime(ak.Info.Created),
		KeyData:     ak.KeyData,
	})
}

// ImportKeyring stores the public part of every entity.
func (db *DB) ImportKeyring(ctx context.Context, list openpgp.EntityList) (int, error) {
	imported := 0
	for _, e := range list {
		var buf bytes.Buffer
		if err := e.Serialize(&buf); err != nil {
			return imported, fmt.Errorf("failed to serialize key: %w", err)
		}

		infos, err := crypto.InspectKeyData(buf.Bytes())
		if err != nil || len(infos) == 0 {
			return imported, fmt.Errorf("failed to inspect key: %w", err)
		}
		info := infos[0]

		err = db.ImportKey(ctx, &KnownKey{
			KeyID:       info.ID,
			Fingerprint: info.Fingerprint,
			UserIDs:     info.UserIDs,
			Source:      KeySourceKeyring,
			CreatedAt:   NewNullTime(info.Created),
			KeyData:     buf.Bytes(),
		})
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// ListKeys returns all known keys, newest first.
func (db *DB) ListKeys(ctx context.Context) ([]*KnownKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key_id, fingerprint, addr, user_ids, key_data, source, created_at, added_at
		FROM known_keys
		ORDER BY added_at DESC, key_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []*KnownKey
	for rows.Next() {
		k := &KnownKey{}
		var userIDs string
		if err := rows.Scan(&k.KeyID, &k.Fingerprint, &k.Addr, &userIDs, &k.KeyData,
			&k.Source, &k.CreatedAt, &k.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		if userIDs != "" {
			k.UserIDs = strings.Split(userIDs, "\n")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Keyring loads the keys imported from keyrings into an entity list for
// verification. Autocrypt keys are taken from mail anyone can forge, so
// they are left out. Keys that no longer parse are skipped.
func (db *DB) Keyring(ctx context.Context) (openpgp.EntityList, error) {
	keys, err := db.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	var list openpgp.EntityList
	for _, k := range keys {
		if k.Source != KeySourceKeyring {
			continue
		}
		entities, err := crypto.ReadKeyring(k.KeyData)
		if err != nil {
			continue
		}
		list = append(list, entities...)
	}
	return list, nil
}

var _ crypto.TrustStore = (*DB)(nil)
