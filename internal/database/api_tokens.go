package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// HashAPIToken returns the hex SHA-256 digest under which a raw bearer token
// is stored. Raw tokens are never persisted.
func HashAPIToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateAPIToken stores a bearer token hash for a user
func (d *DB) CreateAPIToken(rawToken, userID string) error {
	_, err := d.db.Exec(`
		INSERT INTO api_tokens (token_hash, user_id, created_at) VALUES (?, ?, ?)
	`, HashAPIToken(rawToken), userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}
	return nil
}

// LookupAPIToken resolves a raw bearer token to a user id.
// Returns empty string if the token is unknown.
func (d *DB) LookupAPIToken(rawToken string) (string, error) {
	var userID string
	err := d.db.QueryRow(`
		SELECT user_id FROM api_tokens WHERE token_hash = ?
	`, HashAPIToken(rawToken)).Scan(&userID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up api token: %w", err)
	}
	return userID, nil
}

// DeleteAPIToken revokes a bearer token
func (d *DB) DeleteAPIToken(rawToken string) error {
	_, err := d.db.Exec(`DELETE FROM api_tokens WHERE token_hash = ?`, HashAPIToken(rawToken))
	if err != nil {
		return fmt.Errorf("failed to delete api token: %w", err)
	}
	return nil
}
