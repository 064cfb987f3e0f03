package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisse060/groofit-sub000/internal/metrics"
)

// WearableCredential holds a user's OAuth2 tokens for the wearable provider
type WearableCredential struct {
	UserID         string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	Scope          string
	ConnectedAt    time.Time
	LastSyncAt     *time.Time
	UpdatedAt      time.Time
}

// NutritionCredential holds a user's OAuth1.0a token pair for the nutrition provider
type NutritionCredential struct {
	UserID      string
	OAuthToken  string
	OAuthSecret string
	ConnectedAt time.Time
	LastSyncAt  *time.Time
}

// GetWearableCredential retrieves a user's wearable credential.
// Returns nil if the user has not connected the provider.
func (d *DB) GetWearableCredential(userID string) (*WearableCredential, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetWearableCredential))
	defer timer.ObserveDuration()

	var c WearableCredential
	var expiresAt, connectedAt, updatedAt int64
	var lastSyncAt *int64

	err := d.db.QueryRow(`
		SELECT user_id, access_token, refresh_token, token_expires_at, scope,
		       connected_at, last_sync_at, updated_at
		FROM wearable_credentials WHERE user_id = ?
	`, userID).Scan(
		&c.UserID, &c.AccessToken, &c.RefreshToken, &expiresAt, &c.Scope,
		&connectedAt, &lastSyncAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetWearableCredential).Inc()
		return nil, fmt.Errorf("failed to get wearable credential: %w", err)
	}

	c.TokenExpiresAt = time.Unix(expiresAt, 0)
	c.ConnectedAt = time.Unix(connectedAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	if lastSyncAt != nil {
		t := time.Unix(*lastSyncAt, 0)
		c.LastSyncAt = &t
	}
	return &c, nil
}

// UpsertWearableCredential inserts or replaces a user's wearable credential.
// The upsert is keyed by user_id so at most one row exists per user.
func (d *DB) UpsertWearableCredential(c *WearableCredential) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertWearableCredential))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	_, err := d.db.Exec(`
		INSERT INTO wearable_credentials (
			user_id, access_token, refresh_token, token_expires_at, scope,
			connected_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_at = excluded.token_expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, c.UserID, c.AccessToken, c.RefreshToken, c.TokenExpiresAt.Unix(), c.Scope, now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertWearableCredential).Inc()
		return fmt.Errorf("failed to upsert wearable credential: %w", err)
	}
	return nil
}

// UpdateWearableTokens updates a user's access/refresh tokens after a refresh
func (d *DB) UpdateWearableTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpdateWearableTokens))
	defer timer.ObserveDuration()

	result, err := d.db.Exec(`
		UPDATE wearable_credentials
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE user_id = ?
	`, accessToken, refreshToken, expiresAt.Unix(), time.Now().Unix(), userID)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpdateWearableTokens).Inc()
		return fmt.Errorf("failed to update wearable tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("wearable credential not found for user %s", userID)
	}
	return nil
}

// TouchWearableLastSync records the time of the latest successful wearable sync
func (d *DB) TouchWearableLastSync(userID string) error {
	_, err := d.db.Exec(`
		UPDATE wearable_credentials SET last_sync_at = ?, updated_at = ? WHERE user_id = ?
	`, time.Now().Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last sync time: %w", err)
	}
	return nil
}

// DeleteWearableCredential removes a user's wearable credential (disconnect)
func (d *DB) DeleteWearableCredential(userID string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteWearableCredential))
	defer timer.ObserveDuration()

	_, err := d.db.Exec(`DELETE FROM wearable_credentials WHERE user_id = ?`, userID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteWearableCredential).Inc()
		return fmt.Errorf("failed to delete wearable credential: %w", err)
	}
	return nil
}

// ListWearableCredentials returns all connected wearable users, used by auto-sync
func (d *DB) ListWearableCredentials() ([]*WearableCredential, error) {
	rows, err := d.db.Query(`
		SELECT user_id, access_token, refresh_token, token_expires_at, scope,
		       connected_at, last_sync_at, updated_at
		FROM wearable_credentials
		ORDER BY connected_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wearable credentials: %w", err)
	}
	defer rows.Close()

	var creds []*WearableCredential
	for rows.Next() {
		var c WearableCredential
		var expiresAt, connectedAt, updatedAt int64
		var lastSyncAt *int64

		err := rows.Scan(
			&c.UserID, &c.AccessToken, &c.RefreshToken, &expiresAt, &c.Scope,
			&connectedAt, &lastSyncAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wearable credential: %w", err)
		}

		c.TokenExpiresAt = time.Unix(expiresAt, 0)
		c.ConnectedAt = time.Unix(connectedAt, 0)
		c.UpdatedAt = time.Unix(updatedAt, 0)
		if lastSyncAt != nil {
			t := time.Unix(*lastSyncAt, 0)
			c.LastSyncAt = &t
		}
		creds = append(creds, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wearable credentials: %w", err)
	}
	return creds, nil
}

// GetNutritionCredential retrieves a user's nutrition credential.
// Returns nil if the user has not connected the provider.
func (d *DB) GetNutritionCredential(userID string) (*NutritionCredential, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetNutritionCredential))
	defer timer.ObserveDuration()

	var c NutritionCredential
	var connectedAt int64
	var lastSyncAt *int64

	err := d.db.QueryRow(`
		SELECT user_id, oauth_token, oauth_secret, connected_at, last_sync_at
		FROM nutrition_credentials WHERE user_id = ?
	`, userID).Scan(&c.UserID, &c.OAuthToken, &c.OAuthSecret, &connectedAt, &lastSyncAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetNutritionCredential).Inc()
		return nil, fmt.Errorf("failed to get nutrition credential: %w", err)
	}

	c.ConnectedAt = time.Unix(connectedAt, 0)
	if lastSyncAt != nil {
		t := time.Unix(*lastSyncAt, 0)
		c.LastSyncAt = &t
	}
	return &c, nil
}

// UpsertNutritionCredential inserts or replaces a user's nutrition credential
func (d *DB) UpsertNutritionCredential(c *NutritionCredential) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertNutritionCredential))
	defer timer.ObserveDuration()

	_, err := d.db.Exec(`
		INSERT INTO nutrition_credentials (user_id, oauth_token, oauth_secret, connected_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			oauth_token = excluded.oauth_token,
			oauth_secret = excluded.oauth_secret
	`, c.UserID, c.OAuthToken, c.OAuthSecret, time.Now().Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertNutritionCredential).Inc()
		return fmt.Errorf("failed to upsert nutrition credential: %w", err)
	}
	return nil
}

// DeleteNutritionCredential removes a user's nutrition credential (disconnect)
func (d *DB) DeleteNutritionCredential(userID string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteNutritionCredential))
	defer timer.ObserveDuration()

	_, err := d.db.Exec(`DELETE FROM nutrition_credentials WHERE user_id = ?`, userID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteNutritionCredential).Inc()
		return fmt.Errorf("failed to delete nutrition credential: %w", err)
	}
	return nil
}
