package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisse060/groofit-sub000/internal/metrics"
)

// Provider names used to key transient OAuth state rows
const (
	ProviderWearable  = "wearable"
	ProviderNutrition = "nutrition"
)

// OAuthState is a transient handshake correlation record.
// For OAuth2 State is a random token; for OAuth1.0a State is the request token
// and RequestSecret its paired secret.
type OAuthState struct {
	ID            int64
	UserID        string
	Provider      string
	State         string
	RequestSecret *string
	CreatedAt     time.Time
}

// InsertOAuthState persists a transient handshake state row
func (d *DB) InsertOAuthState(userID, provider, state string, requestSecret *string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertOAuthState))
	defer timer.ObserveDuration()

	_, err := d.db.Exec(`
		INSERT INTO oauth_states (user_id, provider, state, request_secret, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, provider, state, requestSecret, time.Now().Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertOAuthState).Inc()
		return fmt.Errorf("failed to insert oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState looks up a state row by (user, provider, state) and deletes
// it in the same transaction. Returns nil if no matching row exists.
func (d *DB) ConsumeOAuthState(userID, provider, state string) (*OAuthState, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpConsumeOAuthState))
	defer timer.ObserveDuration()

	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var s OAuthState
	var createdAt int64
	err = tx.QueryRow(`
		SELECT id, user_id, provider, state, request_secret, created_at
		FROM oauth_states
		WHERE user_id = ? AND provider = ? AND state = ?
	`, userID, provider, state).Scan(&s.ID, &s.UserID, &s.Provider, &s.State, &s.RequestSecret, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpConsumeOAuthState).Inc()
		return nil, fmt.Errorf("failed to look up oauth state: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM oauth_states WHERE id = ?`, s.ID); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpConsumeOAuthState).Inc()
		return nil, fmt.Errorf("failed to delete consumed oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit oauth state consumption: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

// FindOAuthStateByToken looks up an OAuth1.0a state row by its request token,
// without consuming it. Returns nil if no matching row exists.
func (d *DB) FindOAuthStateByToken(provider, requestToken string) (*OAuthState, error) {
	var s OAuthState
	var createdAt int64
	err := d.db.QueryRow(`
		SELECT id, user_id, provider, state, request_secret, created_at
		FROM oauth_states
		WHERE provider = ? AND state = ?
	`, provider, requestToken).Scan(&s.ID, &s.UserID, &s.Provider, &s.State, &s.RequestSecret, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth state by token: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

// DeleteOAuthStates removes all state rows for a user and provider.
// Called after a completed OAuth1.0a handshake to clean up any leftovers
// from abandoned attempts, not just the matched row.
func (d *DB) DeleteOAuthStates(userID, provider string) error {
	_, err := d.db.Exec(`DELETE FROM oauth_states WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete oauth states: %w", err)
	}
	return nil
}

// PurgeExpiredOAuthStates deletes state rows older than the TTL and returns the
// number removed. Abandoned handshakes leave rows behind; this bounds their growth.
func (d *DB) PurgeExpiredOAuthStates(ttl time.Duration) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpPurgeOAuthStates))
	defer timer.ObserveDuration()

	cutoff := time.Now().Add(-ttl).Unix()
	result, err := d.db.Exec(`DELETE FROM oauth_states WHERE created_at < ?`, cutoff)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpPurgeOAuthStates).Inc()
		return 0, fmt.Errorf("failed to purge expired oauth states: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return purged, nil
}
