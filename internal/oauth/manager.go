package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bisse060/groofit-sub000/internal/database"
	"github.com/bisse060/groofit-sub000/internal/nutrition"
	"github.com/bisse060/groofit-sub000/internal/wearable"
)

var (
	// ErrInvalidState is returned when an OAuth2 callback carries a state
	// value that matches no pending handshake for the user.
	ErrInvalidState = errors.New("oauth state mismatch")

	// ErrInvalidToken is returned when an OAuth1 callback carries a request
	// token that matches no pending handshake.
	ErrInvalidToken = errors.New("unknown oauth request token")
)

// Manager runs provider authorization handshakes: it issues consent-screen
// URLs, correlates callbacks against persisted transient state, and stores
// the resulting credentials.
type Manager struct {
	db        *database.DB
	wearable  *wearable.Client
	nutrition *nutrition.Client
	logger    *slog.Logger
}

// NewManager creates an OAuth handshake manager
func NewManager(db *database.DB, w *wearable.Client, n *nutrition.Client, logger *slog.Logger) *Manager {
	return &Manager{db: db, wearable: w, nutrition: n, logger: logger}
}

// StartWearable begins an OAuth2 authorization-code handshake. It persists a
// random state token and returns the provider consent-screen URL.
func (m *Manager) StartWearable(ctx context.Context, userID, redirectURL string) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", err
	}

	if err := m.db.InsertOAuthState(userID, database.ProviderWearable, state, nil); err != nil {
		return "", fmt.Errorf("failed to persist oauth state: %w", err)
	}

	m.logger.Info("wearable handshake started", "user_id", userID)
	return m.wearable.AuthCodeURL(state, redirectURL), nil
}

// CompleteWearable validates the callback state, exchanges the authorization
// code for tokens, and stores the credential. The state row is consumed; a
// replayed callback fails with ErrInvalidState and stores nothing.
func (m *Manager) CompleteWearable(ctx context.Context, userID, code, state, redirectURL string) error {
	stored, err := m.db.ConsumeOAuthState(userID, database.ProviderWearable, state)
	if err != nil {
		return fmt.Errorf("failed to look up oauth state: %w", err)
	}
	if stored == nil {
		return ErrInvalidState
	}

	tok, err := m.wearable.Exchange(ctx, code, redirectURL)
	if err != nil {
		return err
	}

	scope, _ := tok.Extra("scope").(string)

	err = m.db.UpsertWearableCredential(&database.WearableCredential{
		UserID:         userID,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: tok.Expiry,
		Scope:          scope,
	})
	if err != nil {
		return fmt.Errorf("failed to store wearable credential: %w", err)
	}

	m.logger.Info("wearable connected", "user_id", userID)
	return nil
}

// StartNutrition begins an OAuth1.0a three-legged handshake. The request
// token and its secret are persisted as transient state; the returned URL
// sends the user to the provider's consent screen.
func (m *Manager) StartNutrition(ctx context.Context, userID, callbackURL string) (string, error) {
	token, secret, err := m.nutrition.RequestToken(ctx, callbackURL)
	if err != nil {
		return "", err
	}

	if err := m.db.InsertOAuthState(userID, database.ProviderNutrition, token, &secret); err != nil {
		return "", fmt.Errorf("failed to persist oauth state: %w", err)
	}

	m.logger.Info("nutrition handshake started", "user_id", userID)
	return m.nutrition.AuthorizeURL(token), nil
}

// CompleteNutrition correlates an OAuth1 callback by its request token,
// exchanges it for the long-lived access token, stores the credential, and
// clears every pending nutrition state for the user.
func (m *Manager) CompleteNutrition(ctx context.Context, oauthToken, verifier string) error {
	stored, err := m.db.FindOAuthStateByToken(database.ProviderNutrition, oauthToken)
	if err != nil {
		return fmt.Errorf("failed to look up oauth state: %w", err)
	}
	if stored == nil || stored.RequestSecret == nil {
		return ErrInvalidToken
	}

	accessToken, accessSecret, err := m.nutrition.AccessToken(ctx, oauthToken, *stored.RequestSecret, verifier)
	if err != nil {
		return err
	}

	err = m.db.UpsertNutritionCredential(&database.NutritionCredential{
		UserID:      stored.UserID,
		OAuthToken:  accessToken,
		OAuthSecret: accessSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to store nutrition credential: %w", err)
	}

	if err := m.db.DeleteOAuthStates(stored.UserID, database.ProviderNutrition); err != nil {
		m.logger.Error("failed to clean up oauth states", "user_id", stored.UserID, "error", err)
	}

	m.logger.Info("nutrition connected", "user_id", stored.UserID)
	return nil
}

// Disconnect deletes a user's stored credential for a provider
func (m *Manager) Disconnect(userID, provider string) error {
	var err error
	switch provider {
	case database.ProviderWearable:
		err = m.db.DeleteWearableCredential(userID)
	case database.ProviderNutrition:
		err = m.db.DeleteNutritionCredential(userID)
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return err
	}

	m.logger.Info("provider disconnected", "user_id", userID, "provider", provider)
	return nil
}

// PurgeExpiredStates deletes transient states older than ttl. Abandoned
// handshakes otherwise accumulate forever.
func (m *Manager) PurgeExpiredStates(ttl time.Duration) (int64, error) {
	return m.db.PurgeExpiredOAuthStates(ttl)
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
