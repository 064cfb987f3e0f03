package wearable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/bisse060/groofit-sub000/internal/config"
	"github.com/bisse060/groofit-sub000/internal/metrics"
)

const (
	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxDelay     = 2 * time.Minute
	tokenMargin  = 5 * time.Minute // Refresh tokens 5 minutes before expiry
)

// ErrTokenRefresh is returned when the provider rejects a refresh attempt,
// e.g. for a revoked token. The stored credential is left untouched.
var ErrTokenRefresh = errors.New("token refresh rejected by provider")

// HTTPError is a non-success response from a provider data endpoint
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a provider 404
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a provider 401
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

// IsTooManyRequests reports whether err is a provider 429
func IsTooManyRequests(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

// TokenStore persists rotated tokens after a refresh
type TokenStore interface {
	UpdateWearableTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error
}

// Client talks to the wearable provider's OAuth2 and data endpoints
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	logger     *slog.Logger
}

// NewClient creates a wearable provider client
func NewClient(cfg *config.Config, store TokenStore, logger *slog.Logger) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.WearableClientID,
			ClientSecret: cfg.WearableClientSecret,
			Scopes:       []string{"activity", "weight", "sleep"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.WearableAuthURL,
				TokenURL: cfg.WearableTokenURL,
				// The provider requires Basic client auth on the token endpoint
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		baseURL:    cfg.WearableAPIBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
		logger:     logger,
	}
}

// AuthCodeURL builds the provider consent-screen URL for a handshake
func (c *Client) AuthCodeURL(state, redirectURL string) string {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for access and refresh tokens
func (c *Client) Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURL

	start := time.Now()
	tok, err := cfg.Exchange(ctx, code)
	duration := time.Since(start)

	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderWearable, metrics.OpExchangeCode).Observe(duration.Seconds())

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderWearable, metrics.OpExchangeCode, "error").Inc()
		c.logger.Error("token exchange failed", "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderWearable, metrics.OpExchangeCode, "200").Inc()
	c.logger.Info("token_exchange", "duration_ms", duration.Milliseconds())
	return tok, nil
}

// EnsureValidToken returns a currently valid access token for the user,
// refreshing and persisting rotated tokens when the stored one expires within
// the safety margin. No network call happens for a token safely in the future.
func (c *Client) EnsureValidToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) (string, error) {
	if time.Until(expiresAt) > tokenMargin {
		return accessToken, nil
	}

	c.logger.Info("refreshing token", "user_id", userID)

	// Hand the token source an already-expired token so it must refresh
	stale := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	start := time.Now()
	tok, err := c.oauth.TokenSource(ctx, stale).Token()
	duration := time.Since(start)

	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderWearable, metrics.OpRefreshToken).Observe(duration.Seconds())

	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ProviderWearable, metrics.ResultFailure).Inc()
		c.logger.Error("token refresh failed", "user_id", userID, "error", err, "duration_ms", duration.Milliseconds())
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}

	// Providers may rotate the refresh token; keep the old one if they don't
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	if err := c.store.UpdateWearableTokens(userID, tok.AccessToken, newRefresh, tok.Expiry); err != nil {
		c.logger.Error("failed to persist refreshed tokens", "user_id", userID, "error", err)
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ProviderWearable, metrics.ResultSuccess).Inc()
	c.logger.Info("token_refresh", "user_id", userID, "duration_ms", duration.Milliseconds())
	return tok.AccessToken, nil
}

// ActivitySummary is the activity data for one calendar date
type ActivitySummary struct {
	Steps       int64
	CaloriesOut int64
}

// GetDailyActivity fetches the activity summary for a date
func (c *Client) GetDailyActivity(ctx context.Context, accessToken, date string) (*ActivitySummary, error) {
	body, err := c.doGet(ctx, metrics.OpGetActivity, fmt.Sprintf("/1/user/-/activities/date/%s.json", date), accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Summary struct {
			Steps       int64 `json:"steps"`
			CaloriesOut int64 `json:"caloriesOut"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode activity response: %w", err)
	}

	return &ActivitySummary{Steps: resp.Summary.Steps, CaloriesOut: resp.Summary.CaloriesOut}, nil
}

// GetWeight fetches the body-weight log for a date.
// Returns nil if the user logged no weight that day.
func (c *Client) GetWeight(ctx context.Context, accessToken, date string) (*float64, error) {
	body, err := c.doGet(ctx, metrics.OpGetWeight, fmt.Sprintf("/1/user/-/body/log/weight/date/%s.json", date), accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Weight []struct {
			Weight float64 `json:"weight"`
		} `json:"weight"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode weight response: %w", err)
	}

	if len(resp.Weight) == 0 {
		return nil, nil
	}
	return &resp.Weight[0].Weight, nil
}

// GetBodyFat fetches the body-fat log for a date.
// Returns nil if the user logged no measurement that day.
func (c *Client) GetBodyFat(ctx context.Context, accessToken, date string) (*float64, error) {
	body, err := c.doGet(ctx, metrics.OpGetBodyFat, fmt.Sprintf("/1/user/-/body/log/fat/date/%s.json", date), accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Fat []struct {
			Fat float64 `json:"fat"`
		} `json:"fat"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode body fat response: %w", err)
	}

	if len(resp.Fat) == 0 {
		return nil, nil
	}
	return &resp.Fat[0].Fat, nil
}

// SleepData is one night's sleep record
type SleepData struct {
	DurationMinutes int64
	Efficiency      int64
	MinutesDeep     int64
	MinutesLight    int64
	MinutesREM      int64
	MinutesAwake    int64
	StartTime       time.Time
	EndTime         time.Time
	Raw             json.RawMessage
}

const sleepTimeLayout = "2006-01-02T15:04:05.000"

// GetSleep fetches the sleep log for a date.
// Returns nil if the provider recorded no sleep that night.
func (c *Client) GetSleep(ctx context.Context, accessToken, date string) (*SleepData, error) {
	body, err := c.doGet(ctx, metrics.OpGetSleep, fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", date), accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Sleep []struct {
			IsMainSleep bool   `json:"isMainSleep"`
			Duration    int64  `json:"duration"` // milliseconds
			Efficiency  int64  `json:"efficiency"`
			StartTime   string `json:"startTime"`
			EndTime     string `json:"endTime"`
			Levels      struct {
				Summary struct {
					Deep  struct{ Minutes int64 `json:"minutes"` } `json:"deep"`
					Light struct{ Minutes int64 `json:"minutes"` } `json:"light"`
					REM   struct{ Minutes int64 `json:"minutes"` } `json:"rem"`
					Wake  struct{ Minutes int64 `json:"minutes"` } `json:"wake"`
				} `json:"summary"`
			} `json:"levels"`
		} `json:"sleep"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sleep response: %w", err)
	}

	if len(resp.Sleep) == 0 {
		return nil, nil
	}

	// Prefer the main sleep over naps
	record := resp.Sleep[0]
	for _, s := range resp.Sleep {
		if s.IsMainSleep {
			record = s
			break
		}
	}

	data := &SleepData{
		DurationMinutes: record.Duration / 60000,
		Efficiency:      record.Efficiency,
		MinutesDeep:     record.Levels.Summary.Deep.Minutes,
		MinutesLight:    record.Levels.Summary.Light.Minutes,
		MinutesREM:      record.Levels.Summary.REM.Minutes,
		MinutesAwake:    record.Levels.Summary.Wake.Minutes,
		Raw:             body,
	}
	if t, err := time.ParseInLocation(sleepTimeLayout, record.StartTime, time.Local); err == nil {
		data.StartTime = t
	}
	if t, err := time.ParseInLocation(sleepTimeLayout, record.EndTime, time.Local); err == nil {
		data.EndTime = t
	}
	return data, nil
}

// doGet performs an authenticated GET against a data endpoint, retrying
// server errors and rate limits with exponential backoff.
func (c *Client) doGet(ctx context.Context, operation, path, accessToken string) ([]byte, error) {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "path", path, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderWearable, operation).Observe(duration.Seconds())

		if err != nil {
			lastErr = err
			metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderWearable, operation, "error").Inc()
			c.logger.Error("request failed", "path", path, "error", err, "attempt", attempt)
			continue
		}

		metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderWearable, operation, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.Info("wearable_api_request", "path", path, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if retryAfter := parseRetryAfter(resp.Header); retryAfter > 0 && retryAfter <= maxDelay {
				delay = retryAfter
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
			continue
		case resp.StatusCode >= 500:
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
			continue
		default:
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseRetryAfter extracts retry delay from the Retry-After header
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
