package nutrition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bisse060/groofit-sub000/internal/config"
	"github.com/bisse060/groofit-sub000/internal/metrics"
)

// HTTPError is a non-success response from the nutrition provider
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("nutrition provider returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the nutrition provider. User-scoped diary access uses
// OAuth1.0a signed requests; anonymous food search uses a separate OAuth2
// client-credentials token cached in-process.
type Client struct {
	signer          signer
	requestTokenURL string
	authorizeURL    string
	accessTokenURL  string
	apiBaseURL      string
	httpClient      *http.Client
	searchTokens    oauth2.TokenSource
	logger          *slog.Logger
}

// NewClient creates a nutrition provider client
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.NutritionConsumerKey,
		ClientSecret: cfg.NutritionConsumerSecret,
		TokenURL:     cfg.NutritionOAuth2TokenURL,
		Scopes:       []string{"basic"},
	}

	return &Client{
		signer: signer{
			consumerKey:    cfg.NutritionConsumerKey,
			consumerSecret: cfg.NutritionConsumerSecret,
		},
		requestTokenURL: cfg.NutritionRequestTokenURL,
		authorizeURL:    cfg.NutritionAuthorizeURL,
		accessTokenURL:  cfg.NutritionAccessTokenURL,
		apiBaseURL:      cfg.NutritionAPIBaseURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		searchTokens:    oauth2.ReuseTokenSource(nil, cc.TokenSource(context.Background())),
		logger:          logger,
	}
}

// SetSearchTokenSource replaces the anonymous-search token source.
// Tests inject a static token here.
func (c *Client) SetSearchTokenSource(ts oauth2.TokenSource) {
	c.searchTokens = ts
}

// RequestToken performs the signed request-token call that begins a
// three-legged handshake. Returns the short-lived request token and secret.
func (c *Client) RequestToken(ctx context.Context, callbackURL string) (token, secret string, err error) {
	params := c.signer.oauthParams()
	params["oauth_callback"] = callbackURL

	body, err := c.doSigned(ctx, metrics.OpRequestToken, c.requestTokenURL, params, "")
	if err != nil {
		return "", "", fmt.Errorf("request token call failed: %w", err)
	}

	return parseTokenResponse(body)
}

// AuthorizeURL builds the consent-screen URL for a request token
func (c *Client) AuthorizeURL(requestToken string) string {
	return c.authorizeURL + "?oauth_token=" + url.QueryEscape(requestToken)
}

// AccessToken exchanges an authorized request token and verifier for the
// long-lived access token and secret. requestSecret signs the call.
func (c *Client) AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (token, secret string, err error) {
	params := c.signer.oauthParams()
	params["oauth_token"] = requestToken
	params["oauth_verifier"] = verifier

	body, err := c.doSigned(ctx, metrics.OpAccessToken, c.accessTokenURL, params, requestSecret)
	if err != nil {
		return "", "", fmt.Errorf("access token call failed: %w", err)
	}

	return parseTokenResponse(body)
}

// doSigned signs params with HMAC-SHA1 and POSTs them form-encoded
func (c *Client) doSigned(ctx context.Context, operation, endpoint string, params map[string]string, tokenSecret string) (string, error) {
	params["oauth_signature"] = c.signer.sign(http.MethodPost, endpoint, params, tokenSecret)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderNutrition, operation).Observe(duration.Seconds())

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderNutrition, operation, "error").Inc()
		c.logger.Error("signed request failed", "operation", operation, "error", err, "duration_ms", duration.Milliseconds())
		return "", err
	}
	defer resp.Body.Close()

	metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderNutrition, operation, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Info("nutrition_api_request", "operation", operation, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

// Food is one food-search result
type Food struct {
	ID          string `json:"food_id"`
	Name        string `json:"food_name"`
	Type        string `json:"food_type"`
	BrandName   string `json:"brand_name,omitempty"`
	Description string `json:"food_description"`
}

// SearchFoods performs an anonymous food search using the cached
// client-credentials token.
func (c *Client) SearchFoods(ctx context.Context, query string, maxResults int) ([]Food, error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 20
	}

	tok, err := c.searchTokens.Token()
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderNutrition, metrics.OpSearchToken, "error").Inc()
		return nil, fmt.Errorf("failed to obtain search token: %w", err)
	}

	form := url.Values{}
	form.Set("method", "foods.search")
	form.Set("search_expression", query)
	form.Set("max_results", strconv.Itoa(maxResults))
	form.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	metrics.ProviderRequestDuration.WithLabelValues(metrics.ProviderNutrition, metrics.OpFoodSearch).Observe(duration.Seconds())

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderNutrition, metrics.OpFoodSearch, "error").Inc()
		c.logger.Error("food search failed", "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("food search failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.ProviderRequestsTotal.WithLabelValues(metrics.ProviderNutrition, metrics.OpFoodSearch, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Info("nutrition_api_request", "operation", metrics.OpFoodSearch, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// The provider wraps a single result as an object instead of an array
	var searchResp struct {
		Foods struct {
			Food json.RawMessage `json:"food"`
		} `json:"foods"`
	}
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(searchResp.Foods.Food) == 0 {
		return nil, nil
	}

	var foods []Food
	if err := json.Unmarshal(searchResp.Foods.Food, &foods); err != nil {
		var single Food
		if err := json.Unmarshal(searchResp.Foods.Food, &single); err != nil {
			return nil, fmt.Errorf("failed to decode search results: %w", err)
		}
		foods = []Food{single}
	}
	return foods, nil
}
