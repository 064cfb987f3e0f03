package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bisse060/groofit-sub000/internal/config"
	"github.com/bisse060/groofit-sub000/internal/database"
	"github.com/bisse060/groofit-sub000/internal/nutrition"
	"github.com/bisse060/groofit-sub000/internal/oauth"
	"github.com/bisse060/groofit-sub000/internal/sync"
	"github.com/bisse060/groofit-sub000/internal/wearable"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// fakeProvider answers both providers' endpoints
func fakeProvider() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":28800,"scope":"activity"}`))
	})
	mux.HandleFunc("/1/user/-/activities/date/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summary":{"steps":8000,"caloriesOut":2200}}`))
	})
	mux.HandleFunc("/1/user/-/body/log/weight/date/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"weight":[]}`))
	})
	mux.HandleFunc("/1/user/-/body/log/fat/date/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fat":[]}`))
	})
	mux.HandleFunc("/1.2/user/-/sleep/date/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sleep":[]}`))
	})
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret"))
	})
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"search-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/rest/server.api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"foods":{"food":[{"food_id":"1","food_name":"Banana","food_type":"Generic","food_description":"Per 100g"}]}}`))
	})
	return httptest.NewServer(mux)
}

func newTestServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()

	provider := fakeProvider()
	t.Cleanup(provider.Close)

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		WearableClientID:     "client-id",
		WearableClientSecret: "client-secret",
		WearableAuthURL:      provider.URL + "/oauth2/authorize",
		WearableTokenURL:     provider.URL + "/oauth2/token",
		WearableAPIBaseURL:   provider.URL,

		NutritionConsumerKey:     "consumer-key",
		NutritionConsumerSecret:  "consumer-secret",
		NutritionRequestTokenURL: provider.URL + "/oauth/request_token",
		NutritionAuthorizeURL:    provider.URL + "/oauth/authorize",
		NutritionAccessTokenURL:  provider.URL + "/oauth/access_token",
		NutritionOAuth2TokenURL:  provider.URL + "/connect/token",
		NutritionAPIBaseURL:      provider.URL + "/rest/server.api",

		BackfillDailyQuota:   30,
		BackfillRefreshEvery: 10,
		InternalAPIKey:       "internal-key",
	}

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	w := wearable.NewClient(cfg, db, logger)
	n := nutrition.NewClient(cfg, logger)
	mgr := oauth.NewManager(db, w, n, logger)
	executor := sync.NewExecutor(db, w, logger)
	orch := sync.NewOrchestrator(db, executor, w, cfg.BackfillDailyQuota, cfg.BackfillRefreshEvery, logger)

	h := New(db, mgr, executor, orch, n, cfg, logger)
	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)

	if err := db.CreateAPIToken("user-token", "user-1"); err != nil {
		t.Fatalf("Failed to create api token: %v", err)
	}
	return server, db
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func connect(t *testing.T, db *database.DB, userID string) {
	t.Helper()
	err := db.UpsertWearableCredential(&database.WearableCredential{
		UserID:         userID,
		AccessToken:    "access",
		RefreshToken:   "refresh",
		TokenExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doRequest(t, "POST", server.URL+"/sync/day", "", `{"date":"2026-08-01"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, "POST", server.URL+"/sync/day", "bad-token", `{"date":"2026-08-01"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 with unknown token, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doRequest(t, "GET", server.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body)
	}
}

func TestSyncDayEndpoint(t *testing.T) {
	server, db := newTestServer(t)

	t.Run("NotConnected", func(t *testing.T) {
		resp, _ := doRequest(t, "POST", server.URL+"/sync/day", "user-token", `{"date":"2026-08-01"}`)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 for unconnected user, got %d", resp.StatusCode)
		}
	})

	t.Run("Success", func(t *testing.T) {
		connect(t, db, "user-1")

		resp, body := doRequest(t, "POST", server.URL+"/sync/day", "user-token", `{"date":"2026-08-01"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if body["steps"] != float64(8000) || body["caloriesOut"] != float64(2200) {
			t.Errorf("Unexpected body: %v", body)
		}
	})

	t.Run("BadDate", func(t *testing.T) {
		resp, _ := doRequest(t, "POST", server.URL+"/sync/day", "user-token", `{"date":"08/01/2026"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for malformed date, got %d", resp.StatusCode)
		}
	})
}

func TestSyncSleepEndpoint(t *testing.T) {
	server, db := newTestServer(t)
	connect(t, db, "user-1")

	resp, body := doRequest(t, "POST", server.URL+"/sync/sleep", "user-token", `{"date":"2026-08-01"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["noData"] != true {
		t.Errorf("Expected noData for empty sleep log, got %v", body)
	}
}

func TestWearableOAuthEndpoints(t *testing.T) {
	server, db := newTestServer(t)

	resp, body := doRequest(t, "POST", server.URL+"/oauth/wearable/start", "user-token",
		`{"redirectUrl":"https://app.example/callback"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	authURL, _ := body["authorizationUrl"].(string)
	if !strings.Contains(authURL, "state=") {
		t.Fatalf("Expected state in authorization URL, got %q", authURL)
	}
	state := authURL[strings.Index(authURL, "state=")+len("state="):]
	if i := strings.Index(state, "&"); i >= 0 {
		state = state[:i]
	}

	t.Run("Callback", func(t *testing.T) {
		resp, body := doRequest(t, "POST", server.URL+"/oauth/wearable/callback", "user-token",
			`{"code":"good-code","state":"`+state+`","redirectUrl":"https://app.example/callback"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
		}

		cred, err := db.GetWearableCredential("user-1")
		if err != nil {
			t.Fatalf("Failed to get credential: %v", err)
		}
		if cred == nil || cred.AccessToken != "access-1" {
			t.Errorf("Expected stored credential, got %+v", cred)
		}
	})

	t.Run("BadState", func(t *testing.T) {
		resp, _ := doRequest(t, "POST", server.URL+"/oauth/wearable/callback", "user-token",
			`{"code":"good-code","state":"forged","redirectUrl":"https://app.example/callback"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for forged state, got %d", resp.StatusCode)
		}
	})

	t.Run("Disconnect", func(t *testing.T) {
		resp, _ := doRequest(t, "DELETE", server.URL+"/oauth/wearable", "user-token", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		cred, _ := db.GetWearableCredential("user-1")
		if cred != nil {
			t.Error("Expected credential removed")
		}
	})
}

func TestNutritionOAuthEndpoints(t *testing.T) {
	server, db := newTestServer(t)

	resp, body := doRequest(t, "POST", server.URL+"/oauth/nutrition/start", "user-token",
		`{"callbackUrl":"https://app.example/callback"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if url, _ := body["authorizationUrl"].(string); !strings.Contains(url, "oauth_token=req-token") {
		t.Fatalf("Expected request token in URL, got %v", body)
	}

	resp, _ = doRequest(t, "POST", server.URL+"/oauth/nutrition/callback", "user-token",
		`{"oauth_token":"req-token","oauth_verifier":"v1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	cred, _ := db.GetNutritionCredential("user-1")
	if cred == nil || cred.OAuthToken != "access-token" {
		t.Errorf("Expected stored nutrition credential, got %+v", cred)
	}

	t.Run("UnknownToken", func(t *testing.T) {
		resp, _ := doRequest(t, "POST", server.URL+"/oauth/nutrition/callback", "user-token",
			`{"oauth_token":"never-issued","oauth_verifier":"v1"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for unknown request token, got %d", resp.StatusCode)
		}
	})
}

func TestBackfillEndpoints(t *testing.T) {
	server, db := newTestServer(t)
	connect(t, db, "user-1")

	t.Run("StatusBeforeStart", func(t *testing.T) {
		resp, _ := doRequest(t, "GET", server.URL+"/backfill/status", "user-token", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 before any backfill, got %d", resp.StatusCode)
		}
	})

	t.Run("Start", func(t *testing.T) {
		resp, body := doRequest(t, "POST", server.URL+"/backfill/start", "user-token", `{"days":90}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if body["estimatedCompletionHours"] != float64(3) {
			t.Errorf("Expected 3 estimated hours, got %v", body["estimatedCompletionHours"])
		}
	})

	t.Run("IdempotentStart", func(t *testing.T) {
		resp, body := doRequest(t, "POST", server.URL+"/backfill/start", "user-token", `{"days":365}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if body["message"] != "backfill already in progress" {
			t.Errorf("Expected in-progress message, got %v", body["message"])
		}
		if body["totalDays"] != float64(90) {
			t.Errorf("Expected original horizon, got %v", body["totalDays"])
		}
	})

	t.Run("Status", func(t *testing.T) {
		resp, body := doRequest(t, "GET", server.URL+"/backfill/status", "user-token", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if body["status"] != database.JobStatusInProgress {
			t.Errorf("Expected in_progress, got %v", body["status"])
		}
	})

	t.Run("TickRequiresInternalKey", func(t *testing.T) {
		resp, _ := doRequest(t, "POST", server.URL+"/internal/backfill-tick", "user-token", "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401 without internal key, got %d", resp.StatusCode)
		}
	})

	t.Run("Tick", func(t *testing.T) {
		req, _ := http.NewRequest("POST", server.URL+"/internal/backfill-tick", nil)
		req.Header.Set("X-Internal-Key", "internal-key")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}

		job, _ := db.GetBackfillJob("user-1")
		if job.DaysSynced != 30 {
			t.Errorf("Expected 30 days after one tick, got %d", job.DaysSynced)
		}
	})
}

func TestFoodSearchEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("MissingQuery", func(t *testing.T) {
		resp, _ := doRequest(t, "GET", server.URL+"/nutrition/foods/search", "user-token", "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 without query, got %d", resp.StatusCode)
		}
	})

	t.Run("Search", func(t *testing.T) {
		resp, body := doRequest(t, "GET", server.URL+"/nutrition/foods/search?q=banana", "user-token", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		foods, _ := body["foods"].([]any)
		if len(foods) != 1 {
			t.Fatalf("Expected 1 result, got %v", body)
		}
		first, _ := foods[0].(map[string]any)
		if first["food_name"] != "Banana" {
			t.Errorf("Unexpected result: %v", first)
		}
	})
}

func TestAutoSyncEndpoint(t *testing.T) {
	server, db := newTestServer(t)
	connect(t, db, "user-1")

	req, _ := http.NewRequest("POST", server.URL+"/internal/auto-sync", nil)
	req.Header.Set("X-Internal-Key", "internal-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	entries, err := db.ListSyncLog("user-1", 10)
	if err != nil {
		t.Fatalf("Failed to list sync log: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected entries for today and yesterday, got %d", len(entries))
	}
}
