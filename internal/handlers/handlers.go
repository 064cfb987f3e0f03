package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bisse060/groofit-sub000/internal/config"
	"github.com/bisse060/groofit-sub000/internal/database"
	"github.com/bisse060/groofit-sub000/internal/metrics"
	"github.com/bisse060/groofit-sub000/internal/middleware"
	"github.com/bisse060/groofit-sub000/internal/nutrition"
	"github.com/bisse060/groofit-sub000/internal/oauth"
	"github.com/bisse060/groofit-sub000/internal/sync"
	"github.com/bisse060/groofit-sub000/internal/wearable"
)

// Handlers serves the sync subsystem's HTTP surface
type Handlers struct {
	db           *database.DB
	oauth        *oauth.Manager
	executor     *sync.Executor
	orchestrator *sync.Orchestrator
	nutrition    *nutrition.Client
	cfg          *config.Config
	logger       *slog.Logger
}

// New creates the handler set
func New(db *database.DB, mgr *oauth.Manager, executor *sync.Executor, orch *sync.Orchestrator, n *nutrition.Client, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		db:           db,
		oauth:        mgr,
		executor:     executor,
		orchestrator: orch,
		nutrition:    n,
		cfg:          cfg,
		logger:       logger,
	}
}

// Router builds the HTTP routes. User endpoints authenticate with a bearer
// token; /internal endpoints with the shared scheduler key.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", middleware.Metrics(metrics.EndpointHealth, h.Health))

	r.Group(func(r chi.Router) {
		r.Use(middleware.UserAuth(h.db))

		r.Post("/oauth/wearable/start", middleware.Metrics(metrics.EndpointOAuthWearableStart, h.StartWearable))
		r.Post("/oauth/wearable/callback", middleware.Metrics(metrics.EndpointOAuthWearableCallback, h.CompleteWearable))
		r.Post("/oauth/nutrition/start", middleware.Metrics(metrics.EndpointOAuthNutritionStart, h.StartNutrition))
		r.Post("/oauth/nutrition/callback", middleware.Metrics(metrics.EndpointOAuthNutritionCallback, h.CompleteNutrition))
		r.Delete("/oauth/{provider}", middleware.Metrics(metrics.EndpointDisconnect, h.Disconnect))

		r.Post("/sync/day", middleware.Metrics(metrics.EndpointSyncDay, h.SyncDay))
		r.Post("/sync/sleep", middleware.Metrics(metrics.EndpointSyncSleep, h.SyncSleep))
		r.Get("/sync/log", middleware.Metrics(metrics.EndpointSyncLog, h.SyncLog))

		r.Post("/backfill/start", middleware.Metrics(metrics.EndpointBackfillStart, h.StartBackfill))
		r.Get("/backfill/status", middleware.Metrics(metrics.EndpointBackfillStatus, h.BackfillStatus))

		r.Get("/nutrition/foods/search", middleware.Metrics(metrics.EndpointFoodSearch, h.SearchFoods))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalAuth(h.cfg.InternalAPIKey))

		r.Post("/internal/backfill-tick", middleware.Metrics(metrics.EndpointBackfillTick, h.BackfillTick))
		r.Post("/internal/auto-sync", middleware.Metrics(metrics.EndpointAutoSync, h.AutoSync))
	})

	return r
}

// Health reports service and database health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Health(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handlers) StartWearable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.RedirectURL == "" {
		writeError(w, http.StatusBadRequest, "redirectUrl is required")
		return
	}

	authURL, err := h.oauth.StartWearable(r.Context(), middleware.UserID(r.Context()), req.RedirectURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorizationUrl": authURL})
}

func (h *Handlers) CompleteWearable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string `json:"code"`
		State       string `json:"state"`
		RedirectURL string `json:"redirectUrl"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Code == "" || req.State == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	err := h.oauth.CompleteWearable(r.Context(), middleware.UserID(r.Context()), req.Code, req.State, req.RedirectURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) StartNutrition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallbackURL string `json:"callbackUrl"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.CallbackURL == "" {
		writeError(w, http.StatusBadRequest, "callbackUrl is required")
		return
	}

	authURL, err := h.oauth.StartNutrition(r.Context(), middleware.UserID(r.Context()), req.CallbackURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorizationUrl": authURL})
}

func (h *Handlers) CompleteNutrition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OAuthToken    string `json:"oauth_token"`
		OAuthVerifier string `json:"oauth_verifier"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.OAuthToken == "" || req.OAuthVerifier == "" {
		writeError(w, http.StatusBadRequest, "oauth_token and oauth_verifier are required")
		return
	}

	if err := h.oauth.CompleteNutrition(r.Context(), req.OAuthToken, req.OAuthVerifier); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if provider != database.ProviderWearable && provider != database.ProviderNutrition {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	if err := h.oauth.Disconnect(middleware.UserID(r.Context()), provider); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) SyncDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	result, err := h.executor.SyncDay(r.Context(), middleware.UserID(r.Context()), date, metrics.SyncKindDay)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) SyncSleep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	result, err := h.executor.SyncSleep(r.Context(), middleware.UserID(r.Context()), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) SyncLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.db.ListSyncLog(middleware.UserID(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	type entry struct {
		AttemptID string    `json:"attemptId"`
		SyncDate  string    `json:"syncDate"`
		Status    string    `json:"status"`
		Message   string    `json:"message"`
		CreatedAt time.Time `json:"createdAt"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{
			AttemptID: e.AttemptID,
			SyncDate:  e.SyncDate,
			Status:    e.Status,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handlers) StartBackfill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Days < 1 {
		writeError(w, http.StatusBadRequest, "days must be at least 1")
		return
	}

	job, created, err := h.orchestrator.Start(middleware.UserID(r.Context()), req.Days)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	message := "backfill started"
	if !created {
		message = "backfill already in progress"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":                   message,
		"estimatedCompletionHours":  h.orchestrator.EstimatedCompletionHours(job),
		"totalDays":                 job.TotalDays,
		"daysSynced":                job.DaysSynced,
		"status":                    job.Status,
	})
}

func (h *Handlers) BackfillStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.db.GetBackfillJob(middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "no backfill job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalDays":    job.TotalDays,
		"daysSynced":   job.DaysSynced,
		"status":       job.Status,
		"startedAt":    job.StartedAt,
		"lastSyncAt":   job.LastSyncAt,
		"completedAt":  job.CompletedAt,
		"errorMessage": job.ErrorMessage,
	})
}

func (h *Handlers) SearchFoods(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	maxResults, _ := strconv.Atoi(r.URL.Query().Get("max"))

	foods, err := h.nutrition.SearchFoods(r.Context(), query, maxResults)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if foods == nil {
		foods = []nutrition.Food{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"foods": foods})
}

func (h *Handlers) BackfillTick(w http.ResponseWriter, r *http.Request) {
	results, err := h.orchestrator.RunTick(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": results})
}

func (h *Handlers) AutoSync(w http.ResponseWriter, r *http.Request) {
	results, err := h.orchestrator.AutoSyncAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": results})
}

// fail maps domain errors to HTTP statuses
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var providerErr *wearable.HTTPError
	switch {
	case errors.Is(err, oauth.ErrInvalidState), errors.Is(err, oauth.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sync.ErrNotConnected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wearable.ErrTokenRefresh):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &providerErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parseDate validates a date parameter, defaulting to today
func parseDate(w http.ResponseWriter, date string) (string, bool) {
	if date == "" {
		return time.Now().Format(database.DateFormat), true
	}
	if _, err := time.Parse(database.DateFormat, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
