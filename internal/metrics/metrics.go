package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Providers
	ProviderWearable  = "wearable"
	ProviderNutrition = "nutrition"

	// Sync results
	ResultSuccess = "success"
	ResultFailure = "failure"

	// Sync kinds
	SyncKindDay      = "day"
	SyncKindSleep    = "sleep"
	SyncKindBackfill = "backfill"
	SyncKindAuto     = "auto"

	// HTTP endpoints
	EndpointOAuthWearableStart     = "oauth_wearable_start"
	EndpointOAuthWearableCallback  = "oauth_wearable_callback"
	EndpointOAuthNutritionStart    = "oauth_nutrition_start"
	EndpointOAuthNutritionCallback = "oauth_nutrition_callback"
	EndpointDisconnect             = "disconnect"
	EndpointSyncDay                = "sync_day"
	EndpointSyncSleep              = "sync_sleep"
	EndpointBackfillStart          = "backfill_start"
	EndpointBackfillStatus         = "backfill_status"
	EndpointBackfillTick           = "backfill_tick"
	EndpointAutoSync               = "auto_sync"
	EndpointSyncLog                = "sync_log"
	EndpointFoodSearch             = "food_search"
	EndpointHealth                 = "health"

	// Provider API operations
	OpExchangeCode     = "exchange_code"
	OpRefreshToken     = "refresh_token"
	OpRequestToken     = "request_token"
	OpAccessToken      = "access_token"
	OpGetActivity      = "get_activity"
	OpGetWeight        = "get_weight"
	OpGetBodyFat       = "get_body_fat"
	OpGetSleep         = "get_sleep"
	OpFoodSearch       = "food_search"
	OpSearchToken      = "search_token"

	// Database operations
	DBOpGetWearableCredential    = "get_wearable_credential"
	DBOpUpsertWearableCredential = "upsert_wearable_credential"
	DBOpUpdateWearableTokens     = "update_wearable_tokens"
	DBOpDeleteWearableCredential = "delete_wearable_credential"
	DBOpGetNutritionCredential   = "get_nutrition_credential"
	DBOpUpsertNutritionCredential = "upsert_nutrition_credential"
	DBOpDeleteNutritionCredential = "delete_nutrition_credential"
	DBOpInsertOAuthState         = "insert_oauth_state"
	DBOpConsumeOAuthState        = "consume_oauth_state"
	DBOpPurgeOAuthStates         = "purge_oauth_states"
	DBOpCreateBackfillJob        = "create_backfill_job"
	DBOpGetBackfillJob           = "get_backfill_job"
	DBOpAdvanceBackfillJob       = "advance_backfill_job"
	DBOpFailBackfillJob          = "fail_backfill_job"
	DBOpListInProgressJobs       = "list_in_progress_jobs"
	DBOpUpsertDailyLog           = "upsert_daily_log"
	DBOpUpsertSleepLog           = "upsert_sleep_log"
	DBOpAppendSyncLog            = "append_sync_log"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Provider API Metrics
var (
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_api_requests_total",
			Help: "Total number of provider API requests",
		},
		[]string{"provider", "operation", "status_code"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_api_request_duration_seconds",
			Help:    "Provider API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of access token refreshes by result",
		},
		[]string{"provider", "result"},
	)
)

// Sync Metrics
var (
	SyncAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_attempts_total",
			Help: "Total number of day-level sync attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Time spent syncing one day",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	BackfillDaysProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_days_processed_total",
			Help: "Total number of days processed by backfill ticks",
		},
	)

	BackfillJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backfill_jobs_in_progress",
			Help: "Number of backfill jobs currently in progress",
		},
	)

	BackfillJobsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_jobs_completed_total",
			Help: "Total number of backfill jobs that reached completed",
		},
	)

	BackfillTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_ticks_total",
			Help: "Total number of backfill orchestrator ticks",
		},
	)

	OAuthStatesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oauth_states_purged_total",
			Help: "Total number of expired transient OAuth states purged",
		},
	)

	SchedulerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_active",
			Help: "Whether the in-process scheduler is running (1) or not (0)",
		},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
