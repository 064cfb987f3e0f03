package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Wearable credentials: one row per user who connected the OAuth2 wearable provider
CREATE TABLE IF NOT EXISTS wearable_credentials (
    user_id TEXT PRIMARY KEY,

    -- OAuth tokens
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    token_expires_at INTEGER NOT NULL,
    scope TEXT NOT NULL DEFAULT '',

    -- Metadata
    connected_at INTEGER NOT NULL,
    last_sync_at INTEGER,
    updated_at INTEGER NOT NULL
);

-- Nutrition credentials: one row per user who connected the OAuth1.0a nutrition provider.
-- Tokens are long-lived, no expiry.
CREATE TABLE IF NOT EXISTS nutrition_credentials (
    user_id TEXT PRIMARY KEY,
    oauth_token TEXT NOT NULL,
    oauth_secret TEXT NOT NULL,
    connected_at INTEGER NOT NULL,
    last_sync_at INTEGER
);

-- Transient OAuth handshake state. For the OAuth2 flow "state" is a random
-- correlation token and request_secret is NULL; for the OAuth1.0a flow "state"
-- holds the request token and request_secret its paired secret.
CREATE TABLE IF NOT EXISTS oauth_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    state TEXT NOT NULL,
    request_secret TEXT,
    created_at INTEGER NOT NULL
);

-- Backfill jobs: at most one row per user
CREATE TABLE IF NOT EXISTS backfill_jobs (
    user_id TEXT PRIMARY KEY,
    total_days INTEGER NOT NULL,
    days_synced INTEGER NOT NULL DEFAULT 0,
    current_day_offset INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'in_progress',
    started_at INTEGER NOT NULL,
    last_sync_at INTEGER,
    completed_at INTEGER,
    error_message TEXT
);

-- Daily activity logs, one row per user and calendar date
CREATE TABLE IF NOT EXISTS daily_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    log_date TEXT NOT NULL,
    steps INTEGER,
    calories_out INTEGER,
    weight_kg REAL,
    body_fat_pct REAL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(user_id, log_date)
);

-- Sleep logs, one row per user and calendar date
CREATE TABLE IF NOT EXISTS sleep_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    sleep_date TEXT NOT NULL,
    duration_minutes INTEGER,
    efficiency INTEGER,
    minutes_deep INTEGER,
    minutes_light INTEGER,
    minutes_rem INTEGER,
    minutes_awake INTEGER,
    start_time INTEGER,
    end_time INTEGER,
    raw_json TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(user_id, sleep_date)
);

-- Append-only record of sync attempts
CREATE TABLE IF NOT EXISTS sync_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    attempt_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    sync_date TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

-- API bearer tokens (SHA-256 hash of the raw token)
CREATE TABLE IF NOT EXISTS api_tokens (
    token_hash TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

-- Indexes for oauth_states
CREATE INDEX IF NOT EXISTS idx_oauth_states_lookup ON oauth_states(provider, state);
CREATE INDEX IF NOT EXISTS idx_oauth_states_created ON oauth_states(created_at);

-- Indexes for backfill_jobs
CREATE INDEX IF NOT EXISTS idx_backfill_jobs_status ON backfill_jobs(status);

-- Indexes for log tables
CREATE INDEX IF NOT EXISTS idx_daily_logs_user_date ON daily_logs(user_id, log_date DESC);
CREATE INDEX IF NOT EXISTS idx_sleep_logs_user_date ON sleep_logs(user_id, sleep_date DESC);
CREATE INDEX IF NOT EXISTS idx_sync_log_user ON sync_log(user_id, created_at DESC);
`
