package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists tenant webhook configuration and the dead-letter queue,
// grounded on the teacher's sqlite usage pattern in internal/timeline
// (same driver, same connection string shape) but replacing its ad hoc
// ALTER TABLE chain with goose-managed migrations.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the sqlite database at dbPath and
// brings its schema up to date.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("webhook: open db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutConfig upserts a tenant's webhook configuration.
func (s *Store) PutConfig(ctx context.Context, cfg Config) error {
	headers, err := json.Marshal(cfg.DefaultHeaders)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(cfg.RetryPolicy)
	if err != nil {
		return err
	}
	events, err := json.Marshal(cfg.EnabledEvents)
	if err != nil {
		return err
	}
	auth, err := json.Marshal(cfg.Auth)
	if err != nil {
		return err
	}
	active := 0
	if cfg.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhook_configs (tenant_id, base_url, secret_key, default_headers, retry_policy, timeout_ms, enabled_events, active, auth, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id) DO UPDATE SET
			base_url = excluded.base_url,
			secret_key = excluded.secret_key,
			default_headers = excluded.default_headers,
			retry_policy = excluded.retry_policy,
			timeout_ms = excluded.timeout_ms,
			enabled_events = excluded.enabled_events,
			active = excluded.active,
			auth = excluded.auth,
			updated_at = CURRENT_TIMESTAMP
	`, cfg.TenantID, cfg.BaseURL, cfg.SecretKey, string(headers), string(policy), cfg.Timeout.Milliseconds(), string(events), active, string(auth))
	return err
}

// GetConfig fetches a tenant's webhook configuration. Returns sql.ErrNoRows
// if the tenant has none configured.
func (s *Store) GetConfig(ctx context.Context, tenantID string) (Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, base_url, secret_key, default_headers, retry_policy, timeout_ms, enabled_events, active, auth
		FROM webhook_configs WHERE tenant_id = ?
	`, tenantID)

	var cfg Config
	var headers, policy, events, auth string
	var timeoutMs int64
	var active int
	if err := row.Scan(&cfg.TenantID, &cfg.BaseURL, &cfg.SecretKey, &headers, &policy, &timeoutMs, &events, &active, &auth); err != nil {
		return Config{}, err
	}
	cfg.Timeout = time.Duration(timeoutMs) * time.Millisecond
	cfg.Active = active != 0
	if err := json.Unmarshal([]byte(headers), &cfg.DefaultHeaders); err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal([]byte(policy), &cfg.RetryPolicy); err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal([]byte(events), &cfg.EnabledEvents); err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal([]byte(auth), &cfg.Auth); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ListConfigs returns every tenant's webhook configuration.
func (s *Store) ListConfigs(ctx context.Context) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id FROM webhook_configs ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	configs := make([]Config, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetConfig(ctx, id)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// PutDeadLetter records a permanently failed delivery.
func (s *Store) PutDeadLetter(ctx context.Context, entry DeadLetterEntry) error {
	payload, err := json.Marshal(entry.Event)
	if err != nil {
		return err
	}
	canRetry := 0
	if entry.CanRetry {
		canRetry = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (event_id, tenant_id, event, failed_at, failure_reason, can_retry)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			event = excluded.event,
			failed_at = excluded.failed_at,
			failure_reason = excluded.failure_reason,
			can_retry = excluded.can_retry
	`, entry.Event.EventID, entry.Event.TenantID, string(payload), entry.FailedAt, entry.FailureReason, canRetry)
	return err
}

// ListDeadLetters returns every dead-lettered event for a tenant, newest
// first.
func (s *Store) ListDeadLetters(ctx context.Context, tenantID string) ([]DeadLetterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event, failed_at, failure_reason, can_retry FROM dead_letters
		WHERE tenant_id = ? ORDER BY failed_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetterEntry
	for rows.Next() {
		var payload string
		var entry DeadLetterEntry
		var canRetry int
		if err := rows.Scan(&payload, &entry.FailedAt, &entry.FailureReason, &canRetry); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &entry.Event); err != nil {
			return nil, err
		}
		entry.CanRetry = canRetry != 0
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteDeadLetter removes a single dead-lettered event, e.g. after a
// successful manual replay.
func (s *Store) DeleteDeadLetter(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE event_id = ?`, eventID)
	return err
}

// ClearDeadLetters wipes a tenant's entire dead-letter queue (spec §6
// "clear a tenant's dead-letter queue").
func (s *Store) ClearDeadLetters(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE tenant_id = ?`, tenantID)
	return err
}
