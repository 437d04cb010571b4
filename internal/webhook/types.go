// Package webhook implements the Outbound Webhook Dispatcher (spec §4.G):
// per-tenant configuration, signed delivery, retry scheduling, dead-letter
// handling, and per-tenant metrics.
package webhook

import (
	"strings"
	"time"
)

// AuthKind selects the auxiliary auth header a WebhookConfig adds.
type AuthKind string

const (
	AuthNone   AuthKind = ""
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthAPIKey AuthKind = "api_key"
)

// AuthConfig is the optional auxiliary auth header (spec §4.G step 3).
type AuthConfig struct {
	Kind       AuthKind
	Token      string // bearer / api_key
	HeaderName string // api_key only; defaults to X-Api-Key
	Username   string // basic
	Password   string // basic
}

// RetryPolicy parameterizes the delay schedule (spec §4.G/§8).
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Multiplier float64
	Cap        time.Duration
	Jitter     bool
}

// DefaultRetryPolicy matches S5's scenario parameters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Initial: time.Second, Multiplier: 2.0, Cap: 60 * time.Second, Jitter: false}
}

// Config is a tenant's webhook delivery configuration (spec §3 WebhookConfig).
type Config struct {
	TenantID       string
	BaseURL        string
	SecretKey      string
	DefaultHeaders map[string]string
	RetryPolicy    RetryPolicy
	Timeout        time.Duration
	EnabledEvents  []string // exact names or "prefix*" wildcards, or "*"
	Active         bool
	Auth           AuthConfig
}

// IsEventEnabled reports whether eventType should be delivered under this
// config (spec §3 "is_event_enabled").
func (c Config) IsEventEnabled(eventType string) bool {
	if !c.Active {
		return false
	}
	for _, pattern := range c.EnabledEvents {
		if pattern == "*" || pattern == eventType {
			return true
		}
		if strings.HasSuffix(pattern, "*") && strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

// Masked returns a copy of c with SecretKey redacted, for any list/read API
// exposed to users (spec §6).
func (c Config) Masked(mask func(string) string) Config {
	masked := c
	masked.SecretKey = mask(c.SecretKey)
	return masked
}

// Attempt records one delivery try (spec §3 WebhookAttempt).
type Attempt struct {
	AttemptNumber        int
	AttemptedAt          time.Time
	ResponseStatus       int
	ResponseBodyTruncated string // truncated to 1KiB
	ResponseTimeMs       int64
	Error                string
	Success              bool
}

// Event is one outbound delivery record (spec §3 WebhookEvent).
type Event struct {
	EventID       string
	TenantID      string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	TargetURL     string // overrides Config.BaseURL when set
	CustomHeaders map[string]string
	Severity      string
	Context       map[string]any
	Attempts      []Attempt
}

// DeadLetterEntry is a permanently-failed delivery (spec §3).
type DeadLetterEntry struct {
	Event         Event
	FailedAt      time.Time
	FailureReason string
	CanRetry      bool
}
