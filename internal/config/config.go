// Package config provides configuration types and loading for flowbroker.
package config

import (
	"time"

	"github.com/pytake/flowbroker/internal/webhook"
)

// Config is the root configuration struct.
// Top-level groups: Gateway, Redis, SQLite, Scheduler, WhatsApp, Webhook, Engine.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Redis     RedisConfig     `json:"redis"`
	SQLite    SQLiteConfig    `json:"sqlite"`
	Scheduler SchedulerConfig `json:"scheduler"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Webhook   WebhookConfig   `json:"webhook"`
	Engine    EngineConfig    `json:"engine"`
}

// ---------------------------------------------------------------------------
// Engine – flow-execution behavior not covered by a flow document itself
// ---------------------------------------------------------------------------

// EngineConfig holds broker-wide engine behavior. ConflictPolicy is one of
// "deliver_to_existing" (default) or "supersede" (spec F6 open question).
type EngineConfig struct {
	ConflictPolicy string `json:"conflictPolicy" envconfig:"CONFLICT_POLICY"`
}

// ---------------------------------------------------------------------------
// Gateway – the operator-facing listen address (spec §6 CLI surface)
// ---------------------------------------------------------------------------

// GatewayConfig carries the address `flowbroker serve` reports on its
// startup banner. The broker itself has no HTTP surface in scope (spec §1
// "HTTP framing... out of scope"); this exists so the CLI has something
// to print and so an embedding HTTP layer, if one is ever added outside
// this core, has a documented place to read its bind address from.
type GatewayConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// ---------------------------------------------------------------------------
// Redis – Session Store backing KV (spec §4.B)
// ---------------------------------------------------------------------------

// RedisConfig configures the go-redis client backing internal/session.Store.
type RedisConfig struct {
	Addr     string `json:"addr" envconfig:"ADDR"`
	Password string `json:"password" envconfig:"PASSWORD"`
	DB       int    `json:"db" envconfig:"DB"`
}

// ---------------------------------------------------------------------------
// SQLite – Webhook Config/DLQ store (spec §4.G, §6)
// ---------------------------------------------------------------------------

// SQLiteConfig configures the sqlite database backing internal/webhook.Store.
type SQLiteConfig struct {
	Path string `json:"path" envconfig:"PATH"`
}

// ---------------------------------------------------------------------------
// Scheduler – retry/sweep tick intervals (spec §4.H)
// ---------------------------------------------------------------------------

// SchedulerConfig mirrors internal/scheduler.Config's envconfig tags under
// the "SCHEDULER" prefix; kept as its own struct (rather than an import
// alias) so the config package doesn't need to know about scheduler's
// lock-dir default resolution.
type SchedulerConfig struct {
	RetryTick time.Duration `json:"retryTick" envconfig:"RETRY_TICK"`
	SweepTick time.Duration `json:"sweepTick" envconfig:"SWEEP_TICK"`
	LockDir   string        `json:"lockDir" envconfig:"LOCK_DIR"`
}

// ---------------------------------------------------------------------------
// WhatsApp – the one ChannelAdapter shipped in-tree (spec §6)
// ---------------------------------------------------------------------------

// WhatsAppConfig configures the whatsmeow-backed ChannelAdapter.
type WhatsAppConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"ENABLED"`
	DeviceStore  string `json:"deviceStore" envconfig:"DEVICE_STORE"`
}

// ---------------------------------------------------------------------------
// Webhook – broker-wide default retry policy
// ---------------------------------------------------------------------------

// WebhookConfig holds the broker-wide default retry policy (spec §3
// WebhookConfig.retry_policy), convertible with RetryPolicy(). It is not
// applied to tenants automatically: each tenant delivers under the
// RetryPolicy of the webhook.Config it was registered with through
// Dispatcher.Configure.
type WebhookConfig struct {
	MaxRetries int           `json:"maxRetries" envconfig:"MAX_RETRIES"`
	Initial    time.Duration `json:"initial" envconfig:"INITIAL"`
	Multiplier float64       `json:"multiplier" envconfig:"MULTIPLIER"`
	Cap        time.Duration `json:"cap" envconfig:"CAP"`
	Jitter     bool          `json:"jitter" envconfig:"JITTER"`
}

// RetryPolicy converts the configured defaults into a webhook.RetryPolicy.
func (w WebhookConfig) RetryPolicy() webhook.RetryPolicy {
	return webhook.RetryPolicy{
		MaxRetries: w.MaxRetries,
		Initial:    w.Initial,
		Multiplier: w.Multiplier,
		Cap:        w.Cap,
		Jitter:     w.Jitter,
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	defaultPolicy := webhook.DefaultRetryPolicy()
	return &Config{
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		SQLite: SQLiteConfig{
			Path: "flowbroker.db",
		},
		Scheduler: SchedulerConfig{
			RetryTick: 5 * time.Second,
			SweepTick: 30 * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			DeviceStore: "flowbroker-whatsapp.db",
		},
		Webhook: WebhookConfig{
			MaxRetries: defaultPolicy.MaxRetries,
			Initial:    defaultPolicy.Initial,
			Multiplier: defaultPolicy.Multiplier,
			Cap:        defaultPolicy.Cap,
			Jitter:     defaultPolicy.Jitter,
		},
		Engine: EngineConfig{
			ConflictPolicy: "deliver_to_existing",
		},
	}
}
