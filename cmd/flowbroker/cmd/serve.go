package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pytake/flowbroker/internal/bus"
	"github.com/pytake/flowbroker/internal/channel"
	"github.com/pytake/flowbroker/internal/engine"
	"github.com/pytake/flowbroker/internal/flow"
	"github.com/pytake/flowbroker/internal/logging"
	"github.com/pytake/flowbroker/internal/scheduler"
	"github.com/pytake/flowbroker/internal/webhook"
)

var flowsDir string

func init() {
	serveCmd.Flags().StringVar(&flowsDir, "flows-dir", "", "directory of *.json flow definitions to load into the registry at startup")
	serveCmd.Flags().BoolVar(&serveNoColor, "no-color", false, "disable colored log output")
}

var serveNoColor bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler tick loop and webhook drain in the foreground",
	Long: "serve is the only long-running flowbroker command: it starts the " +
		"session-resume/sweep scheduler (spec §4.H) and drains the outbound " +
		"event bus into the webhook dispatcher (spec §4.F/G). Every other " +
		"command is a one-shot operator action against the same state.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logOpts := logging.DefaultOptions()
	logOpts.Color = !serveNoColor
	log := logging.New(logOpts)

	printHeader("serve")
	log.Info("starting flowbroker", "gateway", cfg.Gateway.Host, "port", cfg.Gateway.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := sessionStore(cfg)

	registry := flow.NewRegistry()
	if flowsDir != "" {
		if err := loadFlowsDir(registry, flowsDir, log); err != nil {
			return err
		}
	}

	eventBus := bus.NewBus(0)

	whStore, err := webhook.NewStore(ctx, cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer whStore.Close()
	metrics := webhook.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := webhook.NewDispatcher(whStore, metrics, log.With("component", "webhook"))

	var ch channel.ChannelAdapter
	if cfg.WhatsApp.Enabled {
		wa, err := channel.NewWhatsAppAdapter(ctx, cfg.WhatsApp.DeviceStore)
		if err != nil {
			return err
		}
		defer wa.Close()
		ch = wa
	}
	action := channel.NewHTTPActionAdapter(30 * time.Second)

	eng := engine.New(registry, store, ch, action, eventBus, log.With("component", "engine"))
	if p := engine.ConflictPolicy(cfg.Engine.ConflictPolicy); p != "" {
		eng.Conflict = p
	}

	sched := scheduler.New(scheduler.Config{
		RetryTick: cfg.Scheduler.RetryTick,
		SweepTick: cfg.Scheduler.SweepTick,
		LockDir:   cfg.Scheduler.LockDir,
	}, eng, store, dispatcher, log)

	go drainBus(ctx, eventBus, dispatcher, log)

	log.Info("scheduler running", "retry_tick", cfg.Scheduler.RetryTick, "sweep_tick", cfg.Scheduler.SweepTick)
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("flowbroker stopped")
	return nil
}

// drainBus pumps the outbound event bus into the webhook dispatcher until
// ctx is cancelled, the webhook-delivery counterpart of the scheduler's
// retry/sweep ticks (spec §4.F "read by the webhook dispatcher").
func drainBus(ctx context.Context, b *bus.Bus, d *webhook.Dispatcher, log *slog.Logger) {
	for {
		ev, err := b.Consume(ctx)
		if err != nil {
			return
		}
		whEvent := webhook.Event{
			EventID:   ev.ID,
			TenantID:  ev.TenantID,
			EventType: ev.Type,
			Payload:   ev.Data,
			CreatedAt: ev.CreatedAt,
		}
		if err := d.Deliver(ctx, whEvent); err != nil {
			log.Warn("webhook delivery failed", "tenant_id", ev.TenantID, "event_id", ev.ID, "err", err)
		}
	}
}

// loadFlowsDir loads every *.json file in dir into registry, failing fast
// on the first malformed document so `serve` never starts half-configured.
func loadFlowsDir(registry *flow.Registry, dir string, log *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := flow.ParseJSON(data)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		registry.Load(f)
		log.Info("loaded flow", "id", f.ID, "path", path)
	}
	return nil
}
