// Package scheduler runs the two fixed-interval background ticks the
// broker needs (spec §4.H): a fast retry-worker tick that drives due
// webhook retries and due Wait-node resumptions, and a slower sweep tick
// that expires stale sessions.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds scheduler tick intervals and the single-instance lock path.
type Config struct {
	RetryTick time.Duration `json:"retryTick" envconfig:"RETRY_TICK"`
	SweepTick time.Duration `json:"sweepTick" envconfig:"SWEEP_TICK"`
	LockDir   string        `json:"lockDir" envconfig:"LOCK_DIR"`
}

// DefaultConfig matches spec §4.H: "a ~5s tick" for retries, "a separate
// slower loop (≥30s)" for the sweep.
func DefaultConfig() Config {
	dir, _ := os.UserCacheDir()
	return Config{
		RetryTick: 5 * time.Second,
		SweepTick: 30 * time.Second,
		LockDir:   filepath.Join(dir, "flowbroker"),
	}
}

// SessionResumer drives Wait nodes whose due time has arrived.
type SessionResumer interface {
	ResumeDue(ctx context.Context) (int, error)
}

// SessionSweeper expires sessions past their idle/absolute timeout.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// RetryDispatcher drives webhook deliveries whose retry backoff has elapsed.
type RetryDispatcher interface {
	ProcessDue(ctx context.Context)
}

// Scheduler owns the retry-worker and sweep tick loops. A Scheduler is safe
// to run in multiple replicas of the same process: each tick type is
// guarded by its own FileLock so only one replica executes a given tick at
// a time, and a same-process Semaphore(1) prevents a slow tick from
// overlapping its own next firing.
type Scheduler struct {
	cfg       Config
	resumer   SessionResumer
	sweeper   SessionSweeper
	retrier   RetryDispatcher
	log       *slog.Logger
	retryLock *FileLock
	sweepLock *FileLock
	retrySem  *Semaphore
	sweepSem  *Semaphore
}

// New constructs a Scheduler. Any of resumer/sweeper/retrier may be nil to
// disable that tick (useful in tests that only want to exercise one loop).
func New(cfg Config, resumer SessionResumer, sweeper SessionSweeper, retrier RetryDispatcher, log *slog.Logger) *Scheduler {
	if cfg.RetryTick <= 0 {
		cfg.RetryTick = 5 * time.Second
	}
	if cfg.SweepTick <= 0 {
		cfg.SweepTick = 30 * time.Second
	}
	if cfg.LockDir == "" {
		cfg.LockDir = DefaultConfig().LockDir
	}
	return &Scheduler{
		cfg:       cfg,
		resumer:   resumer,
		sweeper:   sweeper,
		retrier:   retrier,
		log:       log,
		retryLock: NewFileLock(filepath.Join(cfg.LockDir, "retry.lock")),
		sweepLock: NewFileLock(filepath.Join(cfg.LockDir, "sweep.lock")),
		retrySem:  NewSemaphore(1),
		sweepSem:  NewSemaphore(1),
	}
}

// Run starts both tick loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.LockDir, 0o755); err != nil {
		return err
	}
	s.log.Info("scheduler started", "retry_tick", s.cfg.RetryTick, "sweep_tick", s.cfg.SweepTick)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.loop(ctx, s.cfg.RetryTick, s.retryLock, s.retrySem, s.retryTick) }()
	go func() { defer wg.Done(); s.loop(ctx, s.cfg.SweepTick, s.sweepLock, s.sweepSem, s.sweepTick) }()
	wg.Wait()

	s.log.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, lock *FileLock, sem *Semaphore, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGuarded(ctx, lock, sem, fn)
		}
	}
}

// runGuarded skips the tick if another replica holds the cross-process
// lock, or if the previous firing of this same tick is still running.
func (s *Scheduler) runGuarded(ctx context.Context, lock *FileLock, sem *Semaphore, fn func(context.Context)) {
	if !sem.TryAcquire() {
		s.log.Debug("scheduler tick skipped: previous run still in flight")
		return
	}
	defer sem.Release()

	acquired, err := lock.TryLock()
	if err != nil {
		s.log.Warn("scheduler lock error", "error", err)
		return
	}
	if !acquired {
		s.log.Debug("scheduler tick skipped: lock held by another instance")
		return
	}
	defer lock.Unlock()

	fn(ctx)
}

func (s *Scheduler) retryTick(ctx context.Context) {
	if s.retrier != nil {
		s.retrier.ProcessDue(ctx)
	}
	if s.resumer != nil {
		n, err := s.resumer.ResumeDue(ctx)
		if err != nil {
			s.log.Warn("resume-due tick failed", "error", err)
		} else if n > 0 {
			s.log.Info("resumed due sessions", "count", n)
		}
	}
}

func (s *Scheduler) sweepTick(ctx context.Context) {
	if s.sweeper == nil {
		return
	}
	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.log.Warn("sweep tick failed", "error", err)
	} else if n > 0 {
		s.log.Info("swept expired sessions", "count", n)
	}
}
