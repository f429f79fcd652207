// Package supervisor implements the Scheduler/Supervisor (C8): it owns
// the two periodic tasks — the scan tick and the exit tick — restarts
// each on crash with bounded exponential backoff, heartbeats their
// liveness, and coordinates graceful shutdown with the ScanLogger.
package supervisor

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/metrics"
)

// JobType identifies which periodic loop a heartbeat or restart belongs to.
type JobType string

const (
	JobScanTick JobType = "scan_tick"
	JobExitTick JobType = "exit_tick"
)

// Status mirrors system_heartbeat.status.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// HeartbeatWriter upserts system_heartbeat rows. Defined here, not in
// internal/storage, so this package never imports its own infrastructure
// implementation.
type HeartbeatWriter interface {
	UpsertHeartbeat(ctx context.Context, serviceName string, status Status, metadata map[string]any) error
}

// Flusher is the narrow surface the supervisor needs from ScanLogger on
// graceful shutdown.
type Flusher interface {
	Shutdown()
}

// Config tunes tick intervals and restart/backoff behavior.
type Config struct {
	ScanInterval    time.Duration // default 60s
	ExitInterval    time.Duration // default 30s
	BaseBackoff     time.Duration // default 1s
	MaxBackoff      time.Duration // default 5m
	MaxConsecutiveFailuresBeforeAlert int // default 5
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 60 * time.Second
	}
	if c.ExitInterval <= 0 {
		c.ExitInterval = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxConsecutiveFailuresBeforeAlert <= 0 {
		c.MaxConsecutiveFailuresBeforeAlert = 5
	}
	return c
}

// Supervisor drives the scan-tick and exit-tick loops, restarting each
// independently on panic/error with exponential backoff, and reports
// loop liveness via heartbeats.
type Supervisor struct {
	cfg        Config
	runScan    func(ctx context.Context) error
	runExit    func(ctx context.Context) error
	heartbeats HeartbeatWriter
	scanLog    Flusher
	logger     *zap.Logger
	metrics    *metrics.Collectors

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// SetMetrics attaches a Prometheus collectors bundle. Optional; nil-safe
// if never called.
func (s *Supervisor) SetMetrics(c *metrics.Collectors) {
	s.metrics = c
}

// New constructs a Supervisor. runScan and runExit are the scan-tick and
// exit-tick bodies (typically scanner.Manager.RunTick and
// trader.Trader.RunExitTick adapted to return an error). heartbeats and
// scanLog may be nil to disable heartbeat writes / shutdown flush
// respectively (useful in tests).
func New(cfg Config, runScan, runExit func(ctx context.Context) error, heartbeats HeartbeatWriter, scanLog Flusher, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg.withDefaults(),
		runScan:    runScan,
		runExit:    runExit,
		heartbeats: heartbeats,
		scanLog:    scanLog,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Run starts both loops and blocks until ctx is cancelled. On return, it
// has already performed graceful shutdown: stopped accepting new ticks,
// let any in-flight tick finish (tick bodies own their own cancellation
// at the next safe point via ctx), and flushed the ScanLogger.
func (s *Supervisor) Run(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, JobScanTick, s.cfg.ScanInterval, s.runScan)
	go s.loop(ctx, JobExitTick, s.cfg.ExitInterval, s.runExit)

	<-ctx.Done()
	close(s.stopCh)
	s.wg.Wait()

	if s.scanLog != nil {
		s.scanLog.Shutdown()
	}
	s.logger.Info("supervisor: graceful shutdown complete")
}

// loop runs fn on a ticker of period interval, restarting it with bounded
// exponential backoff on error or panic. After cfg.MaxConsecutiveFailuresBeforeAlert
// consecutive failures it reports StatusError via heartbeat and keeps
// retrying (it never gives up), logging at error level every time.
func (s *Supervisor) loop(ctx context.Context, job JobType, interval time.Duration, fn func(ctx context.Context) error) {
	defer s.wg.Done()
	if fn == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			select {
			case <-s.stopCh:
				return
			default:
			}

			err := s.runOnce(ctx, job, fn)
			if err != nil {
				consecutiveFailures++
				status := StatusOK
				if consecutiveFailures >= s.cfg.MaxConsecutiveFailuresBeforeAlert {
					status = StatusError
					s.logger.Error("supervisor: job repeatedly failing, marking error and continuing to retry",
						zap.String("job", string(job)), zap.Int("consecutive_failures", consecutiveFailures), zap.Error(err))
					if consecutiveFailures == s.cfg.MaxConsecutiveFailuresBeforeAlert && s.metrics != nil {
						s.metrics.CircuitBreakerTripped.Inc()
					}
				} else {
					s.logger.Warn("supervisor: job failed", zap.String("job", string(job)), zap.Error(err))
				}
				s.heartbeat(ctx, job, status, map[string]any{"last_error": err.Error(), "consecutive_failures": consecutiveFailures})

				backoff := s.backoffFor(consecutiveFailures)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				case <-s.stopCh:
					return
				}
				continue
			}

			consecutiveFailures = 0
			s.heartbeat(ctx, job, StatusOK, nil)
		}
	}
}

// runOnce invokes fn, converting a panic into an error so one bad tick
// never brings down the supervisor loop.
func (s *Supervisor) runOnce(ctx context.Context, job JobType, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("supervisor: job panicked", zap.String("job", string(job)), zap.Any("panic", r))
			err = panicError{r}
		}
	}()
	return fn(ctx)
}

func (s *Supervisor) heartbeat(ctx context.Context, job JobType, status Status, metadata map[string]any) {
	if s.heartbeats == nil {
		return
	}
	hbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.heartbeats.UpsertHeartbeat(hbCtx, string(job), status, metadata); err != nil {
		s.logger.Warn("supervisor: failed to write heartbeat", zap.String("job", string(job)), zap.Error(err))
	}
}

// backoffFor computes 2^(n-1) * BaseBackoff capped at MaxBackoff.
func (s *Supervisor) backoffFor(consecutiveFailures int) time.Duration {
	mult := math.Pow(2, float64(consecutiveFailures-1))
	d := time.Duration(float64(s.cfg.BaseBackoff) * mult)
	if d > s.cfg.MaxBackoff || d <= 0 {
		return s.cfg.MaxBackoff
	}
	return d
}

type panicError struct{ v any }

func (p panicError) Error() string { return "panic recovered" }
