// Package scanlog implements the buffered, batch-inserting persister of
// scan Decisions (ScanLogger, C6). Writers call Log and never block on
// the store; a background flusher drains the queue in batches by size
// or by timer, whichever comes first.
package scanlog

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

// Store is the write-side persistence surface ScanLogger needs.
// Implemented by internal/storage; defined here to avoid an import cycle.
type Store interface {
	InsertDecisions(ctx context.Context, decisions []strategy.Decision) error
}

// Config tunes batching and backpressure.
type Config struct {
	QueueCapacity   int           // bounded queue depth
	BatchSize       int           // B: flush once this many are queued
	FlushInterval   time.Duration // F: flush on this timer regardless of size
	SpillAfterFails int           // K: consecutive flush failures before spilling to file
	SpillPath       string        // local fallback file, JSON lines
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.SpillAfterFails <= 0 {
		c.SpillAfterFails = 3
	}
	if c.SpillPath == "" {
		c.SpillPath = "scanlog_spill.jsonl"
	}
	return c
}

// ScanLogger buffers Decisions in a bounded channel and flushes them to
// Store in batches. Log never blocks except when the queue is entirely
// full, in which case it blocks briefly — the caller (StrategyManager)
// is expected to treat that as backpressure and prioritize TAKE
// decisions over NEAR_MISS/SKIP ahead of time.
type ScanLogger struct {
	cfg    Config
	store  Store
	logger *zap.Logger

	queue chan strategy.Decision
	done  chan struct{}
	wg    sync.WaitGroup

	mu                  sync.Mutex
	consecutiveFailures int
}

// New constructs a ScanLogger. Call Run in its own goroutine to start
// the flusher, and Shutdown to drain and stop it.
func New(store Store, cfg Config, logger *zap.Logger) *ScanLogger {
	cfg = cfg.withDefaults()
	return &ScanLogger{
		cfg:    cfg,
		store:  store,
		logger: logger,
		queue:  make(chan strategy.Decision, cfg.QueueCapacity),
		done:   make(chan struct{}),
	}
}

// Log enqueues a Decision. Non-blocking under normal load; blocks only
// if the bounded queue is saturated.
func (s *ScanLogger) Log(d strategy.Decision) {
	select {
	case s.queue <- d:
	case <-s.done:
	}
}

// TryLog enqueues a Decision without blocking, reporting whether the
// queue had room. The StrategyManager uses this under backpressure to
// drop NEAR_MISS/SKIP before ever dropping a TAKE.
func (s *ScanLogger) TryLog(d strategy.Decision) bool {
	select {
	case s.queue <- d:
		return true
	default:
		return false
	}
}

// QueueLen reports the current queue depth, for backpressure decisions.
func (s *ScanLogger) QueueLen() int { return len(s.queue) }

// Run drives the batch flusher until ctx is cancelled or Shutdown is
// called. Intended to run in its own goroutine.
func (s *ScanLogger) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]strategy.Decision, 0, s.cfg.BatchSize)
	retryPending := false
	flush := func() {
		if len(batch) == 0 {
			retryPending = false
			return
		}
		retryPending = !s.flush(ctx, batch)
		if !retryPending {
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.drainRemaining(batch)
			return
		case <-s.done:
			s.drainRemaining(batch)
			return
		case d := <-s.queue:
			batch = append(batch, d)
			// A batch already awaiting retry is only re-flushed on the
			// ticker, not on every subsequent enqueue, so a persistently
			// failing store isn't hammered once per incoming Decision.
			if len(batch) >= s.cfg.BatchSize && !retryPending {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// drainRemaining flushes the in-flight batch plus anything still queued,
// guaranteeing at-least-once delivery on a clean shutdown.
func (s *ScanLogger) drainRemaining(batch []strategy.Decision) {
	for {
		select {
		case d := <-s.queue:
			batch = append(batch, d)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.flush(ctx, batch)
			cancel()
			return
		}
	}
}

// Shutdown signals Run to stop, then blocks until it has finished
// draining and flushing the queue.
func (s *ScanLogger) Shutdown() {
	close(s.done)
	s.wg.Wait()
}

// flush writes batch to the store, reporting whether the batch was
// consumed — either persisted or spilled to the fallback file. A false
// return means the caller must retain batch and retry it later; spec
// requires a batch to survive every failure short of the Kth, not just
// be attempted once and discarded.
func (s *ScanLogger) flush(ctx context.Context, batch []strategy.Decision) bool {
	if len(batch) == 0 {
		return true
	}
	if err := s.store.InsertDecisions(ctx, batch); err != nil {
		return s.recordFailure(batch, err)
	}
	s.recordSuccess()
	return true
}

func (s *ScanLogger) recordFailure(batch []strategy.Decision, err error) bool {
	s.mu.Lock()
	s.consecutiveFailures++
	fails := s.consecutiveFailures
	s.mu.Unlock()

	s.logger.Warn("scanlog: flush failed",
		zap.Int("batch_size", len(batch)),
		zap.Int("consecutive_failures", fails),
		zap.Error(err))

	if fails >= s.cfg.SpillAfterFails {
		s.spill(batch)
		return true
	}
	return false
}

func (s *ScanLogger) recordSuccess() {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}

// spill appends the batch as JSON lines to the local fallback file so
// no Decision is silently lost after repeated store failures.
func (s *ScanLogger) spill(batch []strategy.Decision) {
	f, err := os.OpenFile(s.cfg.SpillPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error("scanlog: could not open spill file, decisions dropped",
			zap.String("path", s.cfg.SpillPath), zap.Error(err))
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, d := range batch {
		if err := enc.Encode(d); err != nil {
			s.logger.Error("scanlog: failed to encode decision to spill file", zap.Error(err))
		}
	}
	s.logger.Warn("scanlog: spilled batch to fallback file",
		zap.Int("count", len(batch)), zap.String("path", s.cfg.SpillPath))
}
