package scanlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

type recordingStore struct {
	mu      sync.Mutex
	batches [][]strategy.Decision
	failN   int // fail the first failN calls
	calls   int
}

func (r *recordingStore) InsertDecisions(ctx context.Context, decisions []strategy.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failN {
		return os.ErrDeadlineExceeded
	}
	cp := make([]strategy.Decision, len(decisions))
	copy(cp, decisions)
	r.batches = append(r.batches, cp)
	return nil
}

func (r *recordingStore) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func sampleDecision(symbol string) strategy.Decision {
	return strategy.Decision{
		ScanID:    strategy.NewScanID(),
		Timestamp: time.Now(),
		Symbol:    symbol,
		Strategy:  "DCA",
		Outcome:   strategy.DecisionSkip,
		Reason:    strategy.ReasonNoSetup,
	}
}

func TestScanLogger_FlushesBySize(t *testing.T) {
	store := &recordingStore{}
	sl := New(store, Config{QueueCapacity: 100, BatchSize: 3, FlushInterval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sl.Run(ctx)

	for i := 0; i < 3; i++ {
		sl.Log(sampleDecision("LINK"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.total() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := store.total(); got != 3 {
		t.Fatalf("expected 3 flushed decisions, got %d", got)
	}
}

func TestScanLogger_FlushesOnTimerBelowBatchSize(t *testing.T) {
	store := &recordingStore{}
	sl := New(store, Config{QueueCapacity: 100, BatchSize: 100, FlushInterval: 20 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sl.Run(ctx)

	sl.Log(sampleDecision("LINK"))

	deadline := time.Now().Add(2 * time.Second)
	for store.total() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := store.total(); got != 1 {
		t.Fatalf("expected timer flush to deliver 1 decision, got %d", got)
	}
}

func TestScanLogger_ShutdownDrainsQueue(t *testing.T) {
	store := &recordingStore{}
	sl := New(store, Config{QueueCapacity: 100, BatchSize: 100, FlushInterval: time.Hour}, zap.NewNop())

	ctx := context.Background()
	go sl.Run(ctx)

	for i := 0; i < 10; i++ {
		sl.Log(sampleDecision("LINK"))
	}
	sl.Shutdown()

	if got := store.total(); got != 10 {
		t.Fatalf("expected clean shutdown to flush all 10 queued decisions, got %d", got)
	}
}

func TestScanLogger_SpillsAfterConsecutiveFailures(t *testing.T) {
	dir := t.TempDir()
	spillPath := filepath.Join(dir, "spill.jsonl")
	store := &recordingStore{failN: 10}
	sl := New(store, Config{
		QueueCapacity:   100,
		BatchSize:       1,
		FlushInterval:   time.Hour,
		SpillAfterFails: 2,
		SpillPath:       spillPath,
	}, zap.NewNop())

	ctx := context.Background()
	go sl.Run(ctx)

	sl.Log(sampleDecision("LINK"))
	sl.Log(sampleDecision("LINK"))
	sl.Log(sampleDecision("LINK"))
	sl.Shutdown()

	data, err := os.ReadFile(spillPath)
	if err != nil {
		t.Fatalf("expected spill file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected spill file to contain spilled decisions")
	}
}

func TestScanLogger_TryLogReportsQueueFull(t *testing.T) {
	store := &recordingStore{}
	sl := New(store, Config{QueueCapacity: 1, BatchSize: 100, FlushInterval: time.Hour}, zap.NewNop())

	if !sl.TryLog(sampleDecision("LINK")) {
		t.Fatal("expected first TryLog to succeed with queue capacity 1")
	}
	if sl.TryLog(sampleDecision("LINK")) {
		t.Fatal("expected second TryLog to report the queue full")
	}
}
