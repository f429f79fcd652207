// Package scanner implements the StrategyManager (C5): the per-tick
// state machine that drives every (symbol, strategy) cell through
// fetch → features → detect → filter → emit, then reconciles TAKE
// decisions against PaperTrader's risk guards before handing everything
// to ScanLogger.
package scanner

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/market"
	"github.com/nitinkhare/cryptopaper/internal/metrics"
	"github.com/nitinkhare/cryptopaper/internal/mlfilter"
	"github.com/nitinkhare/cryptopaper/internal/scanlog"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
	"github.com/nitinkhare/cryptopaper/internal/trader"
)

// cellTimeout bounds how long a single (symbol, strategy) cell may take,
// per spec §5's per-scan-cell timeout.
const cellTimeout = 5 * time.Second

// scanLookbackHours is the OHLC window fetched for every cell and for
// regime classification. It covers features.MinBars at 1m, 15m and 1h;
// at 1d it yields only 14 bars, fewer than MinBars.
const scanLookbackHours = 24 * 14

// Manager orchestrates one scan tick across the full symbol universe.
type Manager struct {
	fetcher         *market.HybridDataFetcher
	configLoader    *config.Loader
	detectors       []strategy.Detector // fixed order: DCA, Swing, Channel
	simpleDetectors map[config.StrategyName]strategy.Detector
	filters         *mlfilter.Registry
	trader          *trader.Trader
	scanLog         *scanlog.ScanLogger
	logger          *zap.Logger

	workers         int
	referenceSymbol string

	strategyRank map[config.StrategyName]int
	metrics      *metrics.Collectors
}

// SetMetrics attaches a Prometheus collectors bundle. Optional; nil-safe
// if never called.
func (m *Manager) SetMetrics(c *metrics.Collectors) {
	m.metrics = c
}

// New constructs a Manager. workers <= 0 defaults to runtime.NumCPU().
// referenceSymbol is the symbol whose feature vector drives market
// regime classification (typically the largest-cap asset in the universe).
func New(
	fetcher *market.HybridDataFetcher,
	configLoader *config.Loader,
	detectors []strategy.Detector,
	simpleDetectors map[config.StrategyName]strategy.Detector,
	filters *mlfilter.Registry,
	tr *trader.Trader,
	sl *scanlog.ScanLogger,
	workers int,
	referenceSymbol string,
	logger *zap.Logger,
) *Manager {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	rank := make(map[config.StrategyName]int, len(detectors))
	for i, d := range detectors {
		rank[d.Name()] = i
	}
	return &Manager{
		fetcher:         fetcher,
		configLoader:    configLoader,
		detectors:       detectors,
		simpleDetectors: simpleDetectors,
		filters:         filters,
		trader:          tr,
		scanLog:         sl,
		logger:          logger,
		workers:         workers,
		referenceSymbol: referenceSymbol,
		strategyRank:    rank,
	}
}

type cellJob struct {
	idx    int
	symbol string
	det    strategy.Detector
}

// cellOutcome pairs the emitted Decision with the reference price its
// Setup was detected at — needed to open a position, but not itself
// part of the persisted Decision record.
type cellOutcome struct {
	decision       strategy.Decision
	referencePrice float64
}

// RunTick executes one full scan cycle: fetch/feature/detect/filter for
// every (symbol, strategy) cell, resolve TAKE collisions against the
// position-limit guards, and hand every Decision to ScanLogger.
func (m *Manager) RunTick(ctx context.Context) error {
	snapshot := m.configLoader.Current()
	deadline := time.Duration(snapshot.GlobalSettings.MaxScanTickSeconds) * time.Second
	if deadline <= 0 {
		deadline = 50 * time.Second
	}
	tickCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	scanID := strategy.NewScanID()
	regime, btcPrice := m.resolveRegime(tickCtx, snapshot)

	cells := m.buildCells(snapshot)
	results := make([]cellOutcome, len(cells))

	jobs := make(chan cellJob, len(cells))
	for i, c := range cells {
		jobs <- cellJob{idx: i, symbol: c.symbol, det: c.det}
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = m.processCell(tickCtx, scanID, snapshot, regime, btcPrice, j.symbol, j.det)
			}
		}()
	}
	wg.Wait()

	m.resolveTakeCollisions(ctx, results)
	m.emit(results)
	if m.metrics != nil {
		m.metrics.ScanTicksTotal.Inc()
	}
	return nil
}

type cellSpec struct {
	symbol string
	det    strategy.Detector
}

// buildCells enumerates every (symbol, strategy) cell in deterministic
// order: configured universe order outer, fixed DCA/Swing/Channel order
// inner.
func (m *Manager) buildCells(snapshot *config.Snapshot) []cellSpec {
	cells := make([]cellSpec, 0, len(snapshot.GlobalSettings.Universe)*len(m.detectors))
	for _, symbol := range snapshot.GlobalSettings.Universe {
		for _, det := range m.detectors {
			cells = append(cells, cellSpec{symbol: symbol, det: det})
		}
	}
	return cells
}

// processCell runs one cell through FETCH_DATA → COMPUTE_FEATURES →
// DETECT → FILTER → classify, always returning exactly one Decision —
// the invariant spec §4.5 requires even on failure.
func (m *Manager) processCell(
	ctx context.Context,
	scanID uuid.UUID,
	snapshot *config.Snapshot,
	regime strategy.MarketRegime,
	btcPrice float64,
	symbol string,
	det strategy.Detector,
) cellOutcome {
	base := strategy.Decision{
		ScanID:       scanID,
		Timestamp:    time.Now().UTC(),
		Symbol:       symbol,
		Strategy:     det.Name(),
		MarketRegime: regime,
		BTCPrice:     btcPrice,
	}

	if ctx.Err() != nil {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonTickCancelled
		return cellOutcome{decision: base}
	}

	cellCtx, cancel := context.WithTimeout(ctx, cellTimeout)
	defer cancel()

	tier := snapshot.TierFor(symbol)
	strategyBlock := snapshot.Strategies[det.Name()]

	bars, err := m.fetcher.GetRecent(cellCtx, symbol, m.timeframeFor(snapshot, strategyBlock.Timeframe), scanLookbackHours)
	if err != nil {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonDataUnavailable
		return cellOutcome{decision: base}
	}

	feats, err := features.Calculate(bars, snapshot.GlobalSettings.VolumeAverageWindow)
	if err != nil {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonInsufficientData
		return cellOutcome{decision: base}
	}
	base.Features = feats

	setup, err := det.Detect(symbol, bars, snapshot, tier, regime)
	if err != nil {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonDataUnavailable
		return cellOutcome{decision: base}
	}

	filter := m.filters.For(det.Name())
	if setup == nil {
		if _, passThrough := filter.(mlfilter.PassThrough); passThrough {
			if simple, ok := m.simpleDetectors[det.Name()]; ok {
				setup, _ = simple.Detect(symbol, bars, snapshot, tier, regime)
			}
		}
	}
	if setup == nil {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonNoSetup
		return cellOutcome{decision: base}
	}
	base.SetupData = setup.SetupData

	exits, ok := strategyBlock.ExitsByTier[tier]
	if !ok {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonInsufficientData
		return cellOutcome{decision: base}
	}
	mlThresholds, ok := strategyBlock.MLByTier[tier]
	if !ok {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonInsufficientData
		return cellOutcome{decision: base}
	}

	result, err := filter.Score(setup, feats, exits)
	if err != nil {
		base.Outcome = strategy.DecisionSkip
		base.Reason = strategy.ReasonInsufficientData
		return cellOutcome{decision: base}
	}

	confidence := result.Confidence
	base.MLConfidence = &confidence
	base.MLPredictions = map[string]float64{
		"predicted_take_profit":    result.PredictedTakeProfit,
		"predicted_stop_loss":      result.PredictedStopLoss,
		"predicted_hold_hours":     result.PredictedHoldHours,
		"position_size_multiplier": result.PositionSizeMultiplier,
	}
	base.ThresholdsUsed = string(tier)

	outcome, reason := mlfilter.Classify(confidence, mlThresholds)
	base.Outcome = outcome
	base.Reason = reason

	if outcome == strategy.DecisionTake {
		size := snapshot.PositionManagement.BaseNotionalUSD * result.PositionSizeMultiplier
		base.ProposedPositionSize = &size
	}

	return cellOutcome{decision: base, referencePrice: setup.ReferencePrice}
}

// resolveTakeCollisions orders every TAKE decision by descending ML
// confidence (ties broken by fixed strategy order) and attempts to open
// each in that order. Trader.Open re-evaluates the position-limit guards
// against live counts on every call, so whichever TAKE is tried first
// naturally wins any collision and the rest fail the now-updated guard —
// exactly the tie-break rule spec §4.5 names, with no extra bookkeeping.
func (m *Manager) resolveTakeCollisions(ctx context.Context, results []cellOutcome) {
	type indexed struct {
		idx        int
		confidence float64
		rank       int
	}
	var takes []indexed
	for i, r := range results {
		if r.decision.Outcome == strategy.DecisionTake {
			conf := 1.0
			if r.decision.MLConfidence != nil {
				conf = *r.decision.MLConfidence
			}
			takes = append(takes, indexed{idx: i, confidence: conf, rank: m.strategyRank[r.decision.Strategy]})
		}
	}
	sort.SliceStable(takes, func(a, b int) bool {
		if takes[a].confidence != takes[b].confidence {
			return takes[a].confidence > takes[b].confidence
		}
		return takes[a].rank < takes[b].rank
	})

	for _, t := range takes {
		d := &results[t.idx].decision
		ref := results[t.idx].referencePrice
		size := 0.0
		if d.ProposedPositionSize != nil {
			size = *d.ProposedPositionSize
		}
		pos, reason, err := m.trader.Open(ctx, trader.OpenRequest{
			Symbol:           d.Symbol,
			Strategy:         d.Strategy,
			ReferencePrice:   ref,
			ProposedNotional: size,
			ScanID:           d.ScanID,
		})
		if err != nil {
			m.logger.Error("scanner: failed to open position for TAKE decision",
				zap.String("symbol", d.Symbol), zap.String("strategy", string(d.Strategy)), zap.Error(err))
			continue
		}
		if reason != strategy.ReasonNone {
			d.Outcome = strategy.DecisionNearMiss
			d.Reason = reason
			continue
		}
		id := pos.TradeGroupID
		d.TradeID = &id
	}
}

// emit hands every Decision to ScanLogger. TAKE decisions use the
// blocking Log so they are never silently dropped under backpressure;
// NEAR_MISS and SKIP use the non-blocking TryLog, which may drop once
// the queue saturates — preserving TAKE over the rest per spec §4.5.
func (m *Manager) emit(results []cellOutcome) {
	for _, r := range results {
		if m.metrics != nil {
			m.metrics.DecisionsTotal.WithLabelValues(string(r.decision.Outcome)).Inc()
		}
		if r.decision.Outcome == strategy.DecisionTake {
			m.scanLog.Log(r.decision)
			continue
		}
		m.scanLog.TryLog(r.decision)
	}
}
