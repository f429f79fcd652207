package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/broker"
	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
	"github.com/nitinkhare/cryptopaper/internal/metrics"
	"github.com/nitinkhare/cryptopaper/internal/risk"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

// OpenRequest is everything Trader needs to evaluate and, if accepted,
// open a position from a TAKE decision.
type OpenRequest struct {
	Symbol           string
	Strategy         config.StrategyName
	ReferencePrice   float64
	ProposedNotional float64
	ScanID           uuid.UUID
}

// Trader owns the lifecycle of every simulated Position: open, mark,
// exit, close. The position table is a single in-memory map guarded by
// one mutex, held only for map reads/writes, never across I/O.
type Trader struct {
	mu        sync.Mutex
	positions map[uuid.UUID]*Position
	balance   decimal.Decimal
	dailyPnL  decimal.Decimal
	dailyDay  time.Time

	store         Store
	fetcher       *market.HybridDataFetcher
	sim           *broker.Simulator
	configLoader  *config.Loader
	logger        *zap.Logger
	now           func() time.Time
	metrics       *metrics.Collectors
}

// SetMetrics attaches a Prometheus collectors bundle. Optional; nil-safe
// if never called.
func (t *Trader) SetMetrics(c *metrics.Collectors) {
	t.metrics = c
}

// NewTrader constructs a Trader with a starting notional balance.
func NewTrader(store Store, fetcher *market.HybridDataFetcher, configLoader *config.Loader, startingBalance float64, logger *zap.Logger) *Trader {
	return &Trader{
		positions:    make(map[uuid.UUID]*Position),
		balance:      decimal.NewFromFloat(startingBalance),
		store:        store,
		fetcher:      fetcher,
		sim:          broker.NewSimulator(),
		configLoader: configLoader,
		logger:       logger,
		now:          time.Now,
	}
}

// Recover loads every unclosed position from the store and resumes
// managing them, debiting the in-memory balance for their notional.
// Called once at startup, before the scan/exit loops start.
func (t *Trader) Recover(ctx context.Context) error {
	open, err := t.store.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("trader: recover open positions: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range open {
		pos := open[i]
		t.positions[pos.TradeGroupID] = &pos
		t.balance = t.balance.Sub(pos.Notional)
	}
	t.logger.Info("trader: recovered open positions", zap.Int("count", len(open)))
	if t.metrics != nil {
		t.metrics.OpenPositions.Set(float64(len(open)))
	}
	return nil
}

// OpenPositions returns a snapshot copy of every currently open position.
func (t *Trader) OpenPositions() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

func (t *Trader) countsLocked(symbol string, strat config.StrategyName) risk.Counts {
	var openForSymbol, openForStrategy int
	for _, p := range t.positions {
		if p.Status != StatusOpen {
			continue
		}
		if p.Symbol == symbol {
			openForSymbol++
		}
		if p.Strategy == strat {
			openForStrategy++
		}
	}
	t.maybeRollDailyLocked()
	dailyPct := 0.0
	if t.balance.Add(t.dailyPnL).IsPositive() {
		base := t.balance.Sub(t.dailyPnL)
		if base.IsPositive() {
			dailyPct, _ = t.dailyPnL.Div(base).Mul(decimal.NewFromInt(100)).Float64()
		}
	}
	available, _ := t.balance.Float64()
	return risk.Counts{
		OpenPositions:          t.openPositionCountLocked(),
		OpenPositionsForSymbol: openForSymbol,
		PositionsForStrategy:   openForStrategy,
		DailyLossPct:           dailyPct,
		AvailableBalance:       available,
	}
}

func (t *Trader) openPositionCountLocked() int {
	n := 0
	for _, p := range t.positions {
		if p.Status == StatusOpen {
			n++
		}
	}
	return n
}

func (t *Trader) maybeRollDailyLocked() {
	today := t.now().Truncate(24 * time.Hour)
	if !t.dailyDay.Equal(today) {
		t.dailyDay = today
		t.dailyPnL = decimal.Zero
	}
}

// Open evaluates risk guards against a TAKE decision and, if they all
// pass, simulates the fill and persists the new position. A non-nil
// Reason other than ReasonNone means the guard rejected the proposal;
// the caller is responsible for rewriting the Decision to NEAR_MISS.
func (t *Trader) Open(ctx context.Context, req OpenRequest) (*Position, strategy.Reason, error) {
	snapshot := t.configLoader.Current()
	tier := snapshot.TierFor(req.Symbol)

	t.mu.Lock()
	counts := t.countsLocked(req.Symbol, req.Strategy)
	t.mu.Unlock()

	reason := risk.Evaluate(counts, risk.Proposal{
		Symbol:           req.Symbol,
		Strategy:         req.Strategy,
		ProposedNotional: req.ProposedNotional,
	}, snapshot.RiskManagement)
	if reason != strategy.ReasonNone {
		return nil, reason, nil
	}

	exits, ok := snapshot.Strategies[req.Strategy].ExitsByTier[tier]
	if !ok {
		return nil, strategy.ReasonInsufficientData, nil
	}

	fill := t.sim.Buy(req.ReferencePrice, req.ProposedNotional, tier, snapshot)
	now := t.now()

	pos := &Position{
		TradeGroupID:          uuid.New(),
		Symbol:                req.Symbol,
		Strategy:              req.Strategy,
		Tier:                  tier,
		EntryPrice:            fill.Price,
		Amount:                fill.Amount,
		Notional:              decimal.NewFromFloat(req.ProposedNotional),
		OpenedAt:              now,
		StopLoss:              fill.Price.Mul(decimal.NewFromFloat(1 - exits.StopLoss)),
		TakeProfit:            fill.Price.Mul(decimal.NewFromFloat(1 + exits.TakeProfit)),
		TrailingStopPct:       exits.TrailingStop,
		TrailingActivationPct: exits.TrailingActivationPct,
		HighWatermark:         fill.Price,
		TimeoutAt:             now.Add(time.Duration(exits.HoldHours * float64(time.Hour))),
		Status:                StatusOpen,
		ScanID:                req.ScanID,
	}

	if err := t.store.InsertOpen(ctx, *pos); err != nil {
		return nil, strategy.ReasonNone, fmt.Errorf("trader: persist open: %w", err)
	}

	t.mu.Lock()
	t.positions[pos.TradeGroupID] = pos
	t.balance = t.balance.Sub(pos.Notional)
	count := t.openPositionCountLocked()
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.OpenPositions.Set(float64(count))
	}

	return pos, strategy.ReasonNone, nil
}

// CloseAllManual closes every open position at its latest 1m price with
// ExitManual, for the `reset-positions` administrative CLI subcommand.
// Positions whose latest price cannot be fetched are skipped and logged;
// the caller may retry.
func (t *Trader) CloseAllManual(ctx context.Context) (closed, failed int) {
	t.mu.Lock()
	ids := make([]uuid.UUID, 0, len(t.positions))
	for id, p := range t.positions {
		if p.Status == StatusOpen {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.mu.Lock()
		pos, ok := t.positions[id]
		t.mu.Unlock()
		if !ok || pos.Status != StatusOpen {
			continue
		}

		bar, err := t.fetcher.LatestBar(ctx, pos.Symbol, market.Timeframe1m)
		if err != nil {
			t.logger.Error("trader: reset-positions could not price position, leaving open",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			failed++
			continue
		}
		t.closePosition(ctx, pos, decimal.NewFromFloat(bar.Close), ExitManual)
		closed++
	}
	return closed, failed
}
