package trader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

const testConfigDoc = `{
  "version": "1",
  "global_settings": {"scan_interval_seconds": 60, "exit_interval_seconds": 30, "max_scan_tick_seconds": 50, "universe": ["LINK"], "primary_timeframe": "15m", "volume_average_window": 20},
  "strategies": {
    "DCA": {
      "detection_thresholds_by_tier": {"mid_cap": {"drop_threshold": -2, "lookback_hours": 4, "volume_requirement": 1, "rsi_max": 40}},
      "exits_by_tier": {"mid_cap": {"take_profit": 0.04, "stop_loss": 0.06, "trailing_stop": 0.035, "trailing_activation_pct": 0.02, "hold_hours": 72}},
      "ml_by_tier": {"mid_cap": {"ml_confidence_threshold": 0.6, "near_miss_threshold": 0.4}}
    },
    "SWING": {"detection_thresholds_by_tier": {}, "exits_by_tier": {"mid_cap": {"take_profit": 0.06, "stop_loss": 0.04, "trailing_stop": 0.03, "trailing_activation_pct": 0.02, "hold_hours": 48}}, "ml_by_tier": {}},
    "CHANNEL": {"detection_thresholds_by_tier": {}, "exits_by_tier": {"mid_cap": {"take_profit": 0.05, "stop_loss": 0.04, "trailing_stop": 0.03, "trailing_activation_pct": 0.02, "hold_hours": 48}}, "ml_by_tier": {}}
  },
  "market_cap_tiers": {"mid_cap": ["LINK"]},
  "fees": {"taker": 0.0026},
  "slippage_rates": {"mid_cap": 0.0015},
  "risk_management": {"max_positions": 30, "max_per_symbol": 3, "max_per_strategy": 10, "max_daily_loss_pct": 10.0},
  "position_management": {"base_notional_usd": 100, "reserve_pct": 0.2}
}`

func newTestLoader(t *testing.T) *config.Loader {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(testConfigDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loader, err := config.NewLoader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return loader
}

type fakeMarketStore struct {
	latest *market.OhlcBar
}

func (f *fakeMarketStore) QueryBase(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	return nil, nil
}
func (f *fakeMarketStore) QueryTodayView(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	return nil, nil
}
func (f *fakeMarketStore) QueryRecentView(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	return nil, nil
}
func (f *fakeMarketStore) LatestBar(ctx context.Context, symbol string, tf market.Timeframe) (*market.OhlcBar, error) {
	return f.latest, nil
}

type fakeTradeStore struct {
	opened []Position
	closed []Position
}

func (f *fakeTradeStore) LoadOpenPositions(ctx context.Context) ([]Position, error) { return nil, nil }
func (f *fakeTradeStore) InsertOpen(ctx context.Context, pos Position) error {
	f.opened = append(f.opened, pos)
	return nil
}
func (f *fakeTradeStore) InsertClose(ctx context.Context, pos Position, exit ExitRecord) error {
	f.closed = append(f.closed, pos)
	return nil
}

func newTestTrader(t *testing.T, latest float64) (*Trader, *fakeTradeStore) {
	t.Helper()
	loader := newTestLoader(t)
	marketStore := &fakeMarketStore{latest: &market.OhlcBar{Symbol: "LINK", Timeframe: market.Timeframe1m, Close: latest, Timestamp: time.Now()}}
	fetcher := market.NewHybridDataFetcher(marketStore, nil, market.FetcherConfig{}, zap.NewNop())
	store := &fakeTradeStore{}
	tr := NewTrader(store, fetcher, loader, 10000, zap.NewNop())
	return tr, store
}

func TestTrader_Open_PersistsAndComputesExitParams(t *testing.T) {
	tr, store := newTestTrader(t, 19.55)
	pos, reason, err := tr.Open(context.Background(), OpenRequest{
		Symbol:           "LINK",
		Strategy:         config.StrategyDCA,
		ReferencePrice:   19.55,
		ProposedNotional: 100,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reason != "" {
		t.Fatalf("expected acceptance, got reason %s", reason)
	}
	if pos == nil {
		t.Fatal("expected a Position")
	}
	if len(store.opened) != 1 {
		t.Fatalf("expected one persisted open row, got %d", len(store.opened))
	}
	if !pos.StopLoss.LessThan(pos.EntryPrice) || !pos.EntryPrice.LessThan(pos.TakeProfit) {
		t.Errorf("expected stopLoss < entryPrice < takeProfit, got sl=%s entry=%s tp=%s",
			pos.StopLoss, pos.EntryPrice, pos.TakeProfit)
	}
	if !pos.HighWatermark.Equal(pos.EntryPrice) {
		t.Errorf("expected initial high watermark == entry price")
	}
}

func TestTrader_Open_RejectsOverSymbolLimit(t *testing.T) {
	tr, _ := newTestTrader(t, 19.55)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, reason, err := tr.Open(ctx, OpenRequest{Symbol: "LINK", Strategy: config.StrategyDCA, ReferencePrice: 19.55, ProposedNotional: 100}); err != nil || reason != "" {
			t.Fatalf("expected acceptance on iteration %d, got reason=%s err=%v", i, reason, err)
		}
	}
	_, reason, err := tr.Open(ctx, OpenRequest{Symbol: "LINK", Strategy: config.StrategyDCA, ReferencePrice: 19.55, ProposedNotional: 100})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reason == "" {
		t.Fatal("expected rejection after hitting max_per_symbol")
	}
}

// barAt builds a single-price OHLC bar, for tests that don't care about
// intrabar range.
func barAt(price float64) market.OhlcBar {
	return market.OhlcBar{Open: price, High: price, Low: price, Close: price}
}

func TestEvaluateExit_TakeProfitWins(t *testing.T) {
	pos := &Position{
		EntryPrice:            decimal.NewFromFloat(19.5793),
		StopLoss:              decimal.NewFromFloat(18.3845),
		TakeProfit:            decimal.NewFromFloat(20.3625),
		TrailingStopPct:       0.035,
		TrailingActivationPct: 0.02,
		HighWatermark:         decimal.NewFromFloat(19.5793),
	}
	reason, _, closes := evaluateExit(pos, barAt(20.40), time.Now())
	if !closes || reason != ExitTakeProfit {
		t.Errorf("expected take_profit exit, got reason=%s closes=%v", reason, closes)
	}
}

// TestEvaluateExit_SimultaneousTPAndSL reproduces spec §8's boundary
// behavior: a bar whose range spans both take-profit and stop-loss
// resolves by the bar's open relative to the TP/SL midpoint.
func TestEvaluateExit_SimultaneousTPAndSL(t *testing.T) {
	pos := &Position{
		EntryPrice: decimal.NewFromFloat(20),
		StopLoss:   decimal.NewFromFloat(19),
		TakeProfit: decimal.NewFromFloat(21),
	}
	// midpoint is 20; open above it should resolve to take_profit.
	bar := market.OhlcBar{Open: 20.5, High: 21.2, Low: 18.8, Close: 20.9}
	reason, trigger, closes := evaluateExit(pos, bar, time.Now())
	if !closes || reason != ExitTakeProfit {
		t.Errorf("expected take_profit exit, got reason=%s closes=%v", reason, closes)
	}
	if !trigger.Equal(pos.TakeProfit) {
		t.Errorf("expected trigger price == take profit level, got %s", trigger)
	}

	// open below the midpoint should resolve to stop_loss instead.
	bar2 := market.OhlcBar{Open: 19.5, High: 21.2, Low: 18.8, Close: 19.1}
	reason2, trigger2, closes2 := evaluateExit(pos, bar2, time.Now())
	if !closes2 || reason2 != ExitStopLoss {
		t.Errorf("expected stop_loss exit, got reason=%s closes=%v", reason2, closes2)
	}
	if !trigger2.Equal(pos.StopLoss) {
		t.Errorf("expected trigger price == stop loss level, got %s", trigger2)
	}
}

// TestEvaluateExit_TrailingStopOnlyAfterProfit reproduces the spec's
// worked trailing-stop scenario: entry 19.5793, watermark rises to
// 20.20 (in profit), price retraces through the trailing band.
func TestEvaluateExit_TrailingStopOnlyAfterProfit(t *testing.T) {
	pos := &Position{
		EntryPrice:            decimal.NewFromFloat(19.5793),
		StopLoss:              decimal.NewFromFloat(18.3845),
		TakeProfit:            decimal.NewFromFloat(20.3625),
		TrailingStopPct:       0.035,
		TrailingActivationPct: 0.02,
		HighWatermark:         decimal.NewFromFloat(20.20),
	}
	reason, _, closes := evaluateExit(pos, barAt(19.493), time.Now())
	if !closes || reason != ExitTrailing {
		t.Errorf("expected trailing_stop exit, got reason=%s closes=%v", reason, closes)
	}
}

func TestEvaluateExit_NeverProfitableFallsToStopLoss(t *testing.T) {
	// Price never cleared the trailing-activation threshold above entry,
	// so even though it dips through what would be a trailing band at the
	// (unreached) high watermark, the exit must be stop_loss, not
	// trailing_stop, per the critical policy in spec §4.7.
	pos := &Position{
		EntryPrice:            decimal.NewFromFloat(20),
		StopLoss:              decimal.NewFromFloat(18.8),
		TakeProfit:            decimal.NewFromFloat(20.8),
		TrailingStopPct:       0.035,
		TrailingActivationPct: 0.02,
		HighWatermark:         decimal.NewFromFloat(20), // never rose above entry
	}
	reason, _, closes := evaluateExit(pos, barAt(18.5), time.Now())
	if !closes || reason != ExitStopLoss {
		t.Errorf("expected stop_loss exit, got reason=%s closes=%v", reason, closes)
	}
}

func TestEvaluateExit_Timeout(t *testing.T) {
	pos := &Position{
		EntryPrice:    decimal.NewFromFloat(20),
		StopLoss:      decimal.NewFromFloat(18),
		TakeProfit:    decimal.NewFromFloat(22),
		HighWatermark: decimal.NewFromFloat(20),
		TimeoutAt:     time.Now().Add(-time.Minute),
	}
	reason, _, closes := evaluateExit(pos, barAt(20.1), time.Now())
	if !closes || reason != ExitTimeout {
		t.Errorf("expected timeout exit, got reason=%s closes=%v", reason, closes)
	}
}

func TestEvaluateExit_NoTriggerHolds(t *testing.T) {
	pos := &Position{
		EntryPrice:    decimal.NewFromFloat(20),
		StopLoss:      decimal.NewFromFloat(18),
		TakeProfit:    decimal.NewFromFloat(22),
		HighWatermark: decimal.NewFromFloat(20),
		TimeoutAt:     time.Now().Add(time.Hour),
	}
	_, _, closes := evaluateExit(pos, barAt(20.1), time.Now())
	if closes {
		t.Error("expected position to remain open")
	}
}
