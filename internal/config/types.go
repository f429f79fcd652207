// Package config loads, validates, and hot-reloads the trading
// configuration: a single versioned JSON document encoding per-strategy
// detection thresholds, per-tier exit parameters, risk limits, fee and
// slippage rates, and tier membership (ConfigLoader, C9).
package config

import "time"

// Tier is a market-cap category. A symbol's tier determines thresholds,
// position sizing, fees, and slippage.
type Tier string

const (
	TierLargeCap Tier = "large_cap"
	TierMidCap   Tier = "mid_cap"
	TierSmallCap Tier = "small_cap"
	TierMemecoin Tier = "memecoin"
)

// StrategyName identifies one of the three detectors.
type StrategyName string

const (
	StrategyDCA     StrategyName = "DCA"
	StrategySwing   StrategyName = "SWING"
	StrategyChannel StrategyName = "CHANNEL"
)

// DCADetectionThresholds are the per-tier parameters for the DCA detector.
type DCADetectionThresholds struct {
	DropThreshold     float64  `json:"drop_threshold"` // negative percent
	LookbackHours     int      `json:"lookback_hours"`
	VolumeRequirement float64  `json:"volume_requirement"` // multiplier of average
	RSIMax            float64  `json:"rsi_max"`
	RegimeBlocklist   []string `json:"regime_blocklist"`
}

// SwingDetectionThresholds are the per-tier parameters for the Swing detector.
type SwingDetectionThresholds struct {
	BreakoutThreshold    float64 `json:"breakout_threshold"` // percent above resistance
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"`
	RSIBullishMin        float64 `json:"rsi_bullish_min"`
	MinPriceChange24h    float64 `json:"min_price_change_24h"`
	MaxPriceChange24h    float64 `json:"max_price_change_24h"`
	MinTrendStrength     float64 `json:"min_trend_strength"`
	BreakoutLookback     int     `json:"breakout_lookback"`
}

// ChannelDetectionThresholds are the per-tier parameters for the Channel detector.
type ChannelDetectionThresholds struct {
	Lookback           int     `json:"lookback"`
	MinTouches         int     `json:"min_touches"`
	ParallelTolerance  float64 `json:"parallel_tolerance"`
	BuyZone            float64 `json:"buy_zone"` // fraction of channel height, from bottom
	MinChannelStrength float64 `json:"min_channel_strength"`
}

// ExitParams are the per-tier exit parameters captured at position open.
type ExitParams struct {
	TakeProfit            float64 `json:"take_profit"`
	StopLoss              float64 `json:"stop_loss"`
	TrailingStop          float64 `json:"trailing_stop"`
	TrailingActivationPct float64 `json:"trailing_activation_pct"`
	HoldHours             float64 `json:"hold_hours"`
}

// MLThresholds are the per-tier confidence cutoffs the StrategyManager
// applies to an MLFilter result.
type MLThresholds struct {
	MLConfidenceThreshold float64 `json:"ml_confidence_threshold"`
	NearMissThreshold     float64 `json:"near_miss_threshold"`
}

// RiskManagement holds the global hard guardrails enforced by PaperTrader
// through the risk guards. These cannot be overridden by strategy or ML output.
type RiskManagement struct {
	MaxOpenPositions int     `json:"max_positions"`
	MaxPerSymbol     int     `json:"max_per_symbol"`
	MaxPerStrategy   int     `json:"max_per_strategy"`
	MaxDailyLossPct  float64 `json:"max_daily_loss_pct"`
}

// PositionManagement holds sizing parameters.
type PositionManagement struct {
	BaseNotionalUSD float64 `json:"base_notional_usd"`
	ReservePct      float64 `json:"reserve_pct"`
}

// Fees holds trading fee rates.
type Fees struct {
	Taker float64 `json:"taker"`
}

// Notifications configures outbound alerting; formatting itself is an
// external collaborator's concern, the core only decides when to notify.
type Notifications struct {
	Enabled      bool     `json:"enabled"`
	WebhookURL   string   `json:"webhook_url"`
	NotifyEvents []string `json:"notify_events"`
}

// GlobalSettings holds scan/exit cadence and universe-wide knobs.
type GlobalSettings struct {
	ScanIntervalSeconds int      `json:"scan_interval_seconds"`
	ExitIntervalSeconds int      `json:"exit_interval_seconds"`
	MaxScanTickSeconds  int      `json:"max_scan_tick_seconds"`
	Universe            []string `json:"universe"`
	PrimaryTimeframe    string   `json:"primary_timeframe"`
	VolumeAverageWindow int      `json:"volume_average_window"`
}

// StrategyBlock is the fully resolved, tier-keyed per-strategy config.
// Only one of the DetectionByTier maps is populated, matching the
// strategy this block belongs to.
type StrategyBlock struct {
	DCADetectionByTier     map[Tier]DCADetectionThresholds
	SwingDetectionByTier   map[Tier]SwingDetectionThresholds
	ChannelDetectionByTier map[Tier]ChannelDetectionThresholds
	ExitsByTier            map[Tier]ExitParams
	MLByTier               map[Tier]MLThresholds

	// Timeframe is this strategy's own OHLC candle interval ("1m", "15m",
	// "1h", "1d"). Falls back to GlobalSettings.PrimaryTimeframe when
	// empty; an unrecognized value resolves to 15m — strategies need not
	// all scan the same candle interval.
	Timeframe string
}

// Snapshot is the full, validated, immutable configuration document in
// effect at a point in time. Readers see a consistent view; a new
// Snapshot entirely replaces the old one on successful reload.
type Snapshot struct {
	Version            string
	GlobalSettings      GlobalSettings
	Strategies          map[StrategyName]StrategyBlock
	MarketCapTiers      map[Tier][]string
	SymbolTier          map[string]Tier // derived, inverse of MarketCapTiers
	Fees                Fees
	SlippageRates       map[Tier]float64
	RiskManagement      RiskManagement
	PositionManagement  PositionManagement
	Notifications       Notifications
	LoadedAt            time.Time
}

// TierFor resolves the tier for a symbol, defaulting to TierSmallCap if
// the symbol is not explicitly classified.
func (s *Snapshot) TierFor(symbol string) Tier {
	if t, ok := s.SymbolTier[symbol]; ok {
		return t
	}
	return TierSmallCap
}

// AuditEntry is one row appended to config_history on every accepted
// replacement.
type AuditEntry struct {
	Timestamp      time.Time
	Version        string
	SectionChanged string
	OldValue       string
	NewValue       string
	ChangedBy      string
}
