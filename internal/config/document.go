package config

import (
	"encoding/json"
	"fmt"
)

// rawDocument mirrors the on-disk JSON shape in spec §6 directly; it is
// decoded with encoding/json and then resolved into the typed Snapshot
// below. Keeping the two separate lets validation work against strongly
// typed tier maps without fighting generic map[string]interface{} decoding.
type rawDocument struct {
	Version        string          `json:"version"`
	GlobalSettings GlobalSettings  `json:"global_settings"`
	Strategies     rawStrategies   `json:"strategies"`
	MarketCapTiers map[string][]string `json:"market_cap_tiers"`
	Fees           Fees            `json:"fees"`
	SlippageRates  map[string]float64 `json:"slippage_rates"`
	RiskManagement RiskManagement  `json:"risk_management"`
	PositionManagement PositionManagement `json:"position_management"`
	Notifications  Notifications   `json:"notifications"`
}

type rawStrategies struct {
	DCA     rawDCABlock     `json:"DCA"`
	SWING   rawSwingBlock   `json:"SWING"`
	CHANNEL rawChannelBlock `json:"CHANNEL"`
}

type rawDCABlock struct {
	Timeframe                 string                             `json:"timeframe"`
	DetectionThresholdsByTier map[string]DCADetectionThresholds `json:"detection_thresholds_by_tier"`
	ExitsByTier               map[string]ExitParams             `json:"exits_by_tier"`
	MLByTier                  map[string]MLThresholds            `json:"ml_by_tier"`
}

type rawSwingBlock struct {
	Timeframe                 string                               `json:"timeframe"`
	DetectionThresholdsByTier map[string]SwingDetectionThresholds `json:"detection_thresholds_by_tier"`
	ExitsByTier               map[string]ExitParams               `json:"exits_by_tier"`
	MLByTier                  map[string]MLThresholds              `json:"ml_by_tier"`
}

type rawChannelBlock struct {
	Timeframe                 string                                 `json:"timeframe"`
	DetectionThresholdsByTier map[string]ChannelDetectionThresholds `json:"detection_thresholds_by_tier"`
	ExitsByTier               map[string]ExitParams                 `json:"exits_by_tier"`
	MLByTier                  map[string]MLThresholds                `json:"ml_by_tier"`
}

// parseDocument decodes raw JSON bytes into a Snapshot, resolving
// string-keyed tier maps into Tier-keyed maps and deriving SymbolTier.
// It does not validate; callers must call Validate on the result.
func parseDocument(data []byte) (*Snapshot, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}

	snap := &Snapshot{
		Version:            raw.Version,
		GlobalSettings:      raw.GlobalSettings,
		Fees:                raw.Fees,
		RiskManagement:      raw.RiskManagement,
		PositionManagement:  raw.PositionManagement,
		Notifications:       raw.Notifications,
		MarketCapTiers:      make(map[Tier][]string, len(raw.MarketCapTiers)),
		SymbolTier:          make(map[string]Tier),
		SlippageRates:       make(map[Tier]float64, len(raw.SlippageRates)),
		Strategies:          make(map[StrategyName]StrategyBlock, 3),
	}

	for tierStr, symbols := range raw.MarketCapTiers {
		tier := Tier(tierStr)
		snap.MarketCapTiers[tier] = symbols
		for _, sym := range symbols {
			snap.SymbolTier[sym] = tier
		}
	}
	for tierStr, rate := range raw.SlippageRates {
		snap.SlippageRates[Tier(tierStr)] = rate
	}

	snap.Strategies[StrategyDCA] = StrategyBlock{
		DCADetectionByTier: tierKeyed(raw.Strategies.DCA.DetectionThresholdsByTier),
		ExitsByTier:        tierKeyed(raw.Strategies.DCA.ExitsByTier),
		MLByTier:           tierKeyed(raw.Strategies.DCA.MLByTier),
		Timeframe:          raw.Strategies.DCA.Timeframe,
	}
	snap.Strategies[StrategySwing] = StrategyBlock{
		SwingDetectionByTier: tierKeyed(raw.Strategies.SWING.DetectionThresholdsByTier),
		ExitsByTier:          tierKeyed(raw.Strategies.SWING.ExitsByTier),
		MLByTier:             tierKeyed(raw.Strategies.SWING.MLByTier),
		Timeframe:            raw.Strategies.SWING.Timeframe,
	}
	snap.Strategies[StrategyChannel] = StrategyBlock{
		ChannelDetectionByTier: tierKeyed(raw.Strategies.CHANNEL.DetectionThresholdsByTier),
		ExitsByTier:            tierKeyed(raw.Strategies.CHANNEL.ExitsByTier),
		MLByTier:               tierKeyed(raw.Strategies.CHANNEL.MLByTier),
		Timeframe:              raw.Strategies.CHANNEL.Timeframe,
	}

	return snap, nil
}

func tierKeyed[V any](in map[string]V) map[Tier]V {
	out := make(map[Tier]V, len(in))
	for k, v := range in {
		out[Tier(k)] = v
	}
	return out
}
