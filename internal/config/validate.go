package config

import "fmt"

// Validate checks the document against required fields and numeric
// ranges. Rejects on any unknown-required-field-missing or out-of-range
// value, per §4.9: "Validates the document against a schema; rejects on
// any unknown required field or out-of-range numeric."
func (s *Snapshot) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	if s.GlobalSettings.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("config: global_settings.scan_interval_seconds must be positive")
	}
	if s.GlobalSettings.ExitIntervalSeconds <= 0 {
		return fmt.Errorf("config: global_settings.exit_interval_seconds must be positive")
	}
	if s.GlobalSettings.MaxScanTickSeconds <= 0 {
		return fmt.Errorf("config: global_settings.max_scan_tick_seconds must be positive")
	}
	if len(s.GlobalSettings.Universe) == 0 {
		return fmt.Errorf("config: global_settings.universe must not be empty")
	}

	for _, name := range []StrategyName{StrategyDCA, StrategySwing, StrategyChannel} {
		block, ok := s.Strategies[name]
		if !ok {
			return fmt.Errorf("config: strategies.%s is required", name)
		}
		if err := validateExitsByTier(name, block.ExitsByTier); err != nil {
			return err
		}
	}

	if s.RiskManagement.MaxOpenPositions <= 0 {
		return fmt.Errorf("config: risk_management.max_positions must be positive")
	}
	if s.RiskManagement.MaxPerSymbol <= 0 {
		return fmt.Errorf("config: risk_management.max_per_symbol must be positive")
	}
	if s.RiskManagement.MaxDailyLossPct <= 0 || s.RiskManagement.MaxDailyLossPct > 100 {
		return fmt.Errorf("config: risk_management.max_daily_loss_pct must be in (0, 100]")
	}
	if s.PositionManagement.BaseNotionalUSD <= 0 {
		return fmt.Errorf("config: position_management.base_notional_usd must be positive")
	}
	if s.Fees.Taker < 0 || s.Fees.Taker > 1 {
		return fmt.Errorf("config: fees.taker must be in [0, 1]")
	}
	for tier, rate := range s.SlippageRates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("config: slippage_rates[%s] must be in [0, 1], got %f", tier, rate)
		}
	}
	if len(s.MarketCapTiers) == 0 {
		return fmt.Errorf("config: market_cap_tiers must not be empty")
	}

	return nil
}

func validateExitsByTier(strategy StrategyName, exits map[Tier]ExitParams) error {
	if len(exits) == 0 {
		return fmt.Errorf("config: strategies.%s.exits_by_tier must not be empty", strategy)
	}
	for tier, e := range exits {
		if e.TakeProfit <= 0 {
			return fmt.Errorf("config: strategies.%s.exits_by_tier[%s].take_profit must be positive", strategy, tier)
		}
		if e.StopLoss <= 0 {
			return fmt.Errorf("config: strategies.%s.exits_by_tier[%s].stop_loss must be positive", strategy, tier)
		}
		if e.TrailingStop < 0 {
			return fmt.Errorf("config: strategies.%s.exits_by_tier[%s].trailing_stop must be >= 0", strategy, tier)
		}
		if e.HoldHours <= 0 {
			return fmt.Errorf("config: strategies.%s.exits_by_tier[%s].hold_hours must be positive", strategy, tier)
		}
	}
	return nil
}
