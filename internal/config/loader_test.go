package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const validDoc = `{
  "version": "1.0.15",
  "global_settings": {
    "scan_interval_seconds": 60,
    "exit_interval_seconds": 30,
    "max_scan_tick_seconds": 50,
    "universe": ["BTC", "ETH", "LINK", "SOL"],
    "primary_timeframe": "15m",
    "volume_average_window": 20
  },
  "strategies": {
    "DCA": {
      "detection_thresholds_by_tier": {
        "mid_cap": {"drop_threshold": -2.25, "lookback_hours": 4, "volume_requirement": 0.85, "rsi_max": 35}
      },
      "exits_by_tier": {
        "mid_cap": {"take_profit": 0.04, "stop_loss": 0.06, "trailing_stop": 0.035, "trailing_activation_pct": 0.02, "hold_hours": 72}
      },
      "ml_by_tier": {
        "mid_cap": {"ml_confidence_threshold": 0.6, "near_miss_threshold": 0.4}
      }
    },
    "SWING": {
      "detection_thresholds_by_tier": {
        "mid_cap": {"breakout_threshold": 1.5, "volume_spike_threshold": 1.8, "rsi_bullish_min": 55, "min_price_change_24h": 0, "max_price_change_24h": 15, "min_trend_strength": 0.5, "breakout_lookback": 20}
      },
      "exits_by_tier": {
        "mid_cap": {"take_profit": 0.06, "stop_loss": 0.04, "trailing_stop": 0.02, "trailing_activation_pct": 0.015, "hold_hours": 48}
      },
      "ml_by_tier": {
        "mid_cap": {"ml_confidence_threshold": 0.6, "near_miss_threshold": 0.4}
      }
    },
    "CHANNEL": {
      "detection_thresholds_by_tier": {
        "mid_cap": {"lookback": 60, "min_touches": 2, "parallel_tolerance": 0.1, "buy_zone": 0.2, "min_channel_strength": 0.6}
      },
      "exits_by_tier": {
        "mid_cap": {"take_profit": 0.03, "stop_loss": 0.02, "trailing_stop": 0.015, "trailing_activation_pct": 0.01, "hold_hours": 36}
      },
      "ml_by_tier": {
        "mid_cap": {"ml_confidence_threshold": 0.55, "near_miss_threshold": 0.35}
      }
    }
  },
  "market_cap_tiers": {"mid_cap": ["LINK", "SOL"], "large_cap": ["BTC", "ETH"]},
  "fees": {"taker": 0.0026},
  "slippage_rates": {"large_cap": 0.0008, "mid_cap": 0.0015},
  "risk_management": {"max_positions": 30, "max_per_symbol": 3, "max_per_strategy": 10, "max_daily_loss_pct": 10.0},
  "position_management": {"base_notional_usd": 100, "reserve_pct": 0.2}
}`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestNewLoader_ValidDocument(t *testing.T) {
	path := writeTempConfig(t, validDoc)
	loader, err := NewLoader(path, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	snap := loader.Current()
	if snap.Version != "1.0.15" {
		t.Errorf("expected version 1.0.15, got %s", snap.Version)
	}
	if snap.TierFor("BTC") != TierLargeCap {
		t.Errorf("expected BTC to resolve to large_cap, got %s", snap.TierFor("BTC"))
	}
	if snap.TierFor("UNKNOWN") != TierSmallCap {
		t.Errorf("expected unknown symbol to default to small_cap, got %s", snap.TierFor("UNKNOWN"))
	}
}

func TestNewLoader_InvalidDocumentFailsStartup(t *testing.T) {
	path := writeTempConfig(t, `{"version": ""}`)
	if _, err := NewLoader(path, nil, zap.NewNop()); err == nil {
		t.Fatal("expected NewLoader to fail on invalid document")
	}
}

type recordingAuditWriter struct {
	entries []AuditEntry
}

func (r *recordingAuditWriter) SaveConfigAudit(entry AuditEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func TestLoader_ReloadKeepsPriorSnapshotOnValidationFailure(t *testing.T) {
	path := writeTempConfig(t, validDoc)
	audit := &recordingAuditWriter{}
	loader, err := NewLoader(path, audit, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"version": "bad"}`), 0o600); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("expected Reload to fail on invalid document")
	}

	if loader.Current().Version != "1.0.15" {
		t.Errorf("expected prior snapshot retained, got version %s", loader.Current().Version)
	}
}

func TestLoader_ReloadAppliesNewVersionAndAudits(t *testing.T) {
	path := writeTempConfig(t, validDoc)
	audit := &recordingAuditWriter{}
	loader, err := NewLoader(path, audit, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	var gotOld, gotNew *Snapshot
	loader.OnChange(func(old, new *Snapshot) { gotOld, gotNew = old, new })

	bumped := []byte(validDocWithVersion("1.0.16"))
	if err := os.WriteFile(path, bumped, 0o600); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if loader.Current().Version != "1.0.16" {
		t.Errorf("expected new version 1.0.16, got %s", loader.Current().Version)
	}
	if gotNew == nil || gotNew.Version != "1.0.16" {
		t.Errorf("expected OnChange callback to see new version")
	}
	if gotOld == nil || gotOld.Version != "1.0.15" {
		t.Errorf("expected OnChange callback to see old version")
	}
	if len(audit.entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(audit.entries))
	}
}

func validDocWithVersion(v string) string {
	return `{"version": "` + v + `",` + validDoc[len("{\n  \"version\": \"1.0.15\","):]
}
