package strategy

import (
	"testing"

	"github.com/nitinkhare/cryptopaper/internal/config"
)

func TestSimpleRules_DCATriggersOnDip(t *testing.T) {
	bars := flatBars(10, 100, 10)
	bars[9].Close = 95
	snap := dcaSnapshot()
	r := NewSimpleDCARule()
	setup, err := r.Detect("BTC", bars, snap, config.TierMidCap, RegimeSideways)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if setup == nil {
		t.Fatal("expected a Setup, got nil")
	}
}

func TestSimpleRules_SwingTriggersOnBreakout(t *testing.T) {
	bars := flatBars(14, 100, 10)
	bars = append(bars, flatBars(1, 106, 10)[0])
	snap := swingSnapshot()
	r := NewSimpleSwingRule()
	setup, err := r.Detect("BTC", bars, snap, config.TierMidCap, RegimeBull)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if setup == nil {
		t.Fatal("expected a Setup, got nil")
	}
}

func TestSimpleRules_ChannelTriggersNearBottom(t *testing.T) {
	bars := boundedChannelBars(20, 95, 103, 95)
	snap := channelSnapshot()
	r := NewSimpleChannelRule()
	setup, err := r.Detect("BTC", bars, snap, config.TierMidCap, RegimeSideways)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if setup == nil {
		t.Fatal("expected a Setup, got nil")
	}
}

func TestSimpleRules_NameReportsConfiguredStrategy(t *testing.T) {
	if NewSimpleDCARule().Name() != config.StrategyDCA {
		t.Error("expected DCA rule to report StrategyDCA")
	}
	if NewSimpleSwingRule().Name() != config.StrategySwing {
		t.Error("expected Swing rule to report StrategySwing")
	}
	if NewSimpleChannelRule().Name() != config.StrategyChannel {
		t.Error("expected Channel rule to report StrategyChannel")
	}
}
