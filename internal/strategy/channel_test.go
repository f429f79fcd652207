package strategy

import (
	"testing"
	"time"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// boundedChannelBars builds a bounded range [low, high]: every bar's
// High sits exactly at the top, every Low exactly at the bottom, and
// Close oscillates between the two, ending at lowClose on the final bar.
func boundedChannelBars(n int, low, high, lowClose float64) []market.OhlcBar {
	bars := make([]market.OhlcBar, n)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		close := high
		if i%2 == 0 {
			close = low + (high-low)*0.2
		}
		if i == n-1 {
			close = lowClose
		}
		bars[i] = market.OhlcBar{
			Symbol:    "BTC",
			Timeframe: market.Timeframe1h,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      close,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    10,
		}
	}
	return bars
}

func TestChannelDetector_TriggersNearBottomOfFlatChannel(t *testing.T) {
	bars := boundedChannelBars(20, 95, 103, 95)
	snap := channelSnapshot()
	c := NewChannelDetector()
	setup, err := c.Detect("BTC", bars, snap, config.TierMidCap, RegimeSideways)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if setup == nil {
		t.Fatal("expected a Setup, got nil")
	}
	if setup.SetupData["channel_top"] <= setup.SetupData["channel_bottom"] {
		t.Errorf("expected channel_top > channel_bottom, got top=%v bottom=%v",
			setup.SetupData["channel_top"], setup.SetupData["channel_bottom"])
	}
	if setup.SetupData["position_in_channel"] > 0.05 {
		t.Errorf("expected position_in_channel near 0, got %v", setup.SetupData["position_in_channel"])
	}
}

func TestChannelDetector_NoSetupNearTopOfChannel(t *testing.T) {
	bars := boundedChannelBars(20, 95, 103, 103)
	snap := channelSnapshot()
	c := NewChannelDetector()
	setup, err := c.Detect("BTC", bars, snap, config.TierMidCap, RegimeSideways)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if setup != nil {
		t.Fatal("expected no Setup when price sits at the top of the channel")
	}
}

func TestChannelDetector_InsufficientLookbackSkips(t *testing.T) {
	bars := boundedChannelBars(5, 95, 103, 95)
	snap := channelSnapshot()
	c := NewChannelDetector()
	setup, err := c.Detect("BTC", bars, snap, config.TierMidCap, RegimeSideways)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if setup != nil {
		t.Fatal("expected no Setup with fewer bars than the lookback")
	}
}
