package scanner

import (
	"context"

	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/market"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

// classifyRegime derives the overall market regime from the reference
// symbol's own feature vector: the 24h return sets the bull/bear/crash
// split, SMA20-vs-SMA50 disambiguates a mild bear from sideways chop —
// the same fast/slow gap the Swing detector uses as its trend gauge.
func classifyRegime(feats features.Features) strategy.MarketRegime {
	switch {
	case feats.Return24h <= -20:
		return strategy.RegimeCrash
	case feats.Return24h <= -5 && feats.SMA20 < feats.SMA50:
		return strategy.RegimeBear
	case feats.Return24h >= 5 && feats.SMA20 > feats.SMA50:
		return strategy.RegimeBull
	default:
		return strategy.RegimeSideways
	}
}

// resolveRegime fetches the reference symbol's recent bars and returns
// the classified regime plus its latest close (btcPrice on the
// Decision). On any data error it degrades to SIDEWAYS with price 0
// rather than blocking the tick.
func (m *Manager) resolveRegime(ctx context.Context, snapshot *config.Snapshot) (strategy.MarketRegime, float64) {
	bars, err := m.fetcher.GetRecent(ctx, m.referenceSymbol, m.timeframeFor(snapshot, snapshot.GlobalSettings.PrimaryTimeframe), scanLookbackHours)
	if err != nil {
		m.logger.Warn("scanner: could not fetch reference symbol for regime classification", zap.Error(err))
		return strategy.RegimeSideways, 0
	}
	feats, err := features.Calculate(bars, snapshot.GlobalSettings.VolumeAverageWindow)
	if err != nil {
		m.logger.Warn("scanner: insufficient reference symbol data for regime classification", zap.Error(err))
		price := 0.0
		if len(bars) > 0 {
			price = bars[len(bars)-1].Close
		}
		return strategy.RegimeSideways, price
	}
	price := bars[len(bars)-1].Close
	return classifyRegime(feats), price
}

// timeframeFor resolves a candle interval string (a strategy's own
// Timeframe, or the global PrimaryTimeframe as a fallback) to a
// supported market.Timeframe, defaulting to 15m when empty or
// unrecognized.
func (m *Manager) timeframeFor(snapshot *config.Snapshot, configured string) market.Timeframe {
	if configured == "" {
		configured = snapshot.GlobalSettings.PrimaryTimeframe
	}
	tf := market.Timeframe(configured)
	switch tf {
	case market.Timeframe1m, market.Timeframe15m, market.Timeframe1h, market.Timeframe1d:
		return tf
	default:
		return market.Timeframe15m
	}
}
