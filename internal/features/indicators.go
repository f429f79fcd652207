// Package features computes a fixed vector of technical indicators from
// an OHLC slice. Every function here is pure and deterministic: the same
// input bars always yield bit-equal output, and only bars at index ≤
// current are ever read, so there is no lookahead.
package features

import (
	"math"
	"time"

	"github.com/nitinkhare/cryptopaper/internal/market"
)

// MinBars is the minimum number of bars FeatureCalculator requires.
const MinBars = 288

// SMA computes the simple moving average of closes over the last period
// bars. Returns 0 if there is insufficient data.
func SMA(bars []market.OhlcBar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// EMA computes the exponential moving average of closes over period,
// seeded with the SMA of the first period bars.
func EMA(bars []market.OhlcBar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	ema := SMA(bars[:period], period)
	for i := period; i < len(bars); i++ {
		ema = bars[i].Close*k + ema*(1-k)
	}
	return ema
}

// RSI computes the Wilder-smoothed Relative Strength Index over period.
// Returns 50 (neutral) on insufficient data.
func RSI(bars []market.OhlcBar, period int) float64 {
	if len(bars) < period+1 {
		return 50
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gainSum += change
		} else {
			lossSum += math.Abs(change)
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds the three MACD lines.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the MACD line (fast EMA − slow EMA), its signal line (EMA
// of the MACD line), and the histogram (MACD − signal).
func MACD(bars []market.OhlcBar, fast, slow, signal int) MACDResult {
	if len(bars) < slow+signal {
		return MACDResult{}
	}

	macdSeries := make([]float64, 0, len(bars)-slow+1)
	for i := slow; i <= len(bars); i++ {
		window := bars[:i]
		macdSeries = append(macdSeries, EMA(window, fast)-EMA(window, slow))
	}

	macd := macdSeries[len(macdSeries)-1]
	sig := emaOfSeries(macdSeries, signal)
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

func emaOfSeries(series []float64, period int) float64 {
	if len(series) < period {
		if len(series) == 0 {
			return 0
		}
		period = len(series)
	}
	k := 2.0 / float64(period+1)
	var sum float64
	for i := 0; i < period; i++ {
		sum += series[i]
	}
	ema := sum / float64(period)
	for i := period; i < len(series); i++ {
		ema = series[i]*k + ema*(1-k)
	}
	return ema
}

// BollingerResult holds band width (as a fraction of the middle band) and
// the current close's position within the bands, 0 = lower, 1 = upper.
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	Width    float64
	Position float64
}

// Bollinger computes Bollinger Bands over period using numStdDev standard
// deviations of closes.
func Bollinger(bars []market.OhlcBar, period int, numStdDev float64) BollingerResult {
	if len(bars) < period {
		return BollingerResult{}
	}
	mid := SMA(bars, period)
	window := bars[len(bars)-period:]
	var variance float64
	for _, b := range window {
		d := b.Close - mid
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(period))

	upper := mid + numStdDev*stdDev
	lower := mid - numStdDev*stdDev
	width := 0.0
	if mid != 0 {
		width = (upper - lower) / mid
	}

	close := bars[len(bars)-1].Close
	position := 0.5
	if upper != lower {
		position = (close - lower) / (upper - lower)
	}

	return BollingerResult{Upper: upper, Middle: mid, Lower: lower, Width: width, Position: position}
}

// ROC computes the rate of change (fractional) over period bars.
func ROC(bars []market.OhlcBar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	current := bars[len(bars)-1].Close
	past := bars[len(bars)-1-period].Close
	if past == 0 {
		return 0
	}
	return (current - past) / past
}

// Stochastic computes %K, the stochastic oscillator over period.
func Stochastic(bars []market.OhlcBar, period int) float64 {
	if len(bars) < period {
		return 50
	}
	window := bars[len(bars)-period:]
	highest := window[0].High
	lowest := window[0].Low
	for _, b := range window {
		if b.High > highest {
			highest = b.High
		}
		if b.Low < lowest {
			lowest = b.Low
		}
	}
	if highest == lowest {
		return 50
	}
	close := bars[len(bars)-1].Close
	return (close - lowest) / (highest - lowest) * 100
}

// LogReturnVolatility computes the standard deviation of log returns over
// the last period bars — a rolling volatility estimate.
func LogReturnVolatility(bars []market.OhlcBar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	window := bars[len(bars)-period-1:]
	returns := make([]float64, 0, period)
	for i := 1; i < len(window); i++ {
		if window[i-1].Close <= 0 || window[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(window[i].Close/window[i-1].Close))
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// HighestHigh returns the highest high over the last period bars.
func HighestHigh(bars []market.OhlcBar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	highest := bars[start].High
	for i := start + 1; i < len(bars); i++ {
		if bars[i].High > highest {
			highest = bars[i].High
		}
	}
	return highest
}

// HighestClose returns the highest close over the last period bars.
func HighestClose(bars []market.OhlcBar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	highest := bars[start].Close
	for i := start + 1; i < len(bars); i++ {
		if bars[i].Close > highest {
			highest = bars[i].Close
		}
	}
	return highest
}

// LowestLow returns the lowest low over the last period bars.
func LowestLow(bars []market.OhlcBar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	lowest := bars[start].Low
	for i := start + 1; i < len(bars); i++ {
		if bars[i].Low < lowest {
			lowest = bars[i].Low
		}
	}
	return lowest
}

// AverageVolume returns the mean volume over the last period bars.
func AverageVolume(bars []market.OhlcBar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	var total float64
	count := 0
	for i := start; i < len(bars); i++ {
		total += bars[i].Volume
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// SupportResistanceDistance returns the percent distance from the current
// close to the nearest local min (support) and local max (resistance)
// within the lookback window.
func SupportResistanceDistance(bars []market.OhlcBar, lookback int) (supportPct, resistancePct float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	low := LowestLow(bars, lookback)
	high := HighestHigh(bars, lookback)
	close := bars[len(bars)-1].Close
	if close == 0 {
		return 0, 0
	}
	return (close - low) / close * 100, (high - close) / close * 100
}

// returnOverWindow returns the percent price return from the bar closest
// to `window` ago to the latest bar, using timestamps rather than a fixed
// bar count since bars may have gaps.
func returnOverWindow(bars []market.OhlcBar, window time.Duration) float64 {
	if len(bars) == 0 {
		return 0
	}
	latest := bars[len(bars)-1]
	cutoff := latest.Timestamp.Add(-window)
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Timestamp.After(cutoff) {
			if bars[i].Close == 0 {
				return 0
			}
			return (latest.Close - bars[i].Close) / bars[i].Close * 100
		}
	}
	// Window extends before the available history; use the oldest bar.
	oldest := bars[0]
	if oldest.Close == 0 {
		return 0
	}
	return (latest.Close - oldest.Close) / oldest.Close * 100
}
