package features

import (
	"fmt"
	"time"

	"github.com/nitinkhare/cryptopaper/internal/market"
)

// Features is the typed output of the FeatureCalculator: one fixed vector
// of indicator values per (symbol, timestamp). Extras carries only the
// ML-bound blobs that get persisted as JSON alongside a Decision; every
// feature used for detection or filtering has a named field here.
type Features struct {
	Return5m  float64
	Return1h  float64
	Return4h  float64
	Return24h float64

	VolumeRatio float64

	RSI14 float64
	MACD  MACDResult

	BollingerWidth    float64
	BollingerPosition float64

	SMA20  float64
	SMA50  float64
	SMA200 float64
	EMA20  float64
	EMA50  float64
	EMA200 float64

	DistanceFromSMA20Pct  float64
	DistanceFromSMA50Pct  float64
	DistanceFromSMA200Pct float64

	ROC               float64
	Stochastic        float64
	LogReturnVolatility float64

	SupportDistancePct    float64
	ResistanceDistancePct float64

	AsOf time.Time
}

// ErrInsufficientData is returned when fewer than MinBars bars are given.
var ErrInsufficientData = fmt.Errorf("features: insufficient_data (need >= %d bars)", MinBars)

// VolumeWindow is the trailing bar count used for the volume-ratio
// baseline when no per-symbol override is configured.
const VolumeWindow = 20

// Calculate computes the full Features vector from an ascending OHLC
// slice. Pure and deterministic: bars must already be sorted ascending by
// timestamp, and only bars at index ≤ current are read — no lookahead.
func Calculate(bars []market.OhlcBar, volumeWindow int) (Features, error) {
	if len(bars) < MinBars {
		return Features{}, ErrInsufficientData
	}
	if volumeWindow <= 0 {
		volumeWindow = VolumeWindow
	}

	latest := bars[len(bars)-1]

	macd := MACD(bars, 12, 26, 9)
	boll := Bollinger(bars, 20, 2.0)
	supportPct, resistancePct := SupportResistanceDistance(bars, 50)

	avgVol := AverageVolume(bars, volumeWindow)
	volumeRatio := 0.0
	if avgVol > 0 {
		volumeRatio = latest.Volume / avgVol
	}

	sma20 := SMA(bars, 20)
	sma50 := SMA(bars, 50)
	sma200 := SMA(bars, 200)

	f := Features{
		Return5m:  returnOverWindow(bars, 5*time.Minute),
		Return1h:  returnOverWindow(bars, time.Hour),
		Return4h:  returnOverWindow(bars, 4*time.Hour),
		Return24h: returnOverWindow(bars, 24*time.Hour),

		VolumeRatio: volumeRatio,

		RSI14: RSI(bars, 14),
		MACD:  macd,

		BollingerWidth:    boll.Width,
		BollingerPosition: boll.Position,

		SMA20:  sma20,
		SMA50:  sma50,
		SMA200: sma200,
		EMA20:  EMA(bars, 20),
		EMA50:  EMA(bars, 50),
		EMA200: EMA(bars, 200),

		DistanceFromSMA20Pct:  pctDistance(latest.Close, sma20),
		DistanceFromSMA50Pct:  pctDistance(latest.Close, sma50),
		DistanceFromSMA200Pct: pctDistance(latest.Close, sma200),

		ROC:                 ROC(bars, 14),
		Stochastic:          Stochastic(bars, 14),
		LogReturnVolatility: LogReturnVolatility(bars, 30),

		SupportDistancePct:    supportPct,
		ResistanceDistancePct: resistancePct,

		AsOf: latest.Timestamp,
	}
	return f, nil
}

func pctDistance(price, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (price - reference) / reference * 100
}

// ToMap flattens Features into a named map for persistence in
// scan_history.features (jsonb).
func (f Features) ToMap() map[string]float64 {
	return map[string]float64{
		"return_5m":                 f.Return5m,
		"return_1h":                 f.Return1h,
		"return_4h":                 f.Return4h,
		"return_24h":                f.Return24h,
		"volume_ratio":              f.VolumeRatio,
		"rsi_14":                    f.RSI14,
		"macd":                      f.MACD.MACD,
		"macd_signal":               f.MACD.Signal,
		"macd_histogram":            f.MACD.Histogram,
		"bollinger_width":           f.BollingerWidth,
		"bollinger_position":        f.BollingerPosition,
		"sma_20":                    f.SMA20,
		"sma_50":                    f.SMA50,
		"sma_200":                   f.SMA200,
		"ema_20":                    f.EMA20,
		"ema_50":                    f.EMA50,
		"ema_200":                   f.EMA200,
		"distance_sma_20_pct":       f.DistanceFromSMA20Pct,
		"distance_sma_50_pct":       f.DistanceFromSMA50Pct,
		"distance_sma_200_pct":      f.DistanceFromSMA200Pct,
		"roc":                       f.ROC,
		"stochastic":                f.Stochastic,
		"log_return_volatility":     f.LogReturnVolatility,
		"support_distance_pct":      f.SupportDistancePct,
		"resistance_distance_pct":   f.ResistanceDistancePct,
	}
}
