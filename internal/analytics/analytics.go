// Package analytics computes performance metrics from closed paper
// trades: win rate, profit factor, Sharpe ratio, max drawdown, and a
// per-strategy breakdown. It feeds the "recorded for later analysis and
// model retraining" goal without needing a full trade-by-trade export —
// the Store it depends on already does the per-strategy and P&L
// aggregation in SQL.
package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// StrategyStats is one row of the per-strategy breakdown query against
// closed (SELL-side) paper_trades rows.
type StrategyStats struct {
	Strategy    string
	TradeCount  int64
	WinCount    int64
	GrossProfit float64
	GrossLoss   float64
}

// Store is the narrow surface Analyze needs: aggregated per-strategy
// stats plus the ordered P&L series for drawdown and Sharpe, so this
// package never imports internal/storage directly.
type Store interface {
	StrategyBreakdown(ctx context.Context, since time.Time) ([]StrategyStats, error)
	ClosedTradePnLs(ctx context.Context, since time.Time) ([]float64, error)
}

// PerformanceReport holds all computed performance metrics for the
// trades closed since the report window's start.
type PerformanceReport struct {
	TotalTrades   int64
	WinningTrades int64
	LosingTrades  int64
	WinRate       float64 // percentage (0-100)

	TotalPnL    float64
	AveragePnL  float64
	GrossProfit float64
	GrossLoss   float64

	MaxDrawdown    float64 // absolute, in the ledger's unit
	MaxDrawdownPct float64 // percentage drawdown from peak equity
	SharpeRatio    float64 // annualized, 365-day (crypto trades every day)
	ProfitFactor   float64 // gross profit / gross loss

	StrategyReports map[string]*StrategyReport
}

// StrategyReport is PerformanceReport narrowed to one strategy.
type StrategyReport struct {
	Strategy      string
	TotalTrades   int64
	WinningTrades int64
	LosingTrades  int64
	WinRate       float64
	TotalPnL      float64
	AveragePnL    float64
}

// Analyze builds the full performance report from trades closed at or
// after since, starting equity initialCapital. Returns an empty (not
// nil) report if no trades closed in the window.
func Analyze(ctx context.Context, store Store, since time.Time, initialCapital float64) (*PerformanceReport, error) {
	report := &PerformanceReport{StrategyReports: make(map[string]*StrategyReport)}

	breakdown, err := store.StrategyBreakdown(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: strategy breakdown: %w", err)
	}
	pnls, err := store.ClosedTradePnLs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: closed trade pnls: %w", err)
	}

	for _, s := range breakdown {
		report.TotalTrades += s.TradeCount
		report.WinningTrades += s.WinCount
		report.LosingTrades += s.TradeCount - s.WinCount
		report.GrossProfit += s.GrossProfit
		report.GrossLoss += s.GrossLoss
		report.TotalPnL += s.GrossProfit - s.GrossLoss

		sr := &StrategyReport{Strategy: s.Strategy, TotalTrades: s.TradeCount, WinningTrades: s.WinCount, LosingTrades: s.TradeCount - s.WinCount}
		if s.TradeCount > 0 {
			sr.WinRate = float64(s.WinCount) / float64(s.TradeCount) * 100
			sr.TotalPnL = s.GrossProfit - s.GrossLoss
			sr.AveragePnL = sr.TotalPnL / float64(s.TradeCount)
		}
		report.StrategyReports[s.Strategy] = sr
	}

	if report.TotalTrades == 0 {
		return report, nil
	}

	report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades) * 100
	report.AveragePnL = report.TotalPnL / float64(report.TotalTrades)
	if report.GrossLoss > 0 {
		report.ProfitFactor = report.GrossProfit / report.GrossLoss
	} else if report.GrossProfit > 0 {
		report.ProfitFactor = math.Inf(1)
	}

	report.MaxDrawdown, report.MaxDrawdownPct = maxDrawdown(pnls, initialCapital)
	report.SharpeRatio = sharpeRatio(pnls)

	return report, nil
}

// maxDrawdown walks the equity curve implied by pnls in close order and
// returns the largest peak-to-trough drop, absolute and as a percentage
// of the peak it fell from.
func maxDrawdown(pnls []float64, initialCapital float64) (absolute, pct float64) {
	equity := initialCapital
	peak := equity
	for _, pnl := range pnls {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > absolute {
			absolute = dd
			if peak > 0 {
				pct = (dd / peak) * 100
			}
		}
	}
	return absolute, pct
}

// sharpeRatio computes the annualized Sharpe ratio assuming a zero
// risk-free rate and 365 trading days a year — crypto markets trade
// every day, unlike the 252-session equities calendar.
func sharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		diff := p - mean
		variance += diff * diff
	}
	variance /= float64(len(pnls) - 1)
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return (mean / stdDev) * math.Sqrt(365)
}

// FormatReport renders report as a human-readable text summary.
func FormatReport(report *PerformanceReport) string {
	if report == nil || report.TotalTrades == 0 {
		return "No closed trades to analyze."
	}

	var b strings.Builder
	b.WriteString("=== PERFORMANCE REPORT ===\n\n")

	fmt.Fprintf(&b, "Total trades:    %d\n", report.TotalTrades)
	fmt.Fprintf(&b, "Winning trades:  %d (%.1f%%)\n", report.WinningTrades, report.WinRate)
	fmt.Fprintf(&b, "Losing trades:   %d\n\n", report.LosingTrades)

	fmt.Fprintf(&b, "Total P&L:       $%.2f\n", report.TotalPnL)
	fmt.Fprintf(&b, "Average P&L:     $%.2f\n", report.AveragePnL)
	fmt.Fprintf(&b, "Gross profit:    $%.2f\n", report.GrossProfit)
	fmt.Fprintf(&b, "Gross loss:      $%.2f\n", report.GrossLoss)
	fmt.Fprintf(&b, "Profit factor:   %.2f\n\n", report.ProfitFactor)

	fmt.Fprintf(&b, "Max drawdown:    $%.2f (%.2f%%)\n", report.MaxDrawdown, report.MaxDrawdownPct)
	fmt.Fprintf(&b, "Sharpe ratio:    %.2f\n\n", report.SharpeRatio)

	if len(report.StrategyReports) > 1 {
		b.WriteString("-- Strategy breakdown --\n")
		for _, sr := range report.StrategyReports {
			fmt.Fprintf(&b, "  [%s] trades=%d win_rate=%.1f%% pnl=$%.2f\n", sr.Strategy, sr.TotalTrades, sr.WinRate, sr.TotalPnL)
		}
	}

	return b.String()
}
