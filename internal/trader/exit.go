package trader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/broker"
	"github.com/nitinkhare/cryptopaper/internal/market"
)

// exitCellTimeout bounds how long the exit loop spends marking and
// evaluating a single position per spec §5's per-exit-cell timeout.
const exitCellTimeout = 3 * time.Second

// RunExitTick marks every open position to the latest price and closes
// any whose exit trigger fires. Exit trigger evaluation order per
// position: take-profit, trailing-stop, stop-loss, timeout — first
// match wins.
func (t *Trader) RunExitTick(ctx context.Context) {
	t.mu.Lock()
	ids := make([]uuid.UUID, 0, len(t.positions))
	for id, p := range t.positions {
		if p.Status == StatusOpen {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cellCtx, cancel := context.WithTimeout(ctx, exitCellTimeout)
		t.processExitCell(cellCtx, id)
		cancel()
	}
}

func (t *Trader) processExitCell(ctx context.Context, id uuid.UUID) {
	t.mu.Lock()
	pos, ok := t.positions[id]
	t.mu.Unlock()
	if !ok || pos.Status != StatusOpen {
		return
	}

	bar, err := t.fetcher.LatestBar(ctx, pos.Symbol, market.Timeframe1m)
	if err != nil {
		t.logger.Warn("trader: exit cell could not fetch latest price", zap.String("symbol", pos.Symbol), zap.Error(err))
		return
	}
	high := decimal.NewFromFloat(bar.High)
	price := decimal.NewFromFloat(bar.Close)

	t.mu.Lock()
	if high.GreaterThan(pos.HighWatermark) {
		pos.HighWatermark = high
	}
	reason, triggerPrice, shouldClose := evaluateExit(pos, *bar, t.now())
	t.mu.Unlock()

	if !shouldClose {
		return
	}
	t.closePosition(ctx, pos, triggerPrice, reason)
}

// evaluateExit applies the fixed trigger order to a position marked to
// the latest bar. inProfit gates the trailing-stop branch, so a position
// that was never profitable falls through to the stop-loss check instead
// of ever being labelled trailing_stop.
//
// When a single bar's range spans both the take-profit and the
// stop-loss level (high >= takeProfit and low <= stopLoss), the trigger
// order alone can't say which fired first intrabar; the tie is broken by
// the bar's open relative to the midpoint between the two levels per
// spec §8: take-profit wins when open is above the midpoint (price was
// already closer to target before the bar printed), stop-loss otherwise.
func evaluateExit(pos *Position, bar market.OhlcBar, now time.Time) (reason ExitReason, triggerPrice decimal.Decimal, shouldClose bool) {
	high := decimal.NewFromFloat(bar.High)
	low := decimal.NewFromFloat(bar.Low)
	open := decimal.NewFromFloat(bar.Open)
	close_ := decimal.NewFromFloat(bar.Close)

	tpHit := high.GreaterThanOrEqual(pos.TakeProfit)
	slHit := low.LessThanOrEqual(pos.StopLoss)

	if tpHit && slHit {
		midpoint := pos.TakeProfit.Add(pos.StopLoss).Div(decimal.NewFromInt(2))
		if open.GreaterThan(midpoint) {
			return ExitTakeProfit, pos.TakeProfit, true
		}
		return ExitStopLoss, pos.StopLoss, true
	}
	if tpHit {
		return ExitTakeProfit, close_, true
	}
	if pos.inProfit() {
		threshold := pos.HighWatermark.Mul(decimal.NewFromFloat(1 - pos.TrailingStopPct))
		if low.LessThanOrEqual(threshold) {
			return ExitTrailing, close_, true
		}
	}
	if slHit {
		return ExitStopLoss, close_, true
	}
	if !now.Before(pos.TimeoutAt) {
		return ExitTimeout, close_, true
	}
	return "", decimal.Zero, false
}

// closePosition simulates the sell fill, persists the SELL row, and
// frees the position slot. Any failure to persist keeps the position
// OPEN so the next exit tick retries the close.
func (t *Trader) closePosition(ctx context.Context, pos *Position, triggerPrice decimal.Decimal, reason ExitReason) {
	snapshot := t.configLoader.Current()
	triggerFloat, _ := triggerPrice.Float64()
	fill := t.sim.Sell(triggerFloat, pos.Amount, pos.Tier, snapshot)
	pnl := broker.PnL(pos.Amount, pos.EntryPrice, fill.Price, fill.Fees)

	now := t.now()
	exit := ExitRecord{
		ExitPrice:     fill.Price,
		PnL:           pnl,
		ExitFees:      fill.Fees,
		ExitReason:    reason,
		HoldTimeHours: now.Sub(pos.OpenedAt).Hours(),
		ClosedAt:      now,
	}

	t.mu.Lock()
	pos.Status = StatusClosing
	t.mu.Unlock()

	if err := t.store.InsertClose(ctx, *pos, exit); err != nil {
		t.logger.Error("trader: failed to persist close, retaining position open", zap.String("symbol", pos.Symbol), zap.Error(err))
		t.mu.Lock()
		pos.Status = StatusOpen
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	pos.Status = StatusClosed
	t.dailyPnL = t.dailyPnL.Add(pnl)
	t.balance = t.balance.Add(pos.Notional).Add(pnl)
	delete(t.positions, pos.TradeGroupID)
	count := t.openPositionCountLocked()
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.OpenPositions.Set(float64(count))
		t.metrics.PositionCloses.WithLabelValues(string(reason)).Inc()
	}

	t.logger.Info("trader: position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(reason)),
		zap.String("pnl", pnl.String()),
	)
}
