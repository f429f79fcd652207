package broker

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nitinkhare/cryptopaper/internal/config"
)

func midCapSnapshot() *config.Snapshot {
	return &config.Snapshot{
		Fees:          config.Fees{Taker: 0.0026},
		SlippageRates: map[config.Tier]float64{config.TierMidCap: 0.0015},
	}
}

// TestSimulator_Buy_MatchesWorkedExample reproduces the spec's DCA
// happy-path numbers: reference 19.55, notional 100, mid_cap tier.
func TestSimulator_Buy_MatchesWorkedExample(t *testing.T) {
	sim := NewSimulator()
	fill := sim.Buy(19.55, 100, config.TierMidCap, midCapSnapshot())

	wantPrice := decimal.NewFromFloat(19.55).Mul(decimal.NewFromFloat(1.0015))
	if !fill.Price.Round(4).Equal(wantPrice.Round(4)) {
		t.Errorf("expected entry price %s, got %s", wantPrice.Round(4), fill.Price.Round(4))
	}

	wantFees := decimal.NewFromFloat(100).Mul(decimal.NewFromFloat(0.0026))
	if !fill.Fees.Round(4).Equal(wantFees.Round(4)) {
		t.Errorf("expected fees %s, got %s", wantFees.Round(4), fill.Fees.Round(4))
	}

	wantAmount := decimal.NewFromFloat(100).Sub(wantFees).Div(wantPrice)
	if !fill.Amount.Round(4).Equal(wantAmount.Round(4)) {
		t.Errorf("expected amount %s, got %s", wantAmount.Round(4), fill.Amount.Round(4))
	}
}

func TestSimulator_Sell_AppliesNegativeSlippage(t *testing.T) {
	sim := NewSimulator()
	amount := decimal.NewFromFloat(5.0966)
	fill := sim.Sell(20.3625, amount, config.TierMidCap, midCapSnapshot())

	wantPrice := decimal.NewFromFloat(20.3625).Mul(decimal.NewFromFloat(0.9985))
	if !fill.Price.Round(4).Equal(wantPrice.Round(4)) {
		t.Errorf("expected exit price %s, got %s", wantPrice.Round(4), fill.Price.Round(4))
	}
	if fill.Fees.IsZero() {
		t.Error("expected nonzero exit fees")
	}
}

func TestPnL_ProfitableRoundTrip(t *testing.T) {
	amount := decimal.NewFromFloat(5)
	entry := decimal.NewFromFloat(20)
	exit := decimal.NewFromFloat(22)
	fees := decimal.NewFromFloat(0.5)

	pnl := PnL(amount, entry, exit, fees)
	want := decimal.NewFromFloat(5).Mul(decimal.NewFromFloat(2)).Sub(decimal.NewFromFloat(0.5))
	if !pnl.Equal(want) {
		t.Errorf("expected pnl %s, got %s", want, pnl)
	}
}
