package sizing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tradeerrors "github.com/ducminhle1904/leverage-trade-engine/internal/errors"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

type fakeFees struct {
	fee float64
	err error
}

func (f *fakeFees) CalculateFees(ctx context.Context, symbol string, quantity, price, leverage float64, taker bool) (float64, error) {
	return f.fee, f.err
}

type fakeSessions struct{ primary bool }

func (f *fakeSessions) InPrimarySession(now time.Time) bool { return f.primary }

type fakeBook struct{ positions []types.Position }

func (f *fakeBook) OpenPositions() []types.Position { return f.positions }

func boxSignal(leverage float64) types.Signal {
	return types.Signal{
		Symbol:    "BTCUSDT",
		Direction: types.DirectionLong,
		Strategy:  "brinks_box",
		Leverage:  leverage,
		BoxHigh:   1100,
		BoxLow:    900,
		Technicals: types.Technicals{
			ATR: 1,
		},
	}
}

func newSizer(fees FeeSource, primary bool, book PositionSource) *Sizer {
	if book == nil {
		book = &fakeBook{}
	}
	return NewSizer(
		Caps{MaxPairExposurePct: 30, GlobalMaxLeverage: 100},
		fees, &fakeSessions{primary: primary}, book, nil)
}

func TestRiskBasedQuantityWithFeeReduction(t *testing.T) {
	// Balance 10000, risk 2%, stop distance 100 -> raw quantity 2.
	// Fees then shave the final quantity below 2.
	s := newSizer(&fakeFees{fee: 50}, true, nil)

	result, err := s.Size(context.Background(), boxSignal(1), 1000, 10000)
	require.NoError(t, err)

	assert.InDelta(t, 2-50.0/1000, result.Quantity, 1e-9)
	assert.Less(t, result.Quantity, 2.0)
	assert.Equal(t, 50.0, result.EstimatedFees)
	assert.Equal(t, 900.0, result.StopLoss)
	// Reward distance is twice the risk distance.
	assert.Equal(t, 1200.0, result.TakeProfit)
}

func TestShortStopAndTargetMirror(t *testing.T) {
	s := newSizer(&fakeFees{fee: 1}, true, nil)
	signal := boxSignal(1)
	signal.Direction = types.DirectionShort

	result, err := s.Size(context.Background(), signal, 1000, 10000)
	require.NoError(t, err)
	assert.Equal(t, 1100.0, result.StopLoss)
	assert.Equal(t, 800.0, result.TakeProfit)
}

func TestVolatilityDampeningIsMonotonic(t *testing.T) {
	base := computeInputs{
		Balance:         10000,
		Price:           1000,
		StopDistance:    100,
		Leverage:        1,
		RiskPct:         2,
		VolThresholdPct: 5,
		MaxPairPct:      100,
	}

	prev := 0.0
	for i, atrPct := range []float64{1, 5, 6, 8, 12, 20} {
		in := base
		in.ATRPercent = atrPct
		qty := compute(in).Quantity
		if i > 0 {
			assert.LessOrEqual(t, qty, prev,
				"quantity must not grow as volatility rises (atr %.0f%%)", atrPct)
		}
		prev = qty
	}

	// At the threshold the full size survives; at double it is halved.
	in := base
	in.ATRPercent = 5
	assert.InDelta(t, 2.0, compute(in).Quantity, 1e-9)
	in.ATRPercent = 10
	assert.InDelta(t, 1.0, compute(in).Quantity, 1e-9)
}

func TestExposureHeadroomCapsQuantity(t *testing.T) {
	in := computeInputs{
		Balance:          10000,
		Price:            1000,
		StopDistance:     100,
		Leverage:         10,
		RiskPct:          2,
		VolThresholdPct:  5,
		MaxPairPct:       30,
		ExistingNotional: 2000,
	}
	// Headroom 1000 notional at 10x on price 1000 -> max 0.1.
	assert.InDelta(t, 0.1, compute(in).Quantity, 1e-9)

	in.ExistingNotional = 3000
	assert.Equal(t, 0.0, compute(in).Quantity)
}

func TestPerPositionNotionalCap(t *testing.T) {
	in := computeInputs{
		Balance:         10000,
		Price:           1000,
		StopDistance:    100,
		Leverage:        10,
		RiskPct:         2,
		VolThresholdPct: 5,
		MaxPairPct:      100,
		MaxPositionPct:  10,
	}
	// 10% of balance at 10x on price 1000 -> max 0.1, well under the
	// risk-based 2.
	assert.InDelta(t, 0.1, compute(in).Quantity, 1e-9)
}

func TestNoHeadroomReturnsNoTradeableSize(t *testing.T) {
	book := &fakeBook{positions: []types.Position{{
		Symbol:     "BTCUSDT",
		EntryPrice: 1000,
		Size:       3,
		Leverage:   1,
		Status:     types.PositionOpen,
	}}}
	s := newSizer(&fakeFees{fee: 1}, true, book)

	_, err := s.Size(context.Background(), boxSignal(1), 1000, 10000)
	require.Error(t, err)
	assert.Equal(t, tradeerrors.OutcomeNoTradeableSize, tradeerrors.OutcomeOf(err))
}

func TestOffSessionLeverageCap(t *testing.T) {
	s := newSizer(&fakeFees{fee: 1}, false, nil)

	result, err := s.Size(context.Background(), boxSignal(50), 1000, 10000)
	require.NoError(t, err)
	assert.Equal(t, float64(OffSessionMaxLeverage), result.Leverage)

	s = newSizer(&fakeFees{fee: 1}, true, nil)
	result, err = s.Size(context.Background(), boxSignal(50), 1000, 10000)
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Leverage)
}

func TestFeeLookupFailureRejects(t *testing.T) {
	s := newSizer(&fakeFees{err: errors.New("venue down")}, true, nil)

	_, err := s.Size(context.Background(), boxSignal(1), 1000, 10000)
	require.Error(t, err)
	assert.Equal(t, tradeerrors.OutcomeNoTradeableSize, tradeerrors.OutcomeOf(err))
}

func TestZeroStopDistanceRejects(t *testing.T) {
	s := newSizer(&fakeFees{fee: 1}, true, nil)
	signal := boxSignal(1)
	signal.BoxLow = 1000 // stop at entry price

	_, err := s.Size(context.Background(), signal, 1000, 10000)
	require.Error(t, err)
	assert.Equal(t, tradeerrors.OutcomeNoTradeableSize, tradeerrors.OutcomeOf(err))
}
