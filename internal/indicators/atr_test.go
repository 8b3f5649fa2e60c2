package indicators

import (
	"math"
	"testing"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

func candle(high, low, close float64) types.OHLCV {
	return types.OHLCV{High: high, Low: low, Close: close}
}

func TestATRInsufficientData(t *testing.T) {
	atr := NewATR(14)
	_, err := atr.Calculate(make([]types.OHLCV, 14))
	if err == nil {
		t.Fatal("expected error with fewer than period+1 candles")
	}
}

func TestATRSimpleAverage(t *testing.T) {
	// Three candles after the seed, each with a known true range.
	candles := []types.OHLCV{
		candle(100, 100, 100), // seed close only
		candle(110, 100, 105), // tr = max(10, 10, 0) = 10
		candle(111, 107, 110), // tr = max(4, 6, 2) = 6
		candle(118, 108, 112), // tr = max(10, 8, 2) = 10
	}
	atr := NewATR(3)
	got, err := atr.Calculate(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (10.0 + 6.0 + 10.0) / 3.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ATR = %v, want %v", got, want)
	}
}

func TestATRGapUsesPreviousClose(t *testing.T) {
	// Gap down: the candle's own range is tiny but the distance from the
	// previous close dominates the true range.
	candles := []types.OHLCV{
		candle(100, 100, 100),
		candle(80, 79, 79.5), // tr = max(1, 20, 21) = 21
	}
	atr := NewATR(1)
	got, err := atr.Calculate(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-21) > 1e-9 {
		t.Errorf("ATR = %v, want 21", got)
	}
}

func TestRSIBounds(t *testing.T) {
	rsi := NewRSI(14)

	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	got, err := rsi.Calculate(rising)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 100 {
		t.Errorf("monotonically rising prices should give RSI 100, got %v", got)
	}

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	got, err = rsi.Calculate(falling)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("monotonically falling prices should give RSI 0, got %v", got)
	}
}

func TestAverageVolume(t *testing.T) {
	candles := []types.OHLCV{
		{Volume: 100}, {Volume: 200}, {Volume: 300}, {Volume: 400},
	}
	got, err := AverageVolume(candles, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 350 {
		t.Errorf("AverageVolume = %v, want 350", got)
	}

	if _, err := AverageVolume(candles, 10); err == nil {
		t.Error("expected error when period exceeds data")
	}
}
