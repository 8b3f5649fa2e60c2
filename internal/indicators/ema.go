package indicators

import (
	"errors"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// EMA represents the Exponential Moving Average technical indicator
type EMA struct {
	period      int
	alpha       float64
	lastValue   float64
	initialized bool
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// Calculate calculates the EMA value over the candle closes. The first call
// seeds the EMA with an SMA of the oldest period closes; later calls update
// incrementally from the latest close.
func (e *EMA) Calculate(candles []types.OHLCV) (float64, error) {
	if !e.initialized {
		if len(candles) < e.period {
			return 0, errors.New("insufficient data for EMA calculation")
		}
		sum := 0.0
		for i := 0; i < e.period; i++ {
			sum += candles[i].Close
		}
		e.lastValue = sum / float64(e.period)
		e.initialized = true

		for i := e.period; i < len(candles); i++ {
			e.lastValue = (candles[i].Close * e.alpha) + (e.lastValue * (1 - e.alpha))
		}
		return e.lastValue, nil
	}

	if len(candles) == 0 {
		return e.lastValue, nil
	}
	latest := candles[len(candles)-1].Close
	e.lastValue = (latest * e.alpha) + (e.lastValue * (1 - e.alpha))
	return e.lastValue, nil
}

// UpdateSingle feeds one close price into the EMA and returns the new value.
func (e *EMA) UpdateSingle(value float64) float64 {
	if !e.initialized {
		e.lastValue = value
		e.initialized = true
	} else {
		e.lastValue = (value * e.alpha) + (e.lastValue * (1 - e.alpha))
	}
	return e.lastValue
}
