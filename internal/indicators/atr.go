package indicators

import (
	"errors"
	"math"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// ATR calculates the Average True Range as a simple average of true ranges
// over the period.
type ATR struct {
	period int
}

// NewATR creates a new ATR instance with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// DefaultATRPeriod is the period used by the risk gate's volatility check.
const DefaultATRPeriod = 14

// Calculate computes the ATR over the most recent period candles. The first
// candle of the window needs a previous close, so period+1 candles are
// required.
func (a *ATR) Calculate(candles []types.OHLCV) (float64, error) {
	if len(candles) < a.period+1 {
		return 0, errors.New("insufficient data for ATR calculation")
	}

	start := len(candles) - a.period
	sum := 0.0
	for i := start; i < len(candles); i++ {
		sum += trueRange(candles[i], candles[i-1].Close)
	}

	return sum / float64(a.period), nil
}

// trueRange is the greatest of high-low, |high-prevClose| and |low-prevClose|.
func trueRange(c types.OHLCV, prevClose float64) float64 {
	hl := c.High - c.Low
	hc := math.Abs(c.High - prevClose)
	lc := math.Abs(c.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}
