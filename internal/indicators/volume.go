package indicators

import (
	"errors"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// AverageVolume returns the mean volume over the most recent period candles.
func AverageVolume(candles []types.OHLCV, period int) (float64, error) {
	if len(candles) < period || period <= 0 {
		return 0, errors.New("insufficient data for volume average")
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period), nil
}
