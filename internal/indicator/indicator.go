package indicator

import (
	"errors"
	"fmt"
	"math"

	"finsight/pkg/model"
)

// ErrInsufficientData is returned when a series is too short for the
// requested indicator. Callers must treat this as "undefined", never as zero.
var ErrInsufficientData = errors.New("insufficient data")

// Bands holds a Bollinger Band pair around its SMA midpoint
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// SMA calculates the Simple Moving Average of the last period closes
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma: invalid period %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("sma(%d): %w: have %d closes", period, ErrInsufficientData, len(closes))
	}

	var sum float64
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average over the whole series.
// The seed is the first element of the series rather than an initial SMA,
// which biases early values; kept so scores stay reproducible against the
// model that produced historical predictions.
func EMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ema: invalid period %d", period)
	}
	if len(closes) == 0 {
		return 0, fmt.Errorf("ema(%d): %w", period, ErrInsufficientData)
	}

	multiplier := 2.0 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = (c-ema)*multiplier + ema
	}
	return ema, nil
}

// RSI calculates the Relative Strength Index over the last period deltas.
// Defined only when at least period+1 closes are available. When the window
// has no losses the RSI saturates at 100 instead of dividing by zero.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi: invalid period %d", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi(%d): %w: have %d closes, need %d", period, ErrInsufficientData, len(closes), period+1)
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// MACD calculates the Moving Average Convergence Divergence, EMA12 - EMA26,
// over the same closes series
func MACD(closes []float64) (float64, error) {
	fast, err := EMA(closes, 12)
	if err != nil {
		return 0, fmt.Errorf("macd: %w", err)
	}
	slow, err := EMA(closes, 26)
	if err != nil {
		return 0, fmt.Errorf("macd: %w", err)
	}
	return fast - slow, nil
}

// BollingerBands calculates the SMA of the last period closes plus and minus
// two population standard deviations of the same window
func BollingerBands(closes []float64, period int) (Bands, error) {
	mid, err := SMA(closes, period)
	if err != nil {
		return Bands{}, fmt.Errorf("bollinger: %w", err)
	}

	var sumSquares float64
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - mid
		sumSquares += diff * diff
	}
	std := math.Sqrt(sumSquares / float64(period))

	return Bands{
		Upper:  mid + 2*std,
		Middle: mid,
		Lower:  mid - 2*std,
	}, nil
}

// ATR calculates the Average True Range as the mean of the last period true
// ranges, where TR = max(high-low, |high-prevClose|, |low-prevClose|).
// Needs period+1 bars for the first previous close.
func ATR(bars []model.PricePoint, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr: invalid period %d", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("atr(%d): %w: have %d bars, need %d", period, ErrInsufficientData, len(bars), period+1)
	}

	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1].Close)
		sum += tr
	}
	return sum / float64(period), nil
}

func trueRange(bar model.PricePoint, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if hc := math.Abs(bar.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(bar.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// Closes extracts the close series from daily bars
func Closes(bars []model.PricePoint) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Snapshot computes the full indicator set consumed by signal fusion.
// Fails with ErrInsufficientData when the series cannot support the longest
// window (SMA200).
func Snapshot(bars []model.PricePoint) (model.IndicatorSnapshot, error) {
	var snap model.IndicatorSnapshot

	closes := Closes(bars)
	if len(closes) == 0 {
		return snap, fmt.Errorf("snapshot: %w", ErrInsufficientData)
	}

	var err error
	if snap.RSI14, err = RSI(closes, 14); err != nil {
		return snap, err
	}
	if snap.MACD, err = MACD(closes); err != nil {
		return snap, err
	}
	if snap.EMA20, err = EMA(closes, 20); err != nil {
		return snap, err
	}
	if snap.SMA50, err = SMA(closes, 50); err != nil {
		return snap, err
	}
	if snap.SMA200, err = SMA(closes, 200); err != nil {
		return snap, err
	}

	bands, err := BollingerBands(closes, 20)
	if err != nil {
		return snap, err
	}
	snap.UpperBand = bands.Upper
	snap.LowerBand = bands.Lower

	if snap.ATR14, err = ATR(bars, 14); err != nil {
		return snap, err
	}

	snap.LastClose = closes[len(closes)-1]
	return snap, nil
}
