package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"finsight/pkg/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma, err := SMA(closes, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !almostEqual(sma, 4) {
		t.Errorf("Expected SMA 4, got %f", sma)
	}
}

func TestSMAInsufficientData(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 3)
	if err == nil {
		t.Fatal("Expected error for short series")
	}
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 42.5
	}

	ema, err := EMA(closes, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !almostEqual(ema, 42.5) {
		t.Errorf("EMA of constant series should equal the constant, got %f", ema)
	}
}

func TestEMASeedsWithFirstValue(t *testing.T) {
	// Single element: EMA equals the seed regardless of period
	ema, err := EMA([]float64{100}, 12)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !almostEqual(ema, 100) {
		t.Errorf("Expected EMA 100, got %f", ema)
	}
}

func TestRSIRange(t *testing.T) {
	// Alternating gains and losses of varying size
	closes := make([]float64, 40)
	price := 100.0
	for i := range closes {
		if i%2 == 0 {
			price += float64(i%5) + 0.5
		} else {
			price -= float64(i%3) + 0.25
		}
		closes[i] = price
	}

	rsi, err := RSI(closes, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rsi < 0 || rsi > 100 {
		t.Errorf("RSI out of range: %f", rsi)
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi, err := RSI(closes, 14)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rsi != 100 {
		t.Errorf("RSI should saturate at 100 with no losses, got %f", rsi)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	closes := make([]float64, 14) // need period+1
	_, err := RSI(closes, 14)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
}

func TestMACDConstantSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 77.0
	}

	macd, err := MACD(closes)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !almostEqual(macd, 0) {
		t.Errorf("MACD of constant series should be 0, got %f", macd)
	}
}

func TestBollingerBands(t *testing.T) {
	// 20 closes: 19 at 100, one at 120
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	closes[19] = 120

	bands, err := BollingerBands(closes, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mean := (19*100.0 + 120.0) / 20.0
	variance := (19*math.Pow(100-mean, 2) + math.Pow(120-mean, 2)) / 20.0
	std := math.Sqrt(variance)

	if !almostEqual(bands.Middle, mean) {
		t.Errorf("Expected middle %f, got %f", mean, bands.Middle)
	}
	if !almostEqual(bands.Upper, mean+2*std) {
		t.Errorf("Expected upper %f, got %f", mean+2*std, bands.Upper)
	}
	if !almostEqual(bands.Lower, mean-2*std) {
		t.Errorf("Expected lower %f, got %f", mean-2*std, bands.Lower)
	}
}

func TestBollingerConstantSeries(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}

	bands, err := BollingerBands(closes, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !almostEqual(bands.Upper, 50) || !almostEqual(bands.Lower, 50) {
		t.Errorf("Bands of constant series should collapse to the mean, got %+v", bands)
	}
}

func TestATR(t *testing.T) {
	// Two bars with a known true range
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := []model.PricePoint{
		{Time: base, Open: 100, High: 102, Low: 98, Close: 101},
		{Time: base.AddDate(0, 0, 1), Open: 101, High: 105, Low: 100, Close: 104},
	}

	atr, err := ATR(bars, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// TR of last bar: max(105-100, |105-101|, |100-101|) = 5
	if !almostEqual(atr, 5) {
		t.Errorf("Expected ATR 5, got %f", atr)
	}
}

func TestATRGapDown(t *testing.T) {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := []model.PricePoint{
		{Time: base, Open: 100, High: 102, Low: 98, Close: 100},
		// Gap down: prev close dominates the range
		{Time: base.AddDate(0, 0, 1), Open: 90, High: 91, Low: 89, Close: 90},
	}

	atr, err := ATR(bars, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// TR: max(91-89, |91-100|, |89-100|) = 11
	if !almostEqual(atr, 11) {
		t.Errorf("Expected ATR 11, got %f", atr)
	}
}

func TestSnapshot(t *testing.T) {
	bars := generateBars(250, 100)

	snap, err := Snapshot(bars)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if snap.LastClose != bars[len(bars)-1].Close {
		t.Errorf("Expected last close %f, got %f", bars[len(bars)-1].Close, snap.LastClose)
	}
	if snap.RSI14 < 0 || snap.RSI14 > 100 {
		t.Errorf("RSI out of range: %f", snap.RSI14)
	}
	if snap.UpperBand < snap.LowerBand {
		t.Errorf("Upper band %f below lower band %f", snap.UpperBand, snap.LowerBand)
	}
	if snap.ATR14 <= 0 {
		t.Errorf("Expected positive ATR, got %f", snap.ATR14)
	}
}

func TestSnapshotInsufficientHistory(t *testing.T) {
	bars := generateBars(150, 100) // below the SMA200 window

	_, err := Snapshot(bars)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
}

// generateBars builds a deterministic wavy series long enough for all windows
func generateBars(n int, start float64) []model.PricePoint {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PricePoint, n)
	price := start
	for i := 0; i < n; i++ {
		move := math.Sin(float64(i)/7.0) * 2
		open := price
		price = price + move
		high := math.Max(open, price) + 0.5
		low := math.Min(open, price) - 0.5
		bars[i] = model.PricePoint{
			Time:   base.AddDate(0, 0, i),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 1000 + int64(i),
		}
	}
	return bars
}
