package book

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// VolatilityWindow estimates realized volatility from a rolling window
// of mid prices. Log returns are computed in floating point; only the
// final estimate is converted back to decimal for the data interface.
type VolatilityWindow struct {
	mu         sync.Mutex
	windowSize int
	prices     []float64
}

func NewVolatilityWindow(windowSize int) *VolatilityWindow {
	if windowSize < 2 {
		windowSize = 2
	}
	return &VolatilityWindow{
		windowSize: windowSize,
		prices:     make([]float64, 0, windowSize),
	}
}

// AddPrice records a new mid price observation.
func (v *VolatilityWindow) AddPrice(mid decimal.Decimal) {
	p, _ := mid.Float64()
	if p <= 0 {
		return
	}
	v.mu.Lock()
	v.prices = append(v.prices, p)
	if len(v.prices) > v.windowSize {
		v.prices = v.prices[1:]
	}
	v.mu.Unlock()
}

// IsReady reports whether enough observations exist for an estimate.
func (v *VolatilityWindow) IsReady() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.prices) >= 2
}

// RealizedVol returns the standard deviation of log returns over the
// window, scaled by sqrt(n). Zero until two observations exist.
func (v *VolatilityWindow) RealizedVol() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.prices) < 2 {
		return decimal.Decimal{}
	}
	returns := make([]float64, 0, len(v.prices)-1)
	for i := 1; i < len(v.prices); i++ {
		if v.prices[i-1] > 0 {
			returns = append(returns, math.Log(v.prices[i]/v.prices[i-1]))
		}
	}
	if len(returns) == 0 {
		return decimal.Decimal{}
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	vol := math.Sqrt(variance) * math.Sqrt(float64(len(returns)))
	return decimal.NewFromFloat(vol)
}
