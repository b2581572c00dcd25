package volatility

import (
	"math"

	"github.com/shopspring/decimal"
)

// RealizedVol computes annualized SMA-std of log returns over a window.
// Used for regime filtering and preset selection, not for grid spacing
// (that is ATR's job).
type RealizedVol struct {
	period               int
	annualizationFactor  float64
	returns              []float64
	prevClose            *decimal.Decimal
	current              float64
}

// NewRealizedVol returns a calculator with the given bar window and
// annualization factor (e.g. 365*24*60 for 1-minute bars).
func NewRealizedVol(period int, annualizationFactor float64) *RealizedVol {
	return &RealizedVol{period: period, annualizationFactor: annualizationFactor}
}

// Update feeds one completed bar's close and returns the refreshed RV.
func (r *RealizedVol) Update(close decimal.Decimal) float64 {
	if r.prevClose != nil && (*r.prevClose).IsPositive() {
		cf, _ := close.Float64()
		pf, _ := (*r.prevClose).Float64()
		if pf > 0 && cf > 0 {
			logReturn := math.Log(cf / pf)
			r.returns = append(r.returns, logReturn)
			if max := r.period * 10; max > 0 && len(r.returns) > max {
				r.returns = r.returns[len(r.returns)-max:]
			}
			if len(r.returns) >= r.period {
				recent := r.returns[len(r.returns)-r.period:]
				r.current = stddev(recent) * math.Sqrt(r.annualizationFactor)
			}
		}
	}
	c := close
	r.prevClose = &c
	return r.current
}

func stddev(xs []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= n
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / n)
}

// Value returns the current annualized RV.
func (r *RealizedVol) Value() float64 { return r.current }

// Ready reports whether enough returns have been observed.
func (r *RealizedVol) Ready() bool { return len(r.returns) >= r.period }

// Reset clears all accumulated state.
func (r *RealizedVol) Reset() {
	r.returns = nil
	r.prevClose = nil
	r.current = 0
}
