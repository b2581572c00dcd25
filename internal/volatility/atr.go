// Package volatility derives the vol primitives (ATR, realized vol, spike
// state) the grid generator and risk triggers consume. Every calculator
// updates on bar close and exposes a read-only snapshot.
package volatility

import "github.com/shopspring/decimal"

// ATR computes the Average True Range: the SMA of True Range over a window.
// True Range = max(high-low, |high-prevClose|, |low-prevClose|).
type ATR struct {
	period int
	window []decimal.Decimal
	prevClose *decimal.Decimal
	current decimal.Decimal
}

// NewATR returns an ATR calculator with the given SMA period (spec default 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Update feeds one completed bar and returns the refreshed ATR value.
func (a *ATR) Update(high, low, close decimal.Decimal) decimal.Decimal {
	var tr decimal.Decimal
	if a.prevClose == nil {
		tr = high.Sub(low)
	} else {
		hl := high.Sub(low)
		hc := high.Sub(*a.prevClose).Abs()
		lc := low.Sub(*a.prevClose).Abs()
		tr = decimal.Max(hl, hc, lc)
	}

	a.window = append(a.window, tr)
	if len(a.window) > a.period*10 && a.period > 0 {
		a.window = a.window[len(a.window)-a.period*10:]
	}
	pc := close
	a.prevClose = &pc

	n := a.period
	if len(a.window) < n {
		n = len(a.window)
	}
	if n == 0 {
		return decimal.Zero
	}
	recent := a.window[len(a.window)-n:]
	sum := decimal.Zero
	for _, v := range recent {
		sum = sum.Add(v)
	}
	a.current = sum.Div(decimal.NewFromInt(int64(n)))
	return a.current
}

// Value returns the current ATR without updating it.
func (a *ATR) Value() decimal.Decimal { return a.current }

// Ready reports whether enough bars have been observed to fill the window.
func (a *ATR) Ready() bool { return len(a.window) >= a.period }

// Reset clears all accumulated state.
func (a *ATR) Reset() {
	a.window = nil
	a.prevClose = nil
	a.current = decimal.Zero
}
