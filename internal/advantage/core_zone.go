package advantage

import (
	"sort"
	"time"
)

// FillDensityCalculator bins fills by price and reports total quantity
// per bin within a trailing window, used to locate where recent trading
// has concentrated.
type FillDensityCalculator struct {
	BinSize     float64
	WindowHours int

	records map[int][]fillRecord
}

type fillRecord struct {
	ts  time.Time
	qty float64
}

// NewFillDensityCalculator returns a calculator with the spec defaults:
// a 50-unit price bin and a 48h window.
func NewFillDensityCalculator() *FillDensityCalculator {
	return &FillDensityCalculator{BinSize: 50.0, WindowHours: 48, records: map[int][]fillRecord{}}
}

func (f *FillDensityCalculator) binOf(price float64) int {
	return int(price / f.BinSize)
}

// RecordFill bins one fill by price.
func (f *FillDensityCalculator) RecordFill(ts time.Time, price, qty float64) {
	idx := f.binOf(price)
	f.records[idx] = append(f.records[idx], fillRecord{ts, qty})
}

// Density returns {bin_idx: total_qty} for fills within the window.
func (f *FillDensityCalculator) Density(now time.Time) map[int]float64 {
	cutoff := now.Add(-time.Duration(f.WindowHours) * time.Hour)
	density := map[int]float64{}
	for idx, recs := range f.records {
		var sum float64
		var any bool
		for _, r := range recs {
			if r.ts.After(cutoff) {
				sum += r.qty
				any = true
			}
		}
		if any {
			density[idx] = sum
		}
	}
	return density
}

// CleanupOldRecords drops fill records outside the window.
func (f *FillDensityCalculator) CleanupOldRecords(now time.Time) {
	cutoff := now.Add(-time.Duration(f.WindowHours) * time.Hour)
	for idx, recs := range f.records {
		var kept []fillRecord
		for _, r := range recs {
			if r.ts.After(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(f.records, idx)
		} else {
			f.records[idx] = kept
		}
	}
}

// CoreZoneCalculator derives the adaptive core zone: the price band
// containing zone_cover of recent fill volume, with hysteresis against
// small shifts (changes under zone_change_threshold keep the prior zone).
type CoreZoneCalculator struct {
	ZoneCover           float64
	ZoneChangeThreshold float64
	BinSize             float64
	WindowHours         int

	W1, W2, W3 float64 // fill_density, inv_revert_score, breakeven_gain

	density *FillDensityCalculator

	coreLow, coreHigh *float64
}

// NewCoreZoneCalculator returns a calculator with the spec defaults:
// 65% coverage, 10% change-hysteresis threshold.
func NewCoreZoneCalculator() *CoreZoneCalculator {
	c := &CoreZoneCalculator{
		ZoneCover:           0.65,
		ZoneChangeThreshold: 0.10,
		BinSize:             50.0,
		WindowHours:         48,
		W1:                  0.4, W2: 0.3, W3: 0.3,
	}
	c.density = &FillDensityCalculator{BinSize: c.BinSize, WindowHours: c.WindowHours, records: map[int][]fillRecord{}}
	return c
}

// RecordFill bins a fill for density tracking.
func (c *CoreZoneCalculator) RecordFill(ts time.Time, price, qty float64) {
	c.density.RecordFill(ts, price, qty)
}

// CalculateCoreZone recomputes (or holds) the core zone given the outer
// range and the current reversion/breakeven sub-scores. Returns the
// outer range verbatim when there is no fill history yet.
func (c *CoreZoneCalculator) CalculateCoreZone(now time.Time, outerLow, outerHigh float64, invRevertScore, breakevenGain float64) (float64, float64) {
	density := c.density.Density(now)
	if len(density) == 0 {
		return outerLow, outerHigh
	}

	var totalQty float64
	for _, q := range density {
		totalQty += q
	}
	if totalQty <= 0 {
		return outerLow, outerHigh
	}

	type binQty struct {
		idx int
		qty float64
	}
	sorted := make([]binQty, 0, len(density))
	for idx, q := range density {
		sorted = append(sorted, binQty{idx, q})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].qty > sorted[j].qty })

	var covered float64
	var selected []int
	for _, b := range sorted {
		selected = append(selected, b.idx)
		covered += b.qty
		if covered/totalQty >= c.ZoneCover {
			break
		}
	}
	if len(selected) == 0 {
		return outerLow, outerHigh
	}

	minBin, maxBin := selected[0], selected[0]
	for _, idx := range selected {
		if idx < minBin {
			minBin = idx
		}
		if idx > maxBin {
			maxBin = idx
		}
	}

	newLow := maxFloat(outerLow, float64(minBin)*c.BinSize)
	newHigh := minFloat(outerHigh, float64(maxBin+1)*c.BinSize)

	if c.coreLow != nil && c.coreHigh != nil {
		oldRange := *c.coreHigh - *c.coreLow
		newRange := newHigh - newLow
		if oldRange > 0 {
			changeRatio := abs(newRange-oldRange) / oldRange
			if changeRatio < c.ZoneChangeThreshold {
				return *c.coreLow, *c.coreHigh
			}
		}
	}

	c.coreLow, c.coreHigh = &newLow, &newHigh
	return newLow, newHigh
}

// AdvScore scores a specific price by its local fill density plus the
// inventory-reversion and breakeven-gain sub-scores.
func (c *CoreZoneCalculator) AdvScore(price float64, now time.Time, invRevertScore, breakevenGain float64) float64 {
	density := c.density.Density(now)
	var totalQty float64
	for _, q := range density {
		totalQty += q
	}
	if totalQty <= 0 {
		totalQty = 1
	}

	idx := c.density.binOf(price)
	binQty := density[idx]

	densityScore := clampMax1(binQty / (totalQty * 0.1))

	return c.W1*densityScore + c.W2*invRevertScore + c.W3*breakevenGain
}

// CoreZone returns the current zone, or (nil, nil) if never computed.
func (c *CoreZoneCalculator) CoreZone() (*float64, *float64) {
	return c.coreLow, c.coreHigh
}

// Reset discards the core zone and all fill-density history.
func (c *CoreZoneCalculator) Reset() {
	c.coreLow, c.coreHigh = nil, nil
	c.density = &FillDensityCalculator{BinSize: c.BinSize, WindowHours: c.WindowHours, records: map[int][]fillRecord{}}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
