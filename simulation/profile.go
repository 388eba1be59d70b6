package simulation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gridkernel/core"
)

// HoursPerDay is the column count of a profile table
const HoursPerDay = 24

// band is a half-open hour range [from, to) sharing one multiplier
type band struct {
	from, to int
	mult     float64
}

// dailyBands are the time-of-day multiplier steps per category. They are
// part of the wire behaviour: hosts compare against them, so values and
// boundaries must not drift.
var dailyBands = map[core.Category][]band{
	// solar-like bell, near zero at night
	core.Generator: {
		{0, 6, 0.05}, {6, 8, 0.30}, {8, 10, 0.60}, {10, 14, 1.00},
		{14, 16, 0.70}, {16, 18, 0.40}, {18, 20, 0.15}, {20, 24, 0.05},
	},
	// charge during the day, discharge into the evening
	core.Storage: {
		{0, 6, 0.40}, {6, 10, 0.50}, {10, 16, 0.80}, {16, 18, 0.90},
		{18, 22, 0.60}, {22, 24, 0.45},
	},
	// morning ramp, lunch dip, evening peak
	core.Consumer: {
		{0, 6, 0.30}, {6, 9, 0.70}, {9, 12, 0.85}, {12, 13, 0.60},
		{13, 17, 0.80}, {17, 21, 1.00}, {21, 24, 0.50},
	},
	core.Transformer: {
		{0, 24, 1.00},
	},
}

// Profile is the category x hour multiplier table
type Profile struct {
	table *mat.Dense
}

// DefaultProfile expands the daily bands into a dense table
func DefaultProfile() *Profile {
	table := mat.NewDense(core.NumCategories, HoursPerDay, nil)
	for c, bands := range dailyBands {
		for _, b := range bands {
			for h := b.from; h < b.to; h++ {
				table.Set(int(c), h, b.mult)
			}
		}
	}
	return &Profile{table: table}
}

// Multiplier returns the multiplier for a category at a decimal hour. Hours
// wrap modulo 24; each band applies from its lower bound inclusive.
func (p *Profile) Multiplier(c core.Category, hour float64) float64 {
	if !c.Valid() || math.IsNaN(hour) || math.IsInf(hour, 0) {
		return 0
	}
	h := math.Mod(hour, HoursPerDay)
	if h < 0 {
		h += HoursPerDay
	}
	col := int(math.Floor(h))
	if col >= HoursPerDay {
		col = 0
	}
	return p.table.At(int(c), col)
}

// Hourly returns the 24 multipliers of a category
func (p *Profile) Hourly(c core.Category) []float64 {
	if !c.Valid() {
		return make([]float64, HoursPerDay)
	}
	return mat.Row(nil, int(c), p.table)
}

// DailyMean is the average multiplier of a category over one day
func (p *Profile) DailyMean(c core.Category) float64 {
	return floats.Sum(p.Hourly(c)) / HoursPerDay
}

// Table exposes the read-only multiplier matrix
func (p *Profile) Table() mat.Matrix {
	return p.table
}

// Variation is the small sinusoidal swing within an hour
func Variation(amplitude, minute float64) float64 {
	return amplitude * math.Sin(2*math.Pi*minute/60)
}
