package glycemic

import (
	"math"

	"glycoscope/internal/model"
)

// Mean returns the arithmetic mean glucose of a window in mmol/L.
func Mean(readings []model.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += r.Value
	}
	return sum / float64(len(readings))
}

// SD returns the sample standard deviation, computed with Welford's
// update so long windows stay numerically stable.
func SD(readings []model.Reading) float64 {
	if len(readings) < 2 {
		return 0
	}
	var n int
	var mean float64
	var m2 float64
	for _, r := range readings {
		n++
		diff := r.Value - mean
		mean += diff / float64(n)
		m2 += diff * (r.Value - mean)
	}
	return math.Sqrt(m2 / float64(n-1))
}

// CV is the coefficient of variation in percent.
func CV(readings []model.Reading) float64 {
	m := Mean(readings)
	if m == 0 {
		return 0
	}
	return SD(readings) / m * 100
}

// GMI estimates HbA1c from mean glucose using the published regression
// coefficients. It is an estimate, not a lab value.
func GMI(readings []model.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	meanMgdl := model.MmolLToMgDL(Mean(readings))
	return 3.31 + 0.02392*meanMgdl
}

// linearFit returns slope and intercept of a least-squares line through
// (x[i], y[i]).
func linearFit(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	if n < 2 {
		return 0, 0
	}
	var sx, sy, sxx, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}
