package glycemic

import (
	"math"
	"time"

	"glycoscope/internal/model"
)

// minRhythmPoints is the smallest window the autocorrelation and
// spectral estimates accept.
const minRhythmPoints = 32

// Autocorrelation returns the lag-1 autocorrelation of the window.
func Autocorrelation(readings []model.Reading) model.MetricValue {
	if len(readings) < minRhythmPoints {
		return model.Invalid()
	}
	values := detrended(readings)
	acf := autocorrAt(values, 1)
	return model.Valid(acf)
}

// Periodicity scores how strongly the window repeats itself: the
// highest autocorrelation peak at a lag of at least three samples,
// clamped to [0, 1].
func Periodicity(readings []model.Reading) model.MetricValue {
	n := len(readings)
	if n < minRhythmPoints {
		return model.Invalid()
	}
	values := detrended(readings)
	maxLag := n / 2
	best := 0.0
	prev := autocorrAt(values, 2)
	cur := autocorrAt(values, 3)
	for lag := 3; lag < maxLag; lag++ {
		next := autocorrAt(values, lag+1)
		if cur > prev && cur >= next && cur > best {
			best = cur
		}
		prev, cur = cur, next
	}
	if best < 0 {
		best = 0
	}
	if best > 1 {
		best = 1
	}
	return model.Valid(best)
}

// physiologicCycles are periods explained by meal and sleep rhythm.
var physiologicCycles = []time.Duration{
	24 * time.Hour,
	12 * time.Hour,
	8 * time.Hour,
	6 * time.Hour,
	4 * time.Hour,
}

// SpectralDeviation scans the spectrum for a dominant period and
// reports its power relative to the spectrum mean when that period is
// not close to a known meal/sleep cycle. Dominant cycles explained by
// physiology score zero.
func SpectralDeviation(readings []model.Reading) model.MetricValue {
	n := len(readings)
	if n < minRhythmPoints*2 {
		return model.Invalid()
	}
	dt := medianInterval(readings)
	if dt <= 0 {
		return model.Invalid()
	}
	span := readings[n-1].Timestamp.Sub(readings[0].Timestamp)
	values := detrended(readings)

	// Scan periods from 2h up to half the window span.
	minPeriod := 2 * time.Hour
	maxPeriod := span / 2
	if maxPeriod <= minPeriod {
		return model.Invalid()
	}

	var powers []float64
	var periods []time.Duration
	for p := minPeriod; p <= maxPeriod; p += 30 * time.Minute {
		freq := dt.Seconds() / p.Seconds()
		powers = append(powers, goertzelPower(values, freq))
		periods = append(periods, p)
	}

	var meanPower float64
	bestIdx := 0
	for i, pw := range powers {
		meanPower += pw
		if pw > powers[bestIdx] {
			bestIdx = i
		}
	}
	meanPower /= float64(len(powers))
	if meanPower == 0 {
		return model.Valid(0)
	}

	dominant := periods[bestIdx]
	for _, cycle := range physiologicCycles {
		rel := math.Abs(dominant.Seconds()-cycle.Seconds()) / cycle.Seconds()
		if rel < 0.15 {
			return model.Valid(0)
		}
	}
	return model.Valid(powers[bestIdx] / meanPower)
}

// goertzelPower evaluates signal power at a single normalized frequency
// (cycles per sample) without a full transform.
func goertzelPower(values []float64, freq float64) float64 {
	omega := 2 * math.Pi * freq
	coeff := 2 * math.Cos(omega)
	var s0, s1, s2 float64
	for _, v := range values {
		s0 = v + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	return power / float64(len(values))
}

func autocorrAt(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || lag >= n {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += v * v
	}
	if variance == 0 {
		return 0
	}
	var cov float64
	for i := 0; i+lag < n; i++ {
		cov += values[i] * values[i+lag]
	}
	return cov / variance
}

func detrended(readings []model.Reading) []float64 {
	mean := Mean(readings)
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = r.Value - mean
	}
	return out
}

func medianInterval(readings []model.Reading) time.Duration {
	if len(readings) < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, len(readings)-1)
	for i := 1; i < len(readings); i++ {
		deltas = append(deltas, readings[i].Timestamp.Sub(readings[i-1].Timestamp))
	}
	for i := 1; i < len(deltas); i++ {
		for j := i; j > 0 && deltas[j] < deltas[j-1]; j-- {
			deltas[j], deltas[j-1] = deltas[j-1], deltas[j]
		}
	}
	return deltas[len(deltas)/2]
}
