package glycemic

import (
	"context"
	"math"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// divergenceSteps bounds how far nearest-neighbor trajectories are
// followed when estimating exponential divergence.
const divergenceSteps = 12

// minNeighborSep keeps temporally adjacent embedding vectors from being
// chosen as nearest neighbors of each other.
const minNeighborSep = 10

// Lyapunov estimates the largest Lyapunov exponent per sample via
// nearest-neighbor trajectory divergence in a delay-1 phase-space
// embedding. Windows shorter than the configured chaos minimum return
// an invalid value, as do computations cut short by ctx.
func Lyapunov(ctx context.Context, readings []model.Reading, cfg config.MetricsConfig) model.MetricValue {
	n := len(readings)
	if n < cfg.ChaosMinPoints {
		return model.Invalid()
	}
	m := cfg.EmbeddingDim
	vectors := n - m + 1
	if vectors <= minNeighborSep+divergenceSteps {
		return model.Invalid()
	}

	values := make([]float64, n)
	for i, r := range readings {
		values[i] = r.Value
	}

	// Mean log distance per divergence step, averaged over all pairs.
	logDiv := make([]float64, divergenceSteps+1)
	counts := make([]int, divergenceSteps+1)

	limit := vectors - divergenceSteps
	for i := 0; i < limit; i++ {
		if i%256 == 0 && ctx != nil && ctx.Err() != nil {
			return model.Invalid()
		}
		j, d0 := nearestNeighbor(values, m, i, limit)
		if j < 0 || d0 == 0 {
			continue
		}
		for k := 0; k <= divergenceSteps; k++ {
			d := embedDistance(values, m, i+k, j+k)
			if d > 0 {
				logDiv[k] += math.Log(d)
				counts[k]++
			}
		}
	}

	xs := make([]float64, 0, divergenceSteps+1)
	ys := make([]float64, 0, divergenceSteps+1)
	for k := 0; k <= divergenceSteps; k++ {
		if counts[k] == 0 {
			continue
		}
		xs = append(xs, float64(k))
		ys = append(ys, logDiv[k]/float64(counts[k]))
	}
	if len(xs) < 3 {
		return model.Invalid()
	}
	slope, _ := linearFit(xs, ys)
	return model.Valid(slope)
}

func nearestNeighbor(values []float64, m, i, limit int) (int, float64) {
	best := -1
	bestDist := math.MaxFloat64
	for j := 0; j < limit; j++ {
		sep := i - j
		if sep < 0 {
			sep = -sep
		}
		if sep < minNeighborSep {
			continue
		}
		d := embedDistance(values, m, i, j)
		if d < bestDist {
			bestDist = d
			best = j
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, bestDist
}

// embedDistance is the Euclidean distance between delay-1 embedding
// vectors starting at i and j.
func embedDistance(values []float64, m, i, j int) float64 {
	var sum float64
	for k := 0; k < m; k++ {
		d := values[i+k] - values[j+k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Hurst estimates the Hurst exponent by rescaled-range analysis over at
// least the configured number of sub-window sizes, reporting the slope
// of log(R/S) against log(n).
func Hurst(readings []model.Reading, cfg config.MetricsConfig) model.MetricValue {
	n := len(readings)
	if n < cfg.ChaosMinPoints {
		return model.Invalid()
	}
	values := make([]float64, n)
	for i, r := range readings {
		values[i] = r.Value
	}

	var logN, logRS []float64
	size := n / 2
	for size >= 8 {
		rs := averageRescaledRange(values, size)
		if rs > 0 {
			logN = append(logN, math.Log(float64(size)))
			logRS = append(logRS, math.Log(rs))
		}
		size /= 2
	}
	if len(logN) < cfg.HurstMinDivisions {
		return model.Invalid()
	}
	slope, _ := linearFit(logN, logRS)
	return model.Valid(slope)
}

func averageRescaledRange(values []float64, size int) float64 {
	blocks := len(values) / size
	if blocks == 0 {
		return 0
	}
	var sum float64
	var count int
	for b := 0; b < blocks; b++ {
		block := values[b*size : (b+1)*size]
		rs := rescaledRange(block)
		if rs > 0 {
			sum += rs
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func rescaledRange(block []float64) float64 {
	n := len(block)
	var mean float64
	for _, v := range block {
		mean += v
	}
	mean /= float64(n)

	var cum, minCum, maxCum, ss float64
	for _, v := range block {
		dev := v - mean
		cum += dev
		if cum < minCum {
			minCum = cum
		}
		if cum > maxCum {
			maxCum = cum
		}
		ss += dev * dev
	}
	s := math.Sqrt(ss / float64(n))
	if s == 0 {
		return 0
	}
	return (maxCum - minCum) / s
}

// SampleEntropy computes embedding-based sample entropy with template
// length m and tolerance r = rFactor*SD, plus a 0-1 normalized form.
func SampleEntropy(readings []model.Reading, cfg config.MetricsConfig) (raw, normalized model.MetricValue) {
	n := len(readings)
	if n < cfg.ChaosMinPoints {
		return model.Invalid(), model.Invalid()
	}
	m := cfg.EntropyM
	r := cfg.EntropyRFactor * SD(readings)
	if r == 0 {
		// Constant window carries no information.
		return model.Valid(0), model.Valid(0)
	}
	values := make([]float64, n)
	for i, rd := range readings {
		values[i] = rd.Value
	}

	b := templateMatches(values, m, r)
	a := templateMatches(values, m+1, r)
	if b == 0 {
		return model.Invalid(), model.Invalid()
	}

	// Upper bound used both as the A==0 cap and for normalization.
	maxEn := math.Log(float64(n-m)*float64(n-m-1)) - math.Log(2)
	var en float64
	if a == 0 {
		en = maxEn
	} else {
		en = -math.Log(float64(a) / float64(b))
	}
	norm := en / maxEn
	if norm > 1 {
		norm = 1
	}
	if norm < 0 {
		norm = 0
	}
	return model.Valid(en), model.Valid(norm)
}

func templateMatches(values []float64, m int, r float64) int {
	n := len(values)
	count := 0
	for i := 0; i+m <= n; i++ {
		for j := i + 1; j+m <= n; j++ {
			if chebyshevWithin(values[i:i+m], values[j:j+m], r) {
				count++
			}
		}
	}
	return count
}

func chebyshevWithin(a, b []float64, r float64) bool {
	for k := range a {
		d := a[k] - b[k]
		if d < 0 {
			d = -d
		}
		if d > r {
			return false
		}
	}
	return true
}
