package detect

import (
	"context"
	"math"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// Statistical slides two adjacent windows across the series and flags
// positions where a Welch two-sample t-test rejects equal means.
type Statistical struct {
	cfg config.StatisticalConfig
}

func (d *Statistical) Name() string { return "statistical" }

func (d *Statistical) Detect(ctx context.Context, series *model.ReadingSeries) ([]model.ChangePointCandidate, error) {
	readings := series.Readings
	n := len(readings)
	window := d.cfg.MinWindow
	if frac := int(float64(n) * d.cfg.WindowFraction); frac > window {
		window = frac
	}
	if n < 2*window {
		return nil, nil
	}
	step := window / 4
	if step < 1 {
		step = 1
	}

	var out []model.ChangePointCandidate
	var run flaggedRun
	emit := func(idx int, stat float64) {
		out = append(out, model.ChangePointCandidate{
			Timestamp:  readings[idx].Timestamp,
			Source:     d.Name(),
			Confidence: confidenceFromT(stat, d.cfg.TThreshold),
		})
	}

	lastFlagged := -1
	for i := window; i+window <= n; i += step {
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t := welchT(readings[i-window:i], readings[i:i+window])
		if math.Abs(t) > d.cfg.TThreshold {
			// Positions within one window of each other belong to the
			// same shift.
			if lastFlagged >= 0 && i-lastFlagged > window {
				run.flush(emit)
			}
			run.add(i, math.Abs(t))
			lastFlagged = i
		}
	}
	run.flush(emit)
	return out, nil
}

func confidenceFromT(t, threshold float64) float64 {
	c := t / (2 * threshold)
	if c > 1 {
		c = 1
	}
	return c
}

// welchT computes the unequal-variance t statistic between two windows.
func welchT(a, b []model.Reading) float64 {
	ma, va := meanVar(a)
	mb, vb := meanVar(b)
	den := math.Sqrt(va/float64(len(a)) + vb/float64(len(b)))
	if den == 0 {
		return 0
	}
	return (mb - ma) / den
}

func meanVar(readings []model.Reading) (mean, variance float64) {
	n := len(readings)
	if n == 0 {
		return 0, 0
	}
	for _, r := range readings {
		mean += r.Value
	}
	mean /= float64(n)
	if n < 2 {
		return mean, 0
	}
	for _, r := range readings {
		d := r.Value - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	return mean, variance
}
