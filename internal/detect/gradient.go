package detect

import (
	"context"
	"math"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// gradientSDWindow is how many trailing differences feed the dynamic
// threshold.
const gradientSDWindow = 48

// Gradient flags positions where the first difference of a smoothed
// series exceeds a rolling-SD-scaled threshold.
type Gradient struct {
	cfg config.GradientConfig
}

func (d *Gradient) Name() string { return "gradient" }

func (d *Gradient) Detect(ctx context.Context, series *model.ReadingSeries) ([]model.ChangePointCandidate, error) {
	readings := series.Readings
	n := len(readings)
	if n < d.cfg.SmoothSpan+gradientSDWindow {
		return nil, nil
	}
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	smoothed := movingAverage(readings, d.cfg.SmoothSpan)
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = smoothed[i] - smoothed[i-1]
	}

	var out []model.ChangePointCandidate
	var run flaggedRun
	emit := func(idx int, stat float64) {
		out = append(out, model.ChangePointCandidate{
			Timestamp:  readings[idx+1].Timestamp,
			Source:     d.Name(),
			Confidence: math.Min(1, stat),
		})
	}

	lastFlagged := -1
	for i := gradientSDWindow; i < len(diffs); i++ {
		sd := rollingSD(diffs[i-gradientSDWindow : i])
		if sd == 0 {
			run.flush(emit)
			lastFlagged = -1
			continue
		}
		threshold := sd * d.cfg.Multiplier
		mag := math.Abs(diffs[i])
		if mag > threshold {
			if lastFlagged >= 0 && i-lastFlagged > 1 {
				run.flush(emit)
			}
			run.add(i, mag/threshold-1)
			lastFlagged = i
		} else if lastFlagged >= 0 {
			run.flush(emit)
			lastFlagged = -1
		}
	}
	run.flush(emit)
	return out, nil
}

func movingAverage(readings []model.Reading, span int) []float64 {
	n := len(readings)
	half := span / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= n {
			hi = n - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += readings[j].Value
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func rollingSD(window []float64) float64 {
	n := len(window)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(n)
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
