package glycemic

import (
	"context"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// ComputeBundle assembles every metric for one window. Chaos metrics
// honor ctx: a timed-out computation yields invalid values, never a
// partial number. Safe to call concurrently on disjoint windows.
func ComputeBundle(ctx context.Context, readings []model.Reading, cfg config.MetricsConfig) model.MetricBundle {
	bundle := model.MetricBundle{
		Count: len(readings),
		Mean:  Mean(readings),
		SD:    SD(readings),
		CV:    CV(readings),
		MAGE:  MAGE(readings),
		GMI:   GMI(readings),
	}
	bands := TimeInBands(readings)
	bundle.TIR = bands.TIR
	bundle.TAR1 = bands.TAR1
	bundle.TAR2 = bands.TAR2
	bundle.TBR1 = bands.TBR1
	bundle.TBR2 = bands.TBR2

	bundle.Autocorr = Autocorrelation(readings)
	bundle.Periodicity = Periodicity(readings)
	bundle.SpectralDev = SpectralDeviation(readings)

	if ctx != nil && ctx.Err() != nil {
		return bundle
	}
	bundle.Lyapunov = Lyapunov(ctx, readings, cfg)
	bundle.Hurst = Hurst(readings, cfg)
	bundle.Entropy, bundle.EntropyNorm = SampleEntropy(readings, cfg)
	return bundle
}

// WindowBetween clamps [start, end) to the slice bounds and returns
// the sub-window. The returned slice aliases the input.
func WindowBetween(readings []model.Reading, start, end int) []model.Reading {
	if start < 0 {
		start = 0
	}
	if end > len(readings) {
		end = len(readings)
	}
	if start >= end {
		return nil
	}
	return readings[start:end]
}
