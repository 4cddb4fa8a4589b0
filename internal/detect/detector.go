package detect

import (
	"context"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// Detector finds candidate timestamps where the statistical character
// of a series shifts. Detectors never talk to each other and must be
// deterministic: identical input and configuration produce identical
// candidates.
type Detector interface {
	Name() string
	Detect(ctx context.Context, series *model.ReadingSeries) ([]model.ChangePointCandidate, error)
}

// Enabled builds the configured detector set.
func Enabled(cfg *config.Config) []Detector {
	var out []Detector
	if cfg.Detectors.Statistical.Enabled {
		out = append(out, &Statistical{cfg: cfg.Detectors.Statistical})
	}
	if cfg.Detectors.Clustering.Enabled {
		out = append(out, &Clustering{cfg: cfg.Detectors.Clustering})
	}
	if cfg.Detectors.Gradient.Enabled {
		out = append(out, &Gradient{cfg: cfg.Detectors.Gradient})
	}
	if cfg.Detectors.Phase.Enabled {
		out = append(out, &Phase{cfg: cfg})
	}
	return out
}

// flaggedRun compresses a run of consecutive flagged positions into the
// single strongest one, so an extended exceedance yields one candidate.
type flaggedRun struct {
	bestIdx   int
	bestStat  float64
	active    bool
}

func (f *flaggedRun) add(idx int, stat float64) {
	if !f.active || stat > f.bestStat {
		f.bestIdx = idx
		f.bestStat = stat
	}
	f.active = true
}

func (f *flaggedRun) flush(emit func(idx int, stat float64)) {
	if f.active {
		emit(f.bestIdx, f.bestStat)
	}
	f.active = false
	f.bestStat = 0
}
