package detect

import (
	"context"

	"glycoscope/internal/classify"
	"glycoscope/internal/config"
	"glycoscope/internal/glycemic"
	"glycoscope/internal/model"
)

// Phase types each rolling 12-hour window's dynamics and emits a
// candidate wherever the brittleness type flips between adjacent
// windows. Windows too short for the chaos metrics are skipped rather
// than typed on fabricated numbers.
type Phase struct {
	cfg *config.Config
}

func (d *Phase) Name() string { return "phase" }

func (d *Phase) Detect(ctx context.Context, series *model.ReadingSeries) ([]model.ChangePointCandidate, error) {
	readings := series.Readings
	if len(readings) == 0 {
		return nil, nil
	}
	window := d.cfg.Detectors.Phase.Window
	step := d.cfg.Detectors.Phase.Step

	var out []model.ChangePointCandidate
	var prevType model.BrittlenessType
	havePrev := false

	start := readings[0].Timestamp
	end := readings[len(readings)-1].Timestamp
	lo := 0
	for t := start; !t.Add(window).After(end); t = t.Add(step) {
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		winEnd := t.Add(window)
		for lo < len(readings) && readings[lo].Timestamp.Before(t) {
			lo++
		}
		hi := lo
		for hi < len(readings) && readings[hi].Timestamp.Before(winEnd) {
			hi++
		}
		win := readings[lo:hi]
		if len(win) < d.cfg.Metrics.ChaosMinPoints {
			continue
		}
		bundle := glycemic.ComputeBundle(ctx, win, d.cfg.Metrics)
		cur := classify.Classify(bundle, d.cfg.Classifier).Type
		if havePrev && cur != prevType {
			out = append(out, model.ChangePointCandidate{
				Timestamp:  t,
				Source:     d.Name(),
				Confidence: 0.8,
			})
		}
		prevType = cur
		havePrev = true
	}
	return out, nil
}
