package insight

import (
	"fmt"
	"math"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// trackedMetric names a scalar to compare across segments, with the
// direction that counts as improvement.
type trackedMetric struct {
	name       string
	get        func(model.MetricBundle) float64
	higherGood bool
}

var trackedMetrics = []trackedMetric{
	{"tir", func(b model.MetricBundle) float64 { return b.TIR }, true},
	{"tar2", func(b model.MetricBundle) float64 { return b.TAR2 }, false},
	{"tbr2", func(b model.MetricBundle) float64 { return b.TBR2 }, false},
	{"cv", func(b model.MetricBundle) float64 { return b.CV }, false},
	{"sd", func(b model.MetricBundle) float64 { return b.SD }, false},
	{"mage", func(b model.MetricBundle) float64 { return b.MAGE }, false},
	{"gmi", func(b model.MetricBundle) float64 { return b.GMI }, false},
}

// Summarize compares ordered segments pairwise (adjacent plus first
// against last) and labels the overall trend. Purely derived from
// already-computed segments; no side effects.
func Summarize(segments []model.Segment, patient *model.PatientContext, cfg config.InsightConfig) model.CrossSegmentSummary {
	out := model.CrossSegmentSummary{Trend: "stable"}
	if len(segments) < 2 {
		if len(segments) == 1 {
			out.Notes = append(out.Notes, "single segment; no cross-segment comparison available")
		}
		return out
	}

	for i := 1; i < len(segments); i++ {
		pair := comparePair(segments[i-1], segments[i], cfg.NoOpBandPct)
		out.Pairs = append(out.Pairs, pair)
		out.Improved += pair.Improved
		out.Worsened += pair.Worsened
	}
	fvl := comparePair(segments[0], segments[len(segments)-1], cfg.NoOpBandPct)
	out.FirstVsLast = &fvl

	out.Trend = trendLabel(out.Improved, out.Worsened)
	out.Notes = append(out.Notes, trendNote(fvl))
	if patient != nil && patient.Diagnosis != "" {
		out.Notes = append(out.Notes, fmt.Sprintf("diagnosis context: %s", patient.Diagnosis))
	}
	for _, seg := range segments {
		if seg.Brittleness.Risk == model.RiskCritical {
			out.Notes = append(out.Notes,
				fmt.Sprintf("segment %d carries critical brittleness risk (%s)", seg.Index, seg.Brittleness.Type))
		}
	}
	return out
}

func comparePair(from, to model.Segment, noopBand float64) model.PairComparison {
	pair := model.PairComparison{FromSegment: from.Index, ToSegment: to.Index}
	for _, m := range trackedMetrics {
		fv := m.get(from.Metrics)
		tv := m.get(to.Metrics)
		delta := model.MetricDelta{Metric: m.name, From: fv, To: tv}
		delta.DeltaPct = relativeDelta(fv, tv)
		delta.Direction = direction(delta.DeltaPct, m.higherGood, noopBand)
		switch delta.Direction {
		case "improved":
			pair.Improved++
		case "worsened":
			pair.Worsened++
		default:
			pair.Unchanged++
		}
		pair.Deltas = append(pair.Deltas, delta)
	}
	return pair
}

func relativeDelta(from, to float64) float64 {
	if from == 0 {
		if to == 0 {
			return 0
		}
		// Capped so a from-zero change stays JSON-representable.
		return 100 * float64(sign(to))
	}
	return (to - from) / math.Abs(from) * 100
}

func direction(deltaPct float64, higherGood bool, noopBand float64) string {
	if math.Abs(deltaPct) <= noopBand {
		return "unchanged"
	}
	rising := deltaPct > 0
	if rising == higherGood {
		return "improved"
	}
	return "worsened"
}

func trendLabel(improved, worsened int) string {
	switch {
	case improved == 0 && worsened == 0:
		return "stable"
	case improved > worsened*2:
		return "improving"
	case worsened > improved*2:
		return "deteriorating"
	default:
		return "mixed"
	}
}

func trendNote(fvl model.PairComparison) string {
	return fmt.Sprintf("first vs last segment: %d metrics improved, %d worsened, %d unchanged",
		fvl.Improved, fvl.Worsened, fvl.Unchanged)
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
