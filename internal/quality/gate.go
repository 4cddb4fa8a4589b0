package quality

import (
	"fmt"
	"math"
	"time"

	"glycoscope/internal/config"
	"glycoscope/internal/glycemic"
	"glycoscope/internal/model"
)

// maxPlausibleDelta is the largest physiological rate of change a real
// sensor trace shows between 5-minute samples, in mmol/L.
const maxPlausibleDelta = 0.35

// Evaluate grades a series for completeness, timeliness and sensor
// integrity before any analysis runs. The gate never mutates the
// series; it only produces the report. The returned decision is always
// the most severe applicable one.
func Evaluate(series *model.ReadingSeries, patient *model.PatientContext, cfg config.QualityConfig) model.QualityReport {
	report := model.QualityReport{Decision: model.DecisionProceed}
	readings := series.Readings
	if len(readings) == 0 {
		report.Decision = model.DecisionReject
		report.OverallGrade = "F"
		report.Advisories = append(report.Advisories, "empty series")
		return report
	}

	span := series.Span()
	report.CoverageDays = span.Hours() / 24

	expected := float64(span/cfg.NominalInterval) + 1
	if expected < 1 {
		expected = 1
	}
	report.CompletenessPct = float64(len(readings)) / expected * 100
	if report.CompletenessPct > 100 {
		report.CompletenessPct = 100
	}

	report.Gaps = findGaps(readings, cfg.MaxGap)
	report.StuckEpisodes = findStuckEpisodes(readings, cfg.StuckWindow, cfg.StuckTolerance)
	driftRate, driftPenalty := sustainedDrift(readings, patient, cfg)
	report.DriftRate = driftRate

	report.SignalScore = signalScore(readings, driftPenalty)

	// Decision ladder: collect every applicable decision and keep the
	// most severe, never silently the mildest.
	decision := decisionFromSignal(report.SignalScore, cfg)

	if len(report.Gaps) >= cfg.GapDowngradeCount {
		decision = decision.Downgrade(1)
		report.Advisories = append(report.Advisories,
			fmt.Sprintf("%d gaps above %s detected", len(report.Gaps), cfg.MaxGap))
	}
	if len(report.StuckEpisodes) > 0 {
		decision = model.WorseOf(decision, model.DecisionReplace)
		report.Advisories = append(report.Advisories,
			fmt.Sprintf("%d stuck-sensor episodes detected", len(report.StuckEpisodes)))
	}
	if report.CompletenessPct < cfg.MinCompletenessPct {
		decision = model.WorseOf(decision, model.DecisionReject)
		report.Advisories = append(report.Advisories,
			fmt.Sprintf("completeness %.1f%% below required %.1f%%", report.CompletenessPct, cfg.MinCompletenessPct))
	}
	if driftPenalty > 0 {
		report.Advisories = append(report.Advisories,
			fmt.Sprintf("sustained drift of %.2f mmol/L/h not explained by tagged events", driftRate))
	}

	report.Decision = decision
	report.OverallGrade = grade(report.SignalScore, decision)
	return report
}

func findGaps(readings []model.Reading, maxGap time.Duration) []model.Gap {
	var gaps []model.Gap
	for i := 1; i < len(readings); i++ {
		dt := readings[i].Timestamp.Sub(readings[i-1].Timestamp)
		if dt > maxGap {
			gaps = append(gaps, model.Gap{
				Start:    readings[i-1].Timestamp,
				End:      readings[i].Timestamp,
				Duration: dt,
			})
		}
	}
	return gaps
}

// findStuckEpisodes flags runs of bit-identical values (within the
// floating tolerance) lasting at least the stuck window.
func findStuckEpisodes(readings []model.Reading, window time.Duration, tolerance float64) []model.StuckEpisode {
	var episodes []model.StuckEpisode
	runStart := 0
	for i := 1; i <= len(readings); i++ {
		if i < len(readings) && math.Abs(readings[i].Value-readings[runStart].Value) <= tolerance {
			continue
		}
		last := i - 1
		if last > runStart {
			dur := readings[last].Timestamp.Sub(readings[runStart].Timestamp)
			if dur >= window {
				episodes = append(episodes, model.StuckEpisode{
					Start: readings[runStart].Timestamp,
					End:   readings[last].Timestamp,
					Value: readings[runStart].Value,
				})
			}
		}
		runStart = i
	}
	return episodes
}

// sustainedDrift fits a linear trend to rolling windows and reports the
// largest rate seen in two consecutive windows, excluding windows that
// overlap a tagged meal or exercise event. The second return is a
// signal-score penalty.
func sustainedDrift(readings []model.Reading, patient *model.PatientContext, cfg config.QualityConfig) (float64, float64) {
	if len(readings) < 4 {
		return 0, 0
	}
	step := cfg.DriftWindow / 6
	if step <= 0 {
		step = time.Hour
	}
	start := readings[0].Timestamp
	end := readings[len(readings)-1].Timestamp

	var maxRate float64
	prevExceeded := false
	sustained := false
	for t := start; t.Add(cfg.DriftWindow).Before(end) || t.Add(cfg.DriftWindow).Equal(end); t = t.Add(step) {
		winEnd := t.Add(cfg.DriftWindow)
		rate, ok := trendRate(readings, t, winEnd)
		if !ok {
			prevExceeded = false
			continue
		}
		exceeded := math.Abs(rate) > cfg.DriftMaxRate && !explainedByEvents(patient, t, winEnd, cfg.EventExplainWindow)
		if exceeded && prevExceeded {
			sustained = true
			if math.Abs(rate) > math.Abs(maxRate) {
				maxRate = rate
			}
		}
		prevExceeded = exceeded
	}
	if !sustained {
		return 0, 0
	}
	return maxRate, 15
}

func trendRate(readings []model.Reading, from, to time.Time) (float64, bool) {
	var xs, ys []float64
	for _, r := range readings {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		xs = append(xs, r.Timestamp.Sub(from).Hours())
		ys = append(ys, r.Value)
	}
	if len(xs) < 4 {
		return 0, false
	}
	slope, _ := linearFit(xs, ys)
	return slope, true
}

func explainedByEvents(patient *model.PatientContext, from, to time.Time, margin time.Duration) bool {
	if patient == nil {
		return false
	}
	for _, ev := range patient.Events {
		switch ev.Kind {
		case "meal", "exercise", "insulin":
		default:
			continue
		}
		if ev.Timestamp.After(from.Add(-margin)) && ev.Timestamp.Before(to.Add(margin)) {
			return true
		}
	}
	return false
}

// signalScore is a composite 0-100 score from noise, smoothness and
// agreement with overlapping reference readings.
func signalScore(readings []model.Reading, driftPenalty float64) float64 {
	score := 100.0
	score -= noisePenalty(readings)
	score -= jumpPenalty(readings)
	score -= referencePenalty(readings)
	score -= driftPenalty
	if score < 0 {
		score = 0
	}
	return score
}

// noisePenalty compares second-difference noise against overall signal
// spread, a cheap signal-to-noise estimate.
func noisePenalty(readings []model.Reading) float64 {
	if len(readings) < 3 {
		return 0
	}
	var ss float64
	var n int
	for i := 2; i < len(readings); i++ {
		d2 := readings[i].Value - 2*readings[i-1].Value + readings[i-2].Value
		ss += d2 * d2
		n++
	}
	noise := math.Sqrt(ss / float64(n))
	sd := glycemic.SD(readings)
	if sd == 0 {
		return 0
	}
	ratio := noise / sd
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 40
}

// jumpPenalty scores local smoothness: the fraction of sample-to-sample
// steps exceeding a plausible physiological rate.
func jumpPenalty(readings []model.Reading) float64 {
	if len(readings) < 2 {
		return 0
	}
	jumps := 0
	for i := 1; i < len(readings); i++ {
		dt := readings[i].Timestamp.Sub(readings[i-1].Timestamp).Minutes()
		if dt <= 0 || dt > 10 {
			continue
		}
		limit := maxPlausibleDelta * dt / 5
		if math.Abs(readings[i].Value-readings[i-1].Value) > limit {
			jumps++
		}
	}
	frac := float64(jumps) / float64(len(readings)-1)
	return frac * 30
}

// referencePenalty checks sensor agreement with any fingerstick
// readings included in the series.
func referencePenalty(readings []model.Reading) float64 {
	var totalRel float64
	var n int
	for i, r := range readings {
		if r.Flag != model.FlagReference {
			continue
		}
		sensor, ok := nearestSensorValue(readings, i)
		if !ok || r.Value == 0 {
			continue
		}
		totalRel += math.Abs(sensor-r.Value) / r.Value
		n++
	}
	if n == 0 {
		return 0
	}
	meanRel := totalRel / float64(n)
	if meanRel > 0.5 {
		meanRel = 0.5
	}
	return meanRel * 60
}

func nearestSensorValue(readings []model.Reading, i int) (float64, bool) {
	for d := 1; d < len(readings); d++ {
		if j := i - d; j >= 0 && readings[j].Flag != model.FlagReference {
			return readings[j].Value, true
		}
		if j := i + d; j < len(readings) && readings[j].Flag != model.FlagReference {
			return readings[j].Value, true
		}
	}
	return 0, false
}

func decisionFromSignal(score float64, cfg config.QualityConfig) model.Decision {
	switch {
	case score < cfg.SignalRejectBelow:
		return model.DecisionReject
	case score < cfg.SignalRepairBelow:
		return model.DecisionRepair
	case score < cfg.SignalWarnBelow:
		return model.DecisionWarn
	default:
		return model.DecisionProceed
	}
}

func grade(score float64, decision model.Decision) string {
	if decision == model.DecisionReject {
		return "F"
	}
	switch {
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 50:
		return "C"
	default:
		return "D"
	}
}

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
