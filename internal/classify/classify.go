package classify

import (
	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// Stability cutoffs from consensus guidance: a segment with CV under
// 25% and TIR above 70% is not brittle regardless of its dynamics.
const (
	stableCV  = 25.0
	stableTIR = 70.0
)

// Classify types one segment's dynamics. Rules are evaluated STABLE
// first, then Types I through V in order; the first match wins, which
// makes the overlap between rules a defined tie-break.
func Classify(bundle model.MetricBundle, cfg config.ClassifierConfig) model.BrittlenessProfile {
	profile := model.BrittlenessProfile{
		Type:         typeOf(bundle, cfg),
		Contributing: map[string]float64{},
	}

	rhythm := rhythmScore(bundle, cfg)
	variability := variabilityScore(bundle)
	chaos := chaosScore(bundle, cfg)
	profile.Contributing["rhythm"] = rhythm
	profile.Contributing["variability"] = variability
	profile.Contributing["chaos"] = chaos
	if bundle.Lyapunov.Valid {
		profile.Contributing["lyapunov"] = bundle.Lyapunov.Value
	}
	if bundle.Hurst.Valid {
		profile.Contributing["hurst"] = bundle.Hurst.Value
	}
	if bundle.EntropyNorm.Valid {
		profile.Contributing["entropy_norm"] = bundle.EntropyNorm.Value
	}

	w := cfg.Weights
	total := w.Rhythm + w.Variability + w.Chaos
	score := rhythm/30*w.Rhythm + variability/30*w.Variability + chaos/40*w.Chaos
	if total > 0 {
		score = score / total * 100
	}
	profile.Score = clamp(score, 0, 100)
	profile.Risk = riskOf(profile, bundle, cfg)
	return profile
}

// gateStable is the explicit consensus gate; a segment can also end up
// typed stable by falling through every dynamic rule, which is weaker
// evidence and does not count here.
func gateStable(b model.MetricBundle) bool {
	return b.CV < stableCV && b.TIR > stableTIR
}

func typeOf(b model.MetricBundle, cfg config.ClassifierConfig) model.BrittlenessType {
	if gateStable(b) {
		return model.BrittlenessStable
	}
	chaotic := b.Lyapunov.Valid && b.Lyapunov.Value > cfg.LyapunovChaotic
	switch {
	case chaotic && b.Hurst.Valid && b.Hurst.Value < cfg.HurstAntiPersist:
		return model.BrittlenessI
	case b.Periodicity.Valid && b.Periodicity.Value > cfg.PeriodicityScore && !chaotic:
		return model.BrittlenessII
	case b.EntropyNorm.Valid && b.EntropyNorm.Value > cfg.EntropyThreshold &&
		b.Autocorr.Valid && b.Autocorr.Value < cfg.AutocorrThreshold:
		return model.BrittlenessIII
	case b.Hurst.Valid && b.Hurst.Value >= cfg.HurstRandomLow && b.Hurst.Value <= cfg.HurstRandomHigh:
		return model.BrittlenessIV
	case b.SpectralDev.Valid && b.SpectralDev.Value > cfg.SpectralDevLimit:
		return model.BrittlenessV
	default:
		// No dynamic signature fired; the segment behaves like a
		// non-brittle one even if it missed the strict STABLE gate.
		return model.BrittlenessStable
	}
}

// rhythmScore (0-30) grows with spectral anomalies and loss of
// self-similarity in the daily pattern.
func rhythmScore(b model.MetricBundle, cfg config.ClassifierConfig) float64 {
	var s float64
	if b.SpectralDev.Valid && cfg.SpectralDevLimit > 0 {
		s += 0.5 * clamp(b.SpectralDev.Value/cfg.SpectralDevLimit, 0, 1)
	}
	if b.Periodicity.Valid {
		s += 0.5 * (1 - clamp(b.Periodicity.Value, 0, 1))
	}
	return s * 30
}

// variabilityScore (0-30) blends CV against the 50% extreme with time
// spent out of range.
func variabilityScore(b model.MetricBundle) float64 {
	s := 0.6*clamp(b.CV/50, 0, 1) + 0.4*clamp((100-b.TIR)/100, 0, 1)
	return s * 30
}

// chaosScore (0-40) blends divergence rate with normalized entropy.
func chaosScore(b model.MetricBundle, cfg config.ClassifierConfig) float64 {
	var s float64
	if b.Lyapunov.Valid && b.Lyapunov.Value > 0 {
		ref := cfg.LyapunovChaotic * 3
		if ref <= 0 {
			ref = 0.3
		}
		s += 0.5 * clamp(b.Lyapunov.Value/ref, 0, 1)
	}
	if b.EntropyNorm.Valid {
		s += 0.5 * clamp(b.EntropyNorm.Value, 0, 1)
	}
	return s * 40
}

// riskOf maps the score to a level. A segment that failed the explicit
// stability gate and whose chaos metrics were unavailable is reported
// unknown, never default low; that includes segments typed stable only
// because no dynamic rule fired.
func riskOf(p model.BrittlenessProfile, b model.MetricBundle, cfg config.ClassifierConfig) model.RiskLevel {
	chaosKnown := b.Lyapunov.Valid && b.Hurst.Valid && b.EntropyNorm.Valid
	if !gateStable(b) && !chaosKnown {
		return model.RiskUnknown
	}
	switch {
	case p.Score >= cfg.RiskCriticalAt:
		return model.RiskCritical
	case p.Score >= cfg.RiskHighAt:
		return model.RiskHigh
	case p.Score >= cfg.RiskModerateAt:
		return model.RiskModerate
	default:
		return model.RiskLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
