package classify

import (
	"testing"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

func classifierConfig() config.ClassifierConfig {
	return config.DefaultConfig().Classifier
}

func baseBundle() model.MetricBundle {
	return model.MetricBundle{
		Count:       500,
		Mean:        8.5,
		SD:          3.2,
		CV:          38,
		TIR:         52,
		Lyapunov:    model.Valid(0.02),
		Hurst:       model.Valid(0.7),
		Entropy:     model.Valid(1.1),
		EntropyNorm: model.Valid(0.5),
		Autocorr:    model.Valid(0.6),
		Periodicity: model.Valid(0.3),
		SpectralDev: model.Valid(0.4),
	}
}

func TestStableGateOverridesDynamics(t *testing.T) {
	b := baseBundle()
	b.CV = 20
	b.TIR = 80
	// Even a chaotic signature cannot make a well-controlled segment
	// brittle.
	b.Lyapunov = model.Valid(0.5)
	b.Hurst = model.Valid(0.1)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessStable {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestChaoticType(t *testing.T) {
	b := baseBundle()
	b.Lyapunov = model.Valid(0.25)
	b.Hurst = model.Valid(0.2)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessI {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestQuasiPeriodicType(t *testing.T) {
	b := baseBundle()
	b.Periodicity = model.Valid(0.85)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessII {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestChaoticBeatsQuasiPeriodic(t *testing.T) {
	// Rule order is part of the contract: a chaotic segment that also
	// looks periodic is Type I.
	b := baseBundle()
	b.Lyapunov = model.Valid(0.25)
	b.Hurst = model.Valid(0.2)
	b.Periodicity = model.Valid(0.85)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessI {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestRandomType(t *testing.T) {
	b := baseBundle()
	b.EntropyNorm = model.Valid(0.9)
	b.Autocorr = model.Valid(0.1)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessIII {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestMemoryLossType(t *testing.T) {
	b := baseBundle()
	b.Hurst = model.Valid(0.5)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessIV {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestFrequencyDisruptedType(t *testing.T) {
	b := baseBundle()
	b.SpectralDev = model.Valid(3.0)

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessV {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestNoSignatureDefaultsToStable(t *testing.T) {
	p := Classify(baseBundle(), classifierConfig())
	if p.Type != model.BrittlenessStable {
		t.Fatalf("type: %s", p.Type)
	}
}

func TestUnknownRiskWhenChaosMetricsInvalid(t *testing.T) {
	b := baseBundle()
	b.Periodicity = model.Valid(0.85)
	b.Lyapunov = model.Invalid()

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessII {
		t.Fatalf("type: %s", p.Type)
	}
	if p.Risk != model.RiskUnknown {
		t.Fatalf("risk: %s", p.Risk)
	}
}

func TestUnknownRiskOnFallthroughStable(t *testing.T) {
	// Out-of-control numbers with no usable chaos metrics: no dynamic
	// rule can fire, so the type falls through to stable, but the risk
	// must still be unknown rather than scored.
	b := model.MetricBundle{
		Count:       120,
		Mean:        9.8,
		SD:          3.4,
		CV:          35,
		TIR:         40,
		Lyapunov:    model.Invalid(),
		Hurst:       model.Invalid(),
		Entropy:     model.Invalid(),
		EntropyNorm: model.Invalid(),
		Autocorr:    model.Valid(0.6),
		Periodicity: model.Valid(0.3),
		SpectralDev: model.Valid(0.4),
	}

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessStable {
		t.Fatalf("type: %s", p.Type)
	}
	if p.Risk != model.RiskUnknown {
		t.Fatalf("risk: %s", p.Risk)
	}
}

func TestGateStableKeepsNumericRiskWithoutChaosMetrics(t *testing.T) {
	b := baseBundle()
	b.CV = 18
	b.TIR = 82
	b.Lyapunov = model.Invalid()
	b.Hurst = model.Invalid()
	b.EntropyNorm = model.Invalid()

	p := Classify(b, classifierConfig())
	if p.Type != model.BrittlenessStable {
		t.Fatalf("type: %s", p.Type)
	}
	if p.Risk == model.RiskUnknown {
		t.Fatalf("gate-stable segment reported unknown risk")
	}
}

func TestScoreBoundsAndContributions(t *testing.T) {
	b := baseBundle()
	b.Lyapunov = model.Valid(0.25)
	b.EntropyNorm = model.Valid(0.95)
	b.CV = 48

	p := Classify(b, classifierConfig())
	if p.Score < 0 || p.Score > 100 {
		t.Fatalf("score out of bounds: %v", p.Score)
	}
	for _, key := range []string{"rhythm", "variability", "chaos"} {
		if _, ok := p.Contributing[key]; !ok {
			t.Fatalf("missing contribution %q", key)
		}
	}
}

func TestRiskLevelsIncreaseWithScore(t *testing.T) {
	cfg := classifierConfig()
	mild := baseBundle()
	mild.CV = 28
	mild.TIR = 68
	mild.Lyapunov = model.Valid(0.01)
	mild.EntropyNorm = model.Valid(0.1)
	mild.SpectralDev = model.Valid(0)
	mild.Periodicity = model.Valid(0.95)

	severe := baseBundle()
	severe.CV = 50
	severe.TIR = 20
	severe.Lyapunov = model.Valid(0.4)
	severe.EntropyNorm = model.Valid(0.95)
	severe.SpectralDev = model.Valid(4)
	severe.Periodicity = model.Valid(0.05)
	severe.Hurst = model.Valid(0.2)

	pMild := Classify(mild, cfg)
	pSevere := Classify(severe, cfg)
	if pSevere.Score <= pMild.Score {
		t.Fatalf("severe score %v not above mild %v", pSevere.Score, pMild.Score)
	}
	if pSevere.Risk != model.RiskCritical && pSevere.Risk != model.RiskHigh {
		t.Fatalf("severe risk: %s (score %v)", pSevere.Risk, pSevere.Score)
	}
}
