package glycemic

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

func readingsAt(start time.Time, interval time.Duration, values []float64) []model.Reading {
	out := make([]model.Reading, len(values))
	for i, v := range values {
		out[i] = model.Reading{Timestamp: start.Add(time.Duration(i) * interval), Value: v}
	}
	return out
}

func sinusoid(n int, mean, amp float64, period time.Duration, interval time.Duration) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) * interval.Seconds()
		out[i] = mean + amp*math.Sin(2*math.Pi*t/period.Seconds())
	}
	return out
}

func testMetricsConfig() config.MetricsConfig {
	return config.DefaultConfig().Metrics
}

func TestMeanSDCV(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 5*time.Minute, []float64{4, 6, 8, 10})
	if m := Mean(readings); math.Abs(m-7) > 1e-9 {
		t.Fatalf("mean: %v", m)
	}
	sd := SD(readings)
	if math.Abs(sd-2.581988897) > 1e-6 {
		t.Fatalf("sd: %v", sd)
	}
	cv := CV(readings)
	if math.Abs(cv-sd/7*100) > 1e-9 {
		t.Fatalf("cv: %v", cv)
	}
}

func TestCVConstantWindowIsZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 5*time.Minute, []float64{6.9, 6.9, 6.9, 6.9})
	if cv := CV(readings); cv != 0 {
		t.Fatalf("expected zero cv, got %v", cv)
	}
}

func TestGMI(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 5*time.Minute, []float64{7, 7, 7, 7})
	gmi := GMI(readings)
	want := 3.31 + 0.02392*model.MmolLToMgDL(7)
	if math.Abs(gmi-want) > 1e-9 {
		t.Fatalf("gmi: got %v want %v", gmi, want)
	}
}

func TestTimeInBandsSumTo100(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 5*time.Minute, []float64{2.5, 3.5, 5, 9, 12, 15, 8, 4})
	b := TimeInBands(readings)
	sum := b.TIR + b.TAR1 + b.TAR2 + b.TBR1 + b.TBR2
	if math.Abs(sum-100) > 1e-6 {
		t.Fatalf("bands sum to %v", sum)
	}
}

func TestTimeInBandsAllInRange(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 5*time.Minute, []float64{4.5, 6, 7.5, 9, 8, 5})
	b := TimeInBands(readings)
	if math.Abs(b.TIR-100) > 1e-6 {
		t.Fatalf("expected full TIR, got %+v", b)
	}
}

func TestTimeInBandsTrapezoidSplit(t *testing.T) {
	// One 10-minute traverse from 8 to 12 crosses the 10.0 boundary
	// halfway up, so time splits evenly between TIR and TAR1.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 10*time.Minute, []float64{8, 12})
	b := TimeInBands(readings)
	if math.Abs(b.TIR-50) > 1e-6 || math.Abs(b.TAR1-50) > 1e-6 {
		t.Fatalf("expected 50/50 split, got %+v", b)
	}
}

func TestTimeInBandsSingleReading(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := TimeInBands(readingsAt(start, 5*time.Minute, []float64{15}))
	if math.Abs(b.TAR2-100) > 1e-6 {
		t.Fatalf("expected TAR2 100, got %+v", b)
	}
}

func TestMAGE(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 30*time.Minute, []float64{5, 10, 5, 10, 5})
	mage := MAGE(readings)
	if math.Abs(mage-5) > 1e-9 {
		t.Fatalf("mage: got %v want 5", mage)
	}
}

func TestMAGEIgnoresSmallExcursions(t *testing.T) {
	// Small wiggles below one SD must not enter the average.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 30*time.Minute, []float64{5, 5.2, 5, 10, 5, 5.1, 5})
	mage := MAGE(readings)
	if math.Abs(mage-5) > 1e-9 {
		t.Fatalf("mage: got %v want 5", mage)
	}
}

func TestChaosMetricsRequireMinimumWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testMetricsConfig()
	values := sinusoid(cfg.ChaosMinPoints-1, 7, 2, 24*time.Hour, 5*time.Minute)
	readings := readingsAt(start, 5*time.Minute, values)

	if v := Lyapunov(context.Background(), readings, cfg); v.Valid {
		t.Fatalf("lyapunov should be invalid below minimum window")
	}
	if v := Hurst(readings, cfg); v.Valid {
		t.Fatalf("hurst should be invalid below minimum window")
	}
	raw, norm := SampleEntropy(readings, cfg)
	if raw.Valid || norm.Valid {
		t.Fatalf("entropy should be invalid below minimum window")
	}
}

func TestLyapunovCanceledContext(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testMetricsConfig()
	values := sinusoid(400, 7, 2, 24*time.Hour, 5*time.Minute)
	readings := readingsAt(start, 5*time.Minute, values)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if v := Lyapunov(ctx, readings, cfg); v.Valid {
		t.Fatalf("canceled context must yield invalid, got %v", v.Value)
	}
}

func TestLyapunovDetectsChaoticDynamics(t *testing.T) {
	// The logistic map at r=4 has a known positive exponent (ln 2 per
	// step); the estimate only needs to clear the chaos threshold.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n := 288
	values := make([]float64, n)
	x := 0.37
	for i := range values {
		x = 4 * x * (1 - x)
		values[i] = 5 + 4*x
	}
	readings := readingsAt(start, 5*time.Minute, values)

	v := Lyapunov(context.Background(), readings, testMetricsConfig())
	if !v.Valid {
		t.Fatalf("expected valid lyapunov")
	}
	if v.Value <= 0.1 {
		t.Fatalf("logistic map exponent too low: %v", v.Value)
	}
}

func TestLyapunovLowForRegularDynamics(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n := 288
	values := make([]float64, n)
	for i := range values {
		values[i] = 7 + 2*math.Sin(2*math.Pi*float64(i)/47) + 0.001*float64(i)
	}
	readings := readingsAt(start, 5*time.Minute, values)

	v := Lyapunov(context.Background(), readings, testMetricsConfig())
	if !v.Valid {
		t.Fatalf("expected valid lyapunov")
	}
	if v.Value > 0.1 {
		t.Fatalf("periodic series should not look chaotic: %v", v.Value)
	}
}

func TestHurstWhiteNoiseNearHalf(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 512)
	for i := range values {
		values[i] = 7 + rng.NormFloat64()
	}
	readings := readingsAt(start, 5*time.Minute, values)

	v := Hurst(readings, testMetricsConfig())
	if !v.Valid {
		t.Fatalf("expected valid hurst")
	}
	if v.Value < 0.25 || v.Value > 0.75 {
		t.Fatalf("white noise hurst out of range: %v", v.Value)
	}
}

func TestSampleEntropyOrdering(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testMetricsConfig()

	periodic := readingsAt(start, 5*time.Minute, sinusoid(288, 7, 2, 4*time.Hour, 5*time.Minute))
	rng := rand.New(rand.NewSource(11))
	randomVals := make([]float64, 288)
	for i := range randomVals {
		randomVals[i] = 7 + 2*rng.NormFloat64()
	}
	random := readingsAt(start, 5*time.Minute, randomVals)

	_, pNorm := SampleEntropy(periodic, cfg)
	_, rNorm := SampleEntropy(random, cfg)
	if !pNorm.Valid || !rNorm.Valid {
		t.Fatalf("expected valid entropy values")
	}
	if rNorm.Value <= pNorm.Value {
		t.Fatalf("random entropy %v should exceed periodic %v", rNorm.Value, pNorm.Value)
	}
}

func TestSampleEntropyConstantWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 200)
	for i := range values {
		values[i] = 6.9
	}
	raw, norm := SampleEntropy(readingsAt(start, 5*time.Minute, values), testMetricsConfig())
	if !raw.Valid || raw.Value != 0 || norm.Value != 0 {
		t.Fatalf("constant window entropy: raw=%+v norm=%+v", raw, norm)
	}
}

func TestPeriodicityDailyRhythm(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := sinusoid(6*288, 7, 2, 24*time.Hour, 5*time.Minute)
	readings := readingsAt(start, 5*time.Minute, values)

	p := Periodicity(readings)
	if !p.Valid {
		t.Fatalf("expected valid periodicity")
	}
	if p.Value < 0.7 {
		t.Fatalf("daily sinusoid periodicity too low: %v", p.Value)
	}
}

func TestPeriodicityNoise(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 6*288)
	for i := range values {
		values[i] = 7 + rng.NormFloat64()
	}
	p := Periodicity(readingsAt(start, 5*time.Minute, values))
	if !p.Valid {
		t.Fatalf("expected valid periodicity")
	}
	if p.Value > 0.5 {
		t.Fatalf("noise periodicity too high: %v", p.Value)
	}
}

func TestSpectralDeviationPhysiologicCycleScoresZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := sinusoid(4*288, 7, 2, 24*time.Hour, 5*time.Minute)
	v := SpectralDeviation(readingsAt(start, 5*time.Minute, values))
	if !v.Valid {
		t.Fatalf("expected valid spectral deviation")
	}
	if v.Value != 0 {
		t.Fatalf("24h rhythm should be explained away, got %v", v.Value)
	}
}

func TestSpectralDeviationFlagsOddCycle(t *testing.T) {
	// A dominant 5-hour cycle matches no meal or sleep rhythm.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := sinusoid(2*288, 7, 2, 5*time.Hour, 5*time.Minute)
	v := SpectralDeviation(readingsAt(start, 5*time.Minute, values))
	if !v.Valid {
		t.Fatalf("expected valid spectral deviation")
	}
	if v.Value <= 0 {
		t.Fatalf("non-physiologic cycle should score positive, got %v", v.Value)
	}
}

func TestWindowBetweenClamps(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := readingsAt(start, 5*time.Minute, []float64{1, 2, 3, 4, 5})
	if w := WindowBetween(readings, -2, 3); len(w) != 3 {
		t.Fatalf("clamped start: %d", len(w))
	}
	if w := WindowBetween(readings, 2, 99); len(w) != 3 {
		t.Fatalf("clamped end: %d", len(w))
	}
	if w := WindowBetween(readings, 4, 2); w != nil {
		t.Fatalf("inverted range should be nil")
	}
}

func TestComputeBundleSkipsChaosOnExpiredContext(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := sinusoid(300, 7, 2, 24*time.Hour, 5*time.Minute)
	readings := readingsAt(start, 5*time.Minute, values)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bundle := ComputeBundle(ctx, readings, testMetricsConfig())
	if bundle.Lyapunov.Valid || bundle.Hurst.Valid || bundle.Entropy.Valid {
		t.Fatalf("chaos metrics must be invalid when ctx expired")
	}
	if bundle.Count != 300 || bundle.Mean == 0 {
		t.Fatalf("basic metrics still expected: %+v", bundle)
	}
}
