package insight

import (
	"strings"
	"testing"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

func insightConfig() config.InsightConfig {
	return config.DefaultConfig().Insight
}

func segmentWith(index int, bundle model.MetricBundle) model.Segment {
	return model.Segment{Index: index, Metrics: bundle}
}

func TestSummarizeImprovingTrend(t *testing.T) {
	early := model.MetricBundle{TIR: 45, TAR2: 12, TBR2: 3, CV: 42, SD: 3.5, MAGE: 5.2, GMI: 7.4}
	late := model.MetricBundle{TIR: 72, TAR2: 4, TBR2: 1, CV: 30, SD: 2.4, MAGE: 3.8, GMI: 6.8}

	summary := Summarize([]model.Segment{segmentWith(0, early), segmentWith(1, late)}, nil, insightConfig())
	if summary.Trend != "improving" {
		t.Fatalf("trend: %s", summary.Trend)
	}
	if summary.FirstVsLast == nil {
		t.Fatalf("missing first-vs-last comparison")
	}
	if summary.Improved == 0 || summary.Worsened != 0 {
		t.Fatalf("counts: improved=%d worsened=%d", summary.Improved, summary.Worsened)
	}
}

func TestSummarizeDeterioratingTrend(t *testing.T) {
	early := model.MetricBundle{TIR: 72, TAR2: 4, TBR2: 1, CV: 30, SD: 2.4, MAGE: 3.8, GMI: 6.8}
	late := model.MetricBundle{TIR: 45, TAR2: 12, TBR2: 3, CV: 42, SD: 3.5, MAGE: 5.2, GMI: 7.4}

	summary := Summarize([]model.Segment{segmentWith(0, early), segmentWith(1, late)}, nil, insightConfig())
	if summary.Trend != "deteriorating" {
		t.Fatalf("trend: %s", summary.Trend)
	}
}

func TestSummarizeNoOpBand(t *testing.T) {
	// Tiny changes inside the no-op band count as unchanged.
	a := model.MetricBundle{TIR: 70, TAR2: 5, TBR2: 1, CV: 30, SD: 2.5, MAGE: 4, GMI: 7}
	b := a
	b.TIR = 70.5

	summary := Summarize([]model.Segment{segmentWith(0, a), segmentWith(1, b)}, nil, insightConfig())
	if summary.Trend != "stable" {
		t.Fatalf("trend: %s", summary.Trend)
	}
	for _, d := range summary.Pairs[0].Deltas {
		if d.Direction != "unchanged" {
			t.Fatalf("metric %s direction %s", d.Metric, d.Direction)
		}
	}
}

func TestSummarizeSingleSegment(t *testing.T) {
	summary := Summarize([]model.Segment{segmentWith(0, model.MetricBundle{TIR: 60})}, nil, insightConfig())
	if len(summary.Pairs) != 0 || summary.FirstVsLast != nil {
		t.Fatalf("unexpected comparisons: %+v", summary)
	}
	if len(summary.Notes) == 0 {
		t.Fatalf("expected a note about the single segment")
	}
}

func TestSummarizeFlagsCriticalRisk(t *testing.T) {
	early := segmentWith(0, model.MetricBundle{TIR: 60, CV: 35})
	late := segmentWith(1, model.MetricBundle{TIR: 40, CV: 48})
	late.Brittleness = model.BrittlenessProfile{Type: model.BrittlenessI, Risk: model.RiskCritical}

	summary := Summarize([]model.Segment{early, late}, nil, insightConfig())
	found := false
	for _, n := range summary.Notes {
		if strings.Contains(n, "critical") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no critical-risk note: %v", summary.Notes)
	}
}

func TestSummarizeCarriesDiagnosisContext(t *testing.T) {
	patient := &model.PatientContext{Diagnosis: "type 1 diabetes"}
	segments := []model.Segment{
		segmentWith(0, model.MetricBundle{TIR: 60, CV: 30}),
		segmentWith(1, model.MetricBundle{TIR: 62, CV: 29}),
	}
	summary := Summarize(segments, patient, insightConfig())
	found := false
	for _, n := range summary.Notes {
		if strings.Contains(n, "type 1 diabetes") {
			found = true
		}
	}
	if !found {
		t.Fatalf("diagnosis note missing: %v", summary.Notes)
	}
}

func TestRelativeDeltaFromZero(t *testing.T) {
	if d := relativeDelta(0, 5); d != 100 {
		t.Fatalf("delta: %v", d)
	}
	if d := relativeDelta(0, -5); d != -100 {
		t.Fatalf("delta: %v", d)
	}
	if d := relativeDelta(0, 0); d != 0 {
		t.Fatalf("delta: %v", d)
	}
}
