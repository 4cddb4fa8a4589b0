package model

import (
	"math"
	"testing"
	"time"
)

func TestDecisionSeverityOrdering(t *testing.T) {
	ladder := []Decision{DecisionProceed, DecisionWarn, DecisionRepair, DecisionReplace, DecisionReject}
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Severity() <= ladder[i-1].Severity() {
			t.Fatalf("%s not more severe than %s", ladder[i], ladder[i-1])
		}
	}
}

func TestWorseOf(t *testing.T) {
	if got := WorseOf(DecisionProceed, DecisionReplace); got != DecisionReplace {
		t.Fatalf("got %s", got)
	}
	if got := WorseOf(DecisionReject, DecisionWarn); got != DecisionReject {
		t.Fatalf("got %s", got)
	}
	if got := WorseOf(DecisionWarn, DecisionWarn); got != DecisionWarn {
		t.Fatalf("got %s", got)
	}
}

func TestDowngradeSaturates(t *testing.T) {
	if got := DecisionProceed.Downgrade(1); got != DecisionWarn {
		t.Fatalf("got %s", got)
	}
	if got := DecisionRepair.Downgrade(2); got != DecisionReject {
		t.Fatalf("got %s", got)
	}
	if got := DecisionReplace.Downgrade(10); got != DecisionReject {
		t.Fatalf("got %s", got)
	}
}

func TestUnitConversionRoundTrip(t *testing.T) {
	if got := MgDLToMmolL(180.182); math.Abs(got-10.0) > 1e-9 {
		t.Fatalf("mg/dL to mmol/L: %f", got)
	}
	if got := MmolLToMgDL(MgDLToMmolL(117)); math.Abs(got-117) > 1e-9 {
		t.Fatalf("round trip: %f", got)
	}
}

func TestSeriesSpan(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &ReadingSeries{Readings: []Reading{
		{Timestamp: start, Value: 6},
		{Timestamp: start.Add(10 * time.Minute), Value: 7},
	}}
	if s.Span() != 10*time.Minute {
		t.Fatalf("span: %s", s.Span())
	}
	empty := &ReadingSeries{}
	if empty.Span() != 0 || !empty.Start().IsZero() || !empty.End().IsZero() {
		t.Fatalf("empty series accessors")
	}
}
