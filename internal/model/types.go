package model

import "time"

type Unit string

const (
	UnitMmolL Unit = "mmol/L"
	UnitMgDL  Unit = "mg/dL"
)

// MgDLPerMmolL is the molar mass conversion factor for glucose.
const MgDLPerMmolL = 18.0182

type Flag string

const (
	FlagSensor    Flag = "sensor"
	FlagReference Flag = "reference"
)

// Reading is a single glucose sample, always stored in mmol/L.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Flag      Flag      `json:"flag,omitempty"`
}

// SubjectReading tags a reading with the subject it belongs to while
// it travels from an ingest source to a subject buffer.
type SubjectReading struct {
	SubjectID string  `json:"subject_id"`
	Reading   Reading `json:"reading"`
}

// ReadingSeries holds one subject's readings with strictly increasing
// timestamps. Duplicates are coalesced at ingestion, never later.
type ReadingSeries struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Readings  []Reading `json:"readings"`
}

func (s *ReadingSeries) Span() time.Duration {
	if len(s.Readings) < 2 {
		return 0
	}
	return s.Readings[len(s.Readings)-1].Timestamp.Sub(s.Readings[0].Timestamp)
}

func (s *ReadingSeries) Start() time.Time {
	if len(s.Readings) == 0 {
		return time.Time{}
	}
	return s.Readings[0].Timestamp
}

func (s *ReadingSeries) End() time.Time {
	if len(s.Readings) == 0 {
		return time.Time{}
	}
	return s.Readings[len(s.Readings)-1].Timestamp
}

type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionWarn    Decision = "proceed_with_warning"
	DecisionRepair  Decision = "repair_and_retry"
	DecisionReplace Decision = "replace_sensor"
	DecisionReject  Decision = "reject"
)

var decisionRank = map[Decision]int{
	DecisionProceed: 0,
	DecisionWarn:    1,
	DecisionRepair:  2,
	DecisionReplace: 3,
	DecisionReject:  4,
}

var decisionByRank = []Decision{
	DecisionProceed,
	DecisionWarn,
	DecisionRepair,
	DecisionReplace,
	DecisionReject,
}

func (d Decision) Severity() int {
	return decisionRank[d]
}

// WorseOf returns the more severe of two decisions.
func WorseOf(a, b Decision) Decision {
	if decisionRank[a] >= decisionRank[b] {
		return a
	}
	return b
}

// Downgrade worsens a decision by n severity levels, saturating at reject.
func (d Decision) Downgrade(n int) Decision {
	r := decisionRank[d] + n
	if r >= len(decisionByRank) {
		r = len(decisionByRank) - 1
	}
	return decisionByRank[r]
}

type Gap struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

type StuckEpisode struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value float64   `json:"value"`
}

type QualityReport struct {
	CompletenessPct float64        `json:"completeness_pct"`
	CoverageDays    float64        `json:"coverage_days"`
	Gaps            []Gap          `json:"gaps,omitempty"`
	StuckEpisodes   []StuckEpisode `json:"stuck_episodes,omitempty"`
	DriftRate       float64        `json:"drift_rate"`
	SignalScore     float64        `json:"signal_score"`
	OverallGrade    string         `json:"overall_grade"`
	Decision        Decision       `json:"decision"`
	Advisories      []string       `json:"advisories,omitempty"`
}

// ChangePointCandidate is produced by one detector and consumed only by
// the fusion engine, never persisted on its own.
type ChangePointCandidate struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

// MetricValue is a scalar that may be unavailable. Chaos metrics on
// short or timed-out windows are invalid, never a fabricated number.
type MetricValue struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

func Valid(v float64) MetricValue {
	return MetricValue{Value: v, Valid: true}
}

func Invalid() MetricValue {
	return MetricValue{}
}

type MetricBundle struct {
	Count       int         `json:"count"`
	Mean        float64     `json:"mean"`
	SD          float64     `json:"sd"`
	CV          float64     `json:"cv"`
	TIR         float64     `json:"tir"`
	TAR1        float64     `json:"tar1"`
	TAR2        float64     `json:"tar2"`
	TBR1        float64     `json:"tbr1"`
	TBR2        float64     `json:"tbr2"`
	MAGE        float64     `json:"mage"`
	GMI         float64     `json:"gmi"`
	Lyapunov    MetricValue `json:"lyapunov"`
	Hurst       MetricValue `json:"hurst"`
	Entropy     MetricValue `json:"entropy"`
	EntropyNorm MetricValue `json:"entropy_norm"`
	Autocorr    MetricValue `json:"autocorr"`
	Periodicity MetricValue `json:"periodicity"`
	SpectralDev MetricValue `json:"spectral_dev"`
}

type BrittlenessType string

const (
	BrittlenessStable BrittlenessType = "stable"
	BrittlenessI      BrittlenessType = "type_i_chaotic"
	BrittlenessII     BrittlenessType = "type_ii_quasi_periodic"
	BrittlenessIII    BrittlenessType = "type_iii_random"
	BrittlenessIV     BrittlenessType = "type_iv_memory_loss"
	BrittlenessV      BrittlenessType = "type_v_frequency_disrupted"
)

type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type BrittlenessProfile struct {
	Type         BrittlenessType    `json:"type"`
	Score        float64            `json:"score"`
	Risk         RiskLevel          `json:"risk"`
	Contributing map[string]float64 `json:"contributing,omitempty"`
}

// Segment covers a closed-open time interval of the analyzed series.
// ReadingStart/ReadingEnd index into the series' readings slice; Index
// is the segment's position in the result's flat segment array.
type Segment struct {
	Index        int                `json:"index"`
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	Duration     time.Duration      `json:"duration"`
	ReadingStart int                `json:"reading_start"`
	ReadingEnd   int                `json:"reading_end"`
	Agreement    int                `json:"agreement"`
	Sources      []string           `json:"sources,omitempty"`
	Metrics      MetricBundle       `json:"metrics"`
	Brittleness  BrittlenessProfile `json:"brittleness"`
}

type SegmentationScore struct {
	Score        float64 `json:"score"`
	SegmentCount int     `json:"segment_count"`
	Advisory     string  `json:"advisory,omitempty"`
}

type MetricDelta struct {
	Metric    string  `json:"metric"`
	From      float64 `json:"from"`
	To        float64 `json:"to"`
	DeltaPct  float64 `json:"delta_pct"`
	Direction string  `json:"direction"`
}

type PairComparison struct {
	FromSegment int           `json:"from_segment"`
	ToSegment   int           `json:"to_segment"`
	Deltas      []MetricDelta `json:"deltas"`
	Improved    int           `json:"improved"`
	Worsened    int           `json:"worsened"`
	Unchanged   int           `json:"unchanged"`
}

type CrossSegmentSummary struct {
	Pairs       []PairComparison `json:"pairs,omitempty"`
	FirstVsLast *PairComparison  `json:"first_vs_last,omitempty"`
	Improved    int              `json:"improved"`
	Worsened    int              `json:"worsened"`
	Trend       string           `json:"trend"`
	Notes       []string         `json:"notes,omitempty"`
}

type PatientEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
}

type PatientContext struct {
	Age       int            `json:"age,omitempty"`
	Diagnosis string         `json:"diagnosis,omitempty"`
	Events    []PatientEvent `json:"events,omitempty"`
}

// AnalysisResult owns its segments; cross-references between segments
// are indices into the flat slice.
type AnalysisResult struct {
	ID           string              `json:"id"`
	SeriesID     string              `json:"series_id"`
	SubjectID    string              `json:"subject_id"`
	GeneratedAt  time.Time           `json:"generated_at"`
	Quality      QualityReport       `json:"quality"`
	Segments     []Segment           `json:"segments,omitempty"`
	Segmentation SegmentationScore   `json:"segmentation"`
	Summary      CrossSegmentSummary `json:"summary"`
}

// MgDLToMmolL converts a mg/dL glucose value to the canonical unit.
func MgDLToMmolL(v float64) float64 {
	return v / MgDLPerMmolL
}

func MmolLToMgDL(v float64) float64 {
	return v * MgDLPerMmolL
}
