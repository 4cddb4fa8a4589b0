package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"glycoscope/internal/classify"
	"glycoscope/internal/config"
	"glycoscope/internal/detect"
	"glycoscope/internal/fuse"
	"glycoscope/internal/glycemic"
	"glycoscope/internal/insight"
	"glycoscope/internal/model"
	"glycoscope/internal/normalize"
	"glycoscope/internal/quality"
	"glycoscope/internal/results"
	"glycoscope/internal/storage"
)

// ErrQualityRejected is returned when the quality gate rejects a
// series; the returned result still carries the full quality report.
var ErrQualityRejected = errors.New("quality gate rejected series")

type Engine struct {
	logger   *slog.Logger
	results  *results.Store
	store    storage.Store
	cfg      atomic.Value
	mu       sync.Mutex
	subjects map[string]*SubjectBuffer
	started  time.Time
}

func NewEngine(cfg *config.Config, logger *slog.Logger, resultsStore *results.Store, store storage.Store) *Engine {
	e := &Engine{
		logger:   logger,
		results:  resultsStore,
		store:    store,
		subjects: make(map[string]*SubjectBuffer),
		started:  time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes streamed readings into per-subject buffers until ctx
// is done. Analysis itself is on-demand via AnalyzeSubject.
func (e *Engine) Start(ctx context.Context, in <-chan model.SubjectReading) {
	go func() {
		for {
			select {
			case sr := <-in:
				e.ProcessReading(sr)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) ProcessReading(sr model.SubjectReading) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf, ok := e.subjects[sr.SubjectID]
	if !ok {
		buf = NewSubjectBuffer()
		e.subjects[sr.SubjectID] = buf
	}
	buf.Add(sr.Reading)
	buf.Evict(sr.Reading.Timestamp.Add(-bufferHorizon))
}

func (e *Engine) Subjects() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.subjects))
	for id := range e.subjects {
		out = append(out, id)
	}
	return out
}

func (e *Engine) Reset() {
	e.mu.Lock()
	e.subjects = make(map[string]*SubjectBuffer)
	e.mu.Unlock()
	if e.results != nil {
		e.results.Clear()
	}
}

// AnalyzeSubject snapshots a streaming buffer into a series and runs
// the full pipeline on it.
func (e *Engine) AnalyzeSubject(ctx context.Context, subjectID string, patient *model.PatientContext) (*model.AnalysisResult, error) {
	e.mu.Lock()
	buf, ok := e.subjects[subjectID]
	var snapshot []model.Reading
	if ok && buf.Len() > 0 {
		snapshot = buf.Snapshot()
	}
	e.mu.Unlock()
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("no readings buffered for subject %q", subjectID)
	}
	series, err := normalize.BuildSeries(uuid.NewString(), subjectID, snapshot)
	if err != nil {
		return nil, err
	}
	return e.Analyze(ctx, series, patient)
}

// Analyze runs the whole pipeline on one series: quality gate, the
// enabled detectors in parallel, fusion, per-segment metrics and
// classification, then the cross-segment summary. A rejecting gate
// halts analysis and returns the report-only result.
func (e *Engine) Analyze(ctx context.Context, series *model.ReadingSeries, patient *model.PatientContext) (*model.AnalysisResult, error) {
	cfg := e.config()
	result := &model.AnalysisResult{
		ID:          uuid.NewString(),
		SeriesID:    series.ID,
		SubjectID:   series.SubjectID,
		GeneratedAt: time.Now().UTC(),
	}

	result.Quality = quality.Evaluate(series, patient, cfg.Quality)
	if result.Quality.Decision == model.DecisionReject {
		if e.logger != nil {
			e.logger.Warn("series rejected by quality gate",
				"series_id", series.ID,
				"completeness", result.Quality.CompletenessPct,
				"signal_score", result.Quality.SignalScore,
			)
		}
		e.publish(ctx, result)
		return result, ErrQualityRejected
	}

	candidates := e.runDetectors(ctx, series, cfg)
	segments, segScore := fuse.Fuse(ctx, candidates, series, cfg)
	for i := range segments {
		window := glycemic.WindowBetween(series.Readings, segments[i].ReadingStart, segments[i].ReadingEnd)
		segments[i].Metrics = glycemic.ComputeBundle(ctx, window, cfg.Metrics)
		segments[i].Brittleness = classify.Classify(segments[i].Metrics, cfg.Classifier)
	}
	result.Segments = segments
	result.Segmentation = segScore
	result.Summary = insight.Summarize(segments, patient, cfg.Insight)

	if e.logger != nil {
		e.logger.Info("analysis complete",
			"series_id", series.ID,
			"segments", len(segments),
			"segmentation_score", segScore.Score,
			"decision", result.Quality.Decision,
		)
	}
	e.publish(ctx, result)
	return result, nil
}

// runDetectors fans the enabled detectors out on goroutines. A failing
// detector contributes zero candidates instead of aborting fusion.
func (e *Engine) runDetectors(ctx context.Context, series *model.ReadingSeries, cfg *config.Config) []model.ChangePointCandidate {
	detectors := detect.Enabled(cfg)
	type detection struct {
		name       string
		candidates []model.ChangePointCandidate
		err        error
	}
	out := make(chan detection, len(detectors))
	for _, d := range detectors {
		d := d
		go func() {
			candidates, err := d.Detect(ctx, series)
			out <- detection{name: d.Name(), candidates: candidates, err: err}
		}()
	}

	var all []model.ChangePointCandidate
	for range detectors {
		det := <-out
		if det.err != nil {
			if e.logger != nil {
				e.logger.Warn("detector failed, continuing without it",
					"detector", det.name, "err", det.err)
			}
			continue
		}
		all = append(all, det.candidates...)
	}
	return all
}

func (e *Engine) publish(ctx context.Context, result *model.AnalysisResult) {
	if e.results != nil {
		e.results.Add(result)
	}
	if e.store != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := e.store.SaveResult(ctx, result); err != nil && e.logger != nil {
			e.logger.Warn("failed to persist analysis result", "result_id", result.ID, "err", err)
		}
		// On a rejection the report is the only artifact; persist it on
		// every run so quality history survives across sensors.
		if err := e.store.SaveQualityReport(ctx, result.SeriesID, result.SubjectID, result.Quality); err != nil && e.logger != nil {
			e.logger.Warn("failed to persist quality report", "series_id", result.SeriesID, "err", err)
		}
	}
}
