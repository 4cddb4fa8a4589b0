package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"glycoscope/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:glycoscope.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			result_id TEXT NOT NULL,
			series_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			decision TEXT NOT NULL,
			segmentation_score REAL NOT NULL,
			segment_count INTEGER NOT NULL,
			segments_json TEXT NOT NULL,
			summary_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_subject ON analyses(subject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_generated ON analyses(generated_at)`,
		`CREATE TABLE IF NOT EXISTS quality_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			series_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			decision TEXT NOT NULL,
			grade TEXT NOT NULL,
			completeness REAL NOT NULL,
			signal_score REAL NOT NULL,
			report_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quality_subject ON quality_reports(subject_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveResult(ctx context.Context, result *model.AnalysisResult) error {
	if s.db == nil || result == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (result_id, series_id, subject_id, generated_at, decision, segmentation_score, segment_count, segments_json, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.SeriesID,
		result.SubjectID,
		result.GeneratedAt.UTC(),
		string(result.Quality.Decision),
		result.Segmentation.Score,
		result.Segmentation.SegmentCount,
		encodeJSON(result.Segments),
		encodeJSON(result.Summary),
	)
	return err
}

func (s *sqliteStore) SaveQualityReport(ctx context.Context, seriesID, subjectID string, report model.QualityReport) error {
	if s.db == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quality_reports (ts, series_id, subject_id, decision, grade, completeness, signal_score, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nowUTC(),
		seriesID,
		subjectID,
		string(report.Decision),
		report.OverallGrade,
		report.CompletenessPct,
		report.SignalScore,
		encodeJSON(report),
	)
	return err
}
