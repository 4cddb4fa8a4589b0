package ingest

import (
	"context"
	"log/slog"
	"time"

	"glycoscope/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.SubjectReading, sr model.SubjectReading, logger *slog.Logger) bool {
	select {
	case out <- sr:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "subject_id", sr.SubjectID, "timestamp", sr.Reading.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
