package fuse

import (
	"math"
	"time"

	"glycoscope/internal/config"
	"glycoscope/internal/glycemic"
	"glycoscope/internal/model"
)

// scoreSegmentation grades the partition itself: segment count against
// what the span supports, average length against the target, and how
// well the segments actually differ from each other. Low scores mean
// the segmentation may be unreliable, but the result is still returned.
func scoreSegmentation(segments []model.Segment, series *model.ReadingSeries, cfg config.FusionConfig) model.SegmentationScore {
	out := model.SegmentationScore{SegmentCount: len(segments)}
	if len(segments) == 0 {
		return out
	}
	days := series.Span().Hours() / 24
	score := 100.0

	// Count bounds scale with the span: 2-8 segments for 14 days.
	minCount := 2.0
	maxCount := 8.0 * days / 14
	if maxCount < 3 {
		maxCount = 3
	}
	count := float64(len(segments))
	if count < minCount {
		score -= (minCount - count) * 15
	} else if count > maxCount {
		score -= (count - maxCount) * 10
	}

	avgLen := series.Span() / time.Duration(len(segments))
	if cfg.TargetSegment > 0 && avgLen > 0 {
		ratio := avgLen.Hours() / cfg.TargetSegment.Hours()
		penalty := math.Abs(math.Log2(ratio)) * 15
		if penalty > 30 {
			penalty = 30
		}
		score -= penalty
	}

	score -= differentiationPenalty(segments, series)

	if score < 0 {
		score = 0
	}
	out.Score = score
	if score < 50 {
		out.Advisory = "segmentation quality low; boundaries may be unreliable"
	}
	return out
}

// differentiationPenalty is high when adjacent segments look alike, up
// to 30 points.
func differentiationPenalty(segments []model.Segment, series *model.ReadingSeries) float64 {
	if len(segments) < 2 {
		return 0
	}
	var totalDiff float64
	for i := 1; i < len(segments); i++ {
		wa := glycemic.WindowBetween(series.Readings, segments[i-1].ReadingStart, segments[i-1].ReadingEnd)
		wb := glycemic.WindowBetween(series.Readings, segments[i].ReadingStart, segments[i].ReadingEnd)
		diff := abs(glycemic.TimeInBands(wa).TIR-glycemic.TimeInBands(wb).TIR) +
			abs(glycemic.CV(wa)-glycemic.CV(wb))
		totalDiff += diff
	}
	mean := totalDiff / float64(len(segments)-1)
	if mean >= 15 {
		return 0
	}
	return (15 - mean) / 15 * 30
}
