package fuse

import (
	"context"
	"sort"
	"time"

	"glycoscope/internal/config"
	"glycoscope/internal/glycemic"
	"glycoscope/internal/model"
)

// boundary is one fused change point with its supporting detectors.
type boundary struct {
	ts         time.Time
	agreement  int
	sources    []string
	confidence float64
}

// Fuse merges candidates from all detectors into an exhaustive,
// non-overlapping segment partition of the series span. The first
// segment always starts at the first timestamp and the last always
// ends at the last one.
func Fuse(ctx context.Context, candidates []model.ChangePointCandidate, series *model.ReadingSeries, cfg *config.Config) ([]model.Segment, model.SegmentationScore) {
	readings := series.Readings
	if len(readings) == 0 {
		return nil, model.SegmentationScore{}
	}
	start := readings[0].Timestamp
	end := readings[len(readings)-1].Timestamp

	if ctx != nil && ctx.Err() != nil {
		seg := buildSegments(nil, series)
		seg[0].Index = 0
		return seg, model.SegmentationScore{SegmentCount: 1, Advisory: "fusion aborted by deadline"}
	}

	boundaries := clusterCandidates(candidates, cfg.Fusion.ClusterTolerance)
	boundaries = enforceMinSegment(boundaries, start, end, cfg.Fusion.MinSegment)
	segments := buildSegments(boundaries, series)
	segments = mergeSimilar(segments, series, cfg.Fusion)
	for i := range segments {
		segments[i].Index = i
	}
	score := scoreSegmentation(segments, series, cfg.Fusion)
	return segments, score
}

// clusterCandidates groups candidates that fall within the tolerance of
// each other into a single boundary, recording which detectors agree.
// The boundary timestamp is the highest-confidence candidate's, ties
// broken by the earliest.
func clusterCandidates(candidates []model.ChangePointCandidate, tolerance time.Duration) []boundary {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]model.ChangePointCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var out []boundary
	group := []model.ChangePointCandidate{sorted[0]}
	for _, c := range sorted[1:] {
		if c.Timestamp.Sub(group[len(group)-1].Timestamp) <= tolerance {
			group = append(group, c)
			continue
		}
		out = append(out, fuseGroup(group))
		group = []model.ChangePointCandidate{c}
	}
	out = append(out, fuseGroup(group))
	return out
}

func fuseGroup(group []model.ChangePointCandidate) boundary {
	sources := map[string]bool{}
	best := group[0]
	var confSum float64
	for _, c := range group {
		sources[c.Source] = true
		confSum += c.Confidence
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	names := make([]string, 0, len(sources))
	for s := range sources {
		names = append(names, s)
	}
	sort.Strings(names)
	return boundary{
		ts:         best.Timestamp,
		agreement:  len(sources),
		sources:    names,
		confidence: confSum / float64(len(group)),
	}
}

// enforceMinSegment keeps the strongest boundaries that leave every
// segment at least the minimum length, preferring higher detector
// agreement, ties broken by the earliest timestamp.
func enforceMinSegment(boundaries []boundary, start, end time.Time, minSeg time.Duration) []boundary {
	ranked := make([]boundary, len(boundaries))
	copy(ranked, boundaries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].agreement != ranked[j].agreement {
			return ranked[i].agreement > ranked[j].agreement
		}
		return ranked[i].ts.Before(ranked[j].ts)
	})

	var kept []boundary
	for _, b := range ranked {
		if b.ts.Sub(start) < minSeg || end.Sub(b.ts) < minSeg {
			continue
		}
		ok := true
		for _, k := range kept {
			d := b.ts.Sub(k.ts)
			if d < 0 {
				d = -d
			}
			if d < minSeg {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, b)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ts.Before(kept[j].ts) })
	return kept
}

// buildSegments turns the ordered boundary list into a closed-open
// partition of the series span with reading index ranges.
func buildSegments(boundaries []boundary, series *model.ReadingSeries) []model.Segment {
	readings := series.Readings
	start := readings[0].Timestamp
	end := readings[len(readings)-1].Timestamp

	type edge struct {
		ts        time.Time
		agreement int
		sources   []string
	}
	edges := []edge{{ts: start}}
	for _, b := range boundaries {
		edges = append(edges, edge{ts: b.ts, agreement: b.agreement, sources: b.sources})
	}

	var segments []model.Segment
	readIdx := 0
	for i, e := range edges {
		segEnd := end
		if i+1 < len(edges) {
			segEnd = edges[i+1].ts
		}
		first := readIdx
		for readIdx < len(readings) && readings[readIdx].Timestamp.Before(segEnd) {
			readIdx++
		}
		last := readIdx
		if i == len(edges)-1 {
			last = len(readings)
		}
		segments = append(segments, model.Segment{
			Start:        e.ts,
			End:          segEnd,
			Duration:     segEnd.Sub(e.ts),
			ReadingStart: first,
			ReadingEnd:   last,
			Agreement:    e.agreement,
			Sources:      e.sources,
		})
	}
	return segments
}

// mergeSimilar collapses adjacent segments whose metric profiles are
// indistinguishable, to avoid over-segmentation. Merging applies when
// either neighbor is shorter than the merge window and both TIR and CV
// differ by less than the configured tolerances.
func mergeSimilar(segments []model.Segment, series *model.ReadingSeries, cfg config.FusionConfig) []model.Segment {
	for {
		merged := false
		for i := 0; i+1 < len(segments); i++ {
			a, b := segments[i], segments[i+1]
			if a.Duration >= cfg.MergeWindow && b.Duration >= cfg.MergeWindow {
				continue
			}
			if !profilesSimilar(series, a, b, cfg) {
				continue
			}
			segments[i] = joinSegments(a, b)
			segments = append(segments[:i+1], segments[i+2:]...)
			merged = true
			break
		}
		if !merged {
			return segments
		}
	}
}

func profilesSimilar(series *model.ReadingSeries, a, b model.Segment, cfg config.FusionConfig) bool {
	wa := glycemic.WindowBetween(series.Readings, a.ReadingStart, a.ReadingEnd)
	wb := glycemic.WindowBetween(series.Readings, b.ReadingStart, b.ReadingEnd)
	tirA := glycemic.TimeInBands(wa).TIR
	tirB := glycemic.TimeInBands(wb).TIR
	cvA := glycemic.CV(wa)
	cvB := glycemic.CV(wb)
	return abs(tirA-tirB) < cfg.TIRMergeTolerance && abs(cvA-cvB) < cfg.CVMergeTolerance
}

func joinSegments(a, b model.Segment) model.Segment {
	out := a
	out.End = b.End
	out.Duration = out.End.Sub(out.Start)
	out.ReadingEnd = b.ReadingEnd
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
