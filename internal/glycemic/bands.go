package glycemic

import (
	"glycoscope/internal/model"
)

// Consensus glucose band boundaries in mmol/L.
const (
	BandVeryLow  = 3.0
	BandLow      = 3.9
	BandHigh     = 10.0
	BandVeryHigh = 13.9
)

// Bands holds time-in-range percentages for the five consensus bands.
// The five values sum to 100 for any window with positive duration.
type Bands struct {
	TIR  float64
	TAR1 float64
	TAR2 float64
	TBR1 float64
	TBR2 float64
}

// bandEdges partitions the value axis into TBR2, TBR1, TIR, TAR1, TAR2.
var bandEdges = []float64{BandVeryLow, BandLow, BandHigh, BandVeryHigh}

// TimeInBands computes band occupancy by trapezoidal time-weighting:
// each pair of consecutive readings is treated as a linear traverse and
// its duration split across the bands it crosses, so uneven sampling
// does not bias the result.
func TimeInBands(readings []model.Reading) Bands {
	if len(readings) == 0 {
		return Bands{}
	}
	if len(readings) == 1 {
		var b Bands
		addBandTime(&b, bandIndex(readings[0].Value), 1)
		return scaleBands(b, 100)
	}

	var occupancy [5]float64
	var total float64
	for i := 1; i < len(readings); i++ {
		a, b := readings[i-1], readings[i]
		dt := b.Timestamp.Sub(a.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		total += dt
		splitSegment(&occupancy, a.Value, b.Value, dt)
	}
	if total == 0 {
		var out Bands
		addBandTime(&out, bandIndex(readings[0].Value), 1)
		return scaleBands(out, 100)
	}
	return Bands{
		TBR2: occupancy[0] / total * 100,
		TBR1: occupancy[1] / total * 100,
		TIR:  occupancy[2] / total * 100,
		TAR1: occupancy[3] / total * 100,
		TAR2: occupancy[4] / total * 100,
	}
}

// splitSegment distributes dt seconds of a linear traverse from v0 to
// v1 across the value bands, proportionally to the value range covered
// inside each band.
func splitSegment(occupancy *[5]float64, v0, v1, dt float64) {
	if v0 == v1 {
		occupancy[bandIndex(v0)] += dt
		return
	}
	lo, hi := v0, v1
	if lo > hi {
		lo, hi = hi, lo
	}
	span := hi - lo
	for band := 0; band < 5; band++ {
		bandLo, bandHi := bandBounds(band)
		overlapLo := lo
		if bandLo > overlapLo {
			overlapLo = bandLo
		}
		overlapHi := hi
		if bandHi < overlapHi {
			overlapHi = bandHi
		}
		if overlapHi > overlapLo {
			occupancy[band] += dt * (overlapHi - overlapLo) / span
		}
	}
}

func bandBounds(band int) (lo, hi float64) {
	switch band {
	case 0:
		return -1e9, bandEdges[0]
	case 1:
		return bandEdges[0], bandEdges[1]
	case 2:
		return bandEdges[1], bandEdges[2]
	case 3:
		return bandEdges[2], bandEdges[3]
	default:
		return bandEdges[3], 1e9
	}
}

func bandIndex(v float64) int {
	switch {
	case v < BandVeryLow:
		return 0
	case v < BandLow:
		return 1
	case v <= BandHigh:
		return 2
	case v <= BandVeryHigh:
		return 3
	default:
		return 4
	}
}

func addBandTime(b *Bands, band int, t float64) {
	switch band {
	case 0:
		b.TBR2 += t
	case 1:
		b.TBR1 += t
	case 2:
		b.TIR += t
	case 3:
		b.TAR1 += t
	default:
		b.TAR2 += t
	}
}

func scaleBands(b Bands, factor float64) Bands {
	b.TIR *= factor
	b.TAR1 *= factor
	b.TAR2 *= factor
	b.TBR1 *= factor
	b.TBR2 *= factor
	return b
}
