package glycemic

import (
	"math"

	"glycoscope/internal/model"
)

// MAGE is the mean amplitude of glycemic excursions: the average
// peak-to-trough amplitude over turning points, keeping only excursions
// larger than one standard deviation of the window.
func MAGE(readings []model.Reading) float64 {
	if len(readings) < 3 {
		return 0
	}
	sd := SD(readings)
	if sd == 0 {
		return 0
	}

	turns := turningPoints(readings)
	if len(turns) < 2 {
		return 0
	}

	var sum float64
	var count int
	for i := 1; i < len(turns); i++ {
		amp := math.Abs(turns[i] - turns[i-1])
		if amp > sd {
			sum += amp
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// turningPoints returns the values at which the series changes
// direction, including the endpoints. Flat runs do not break a trend.
func turningPoints(readings []model.Reading) []float64 {
	out := []float64{readings[0].Value}
	dir := 0
	for i := 1; i < len(readings); i++ {
		d := sign(readings[i].Value - readings[i-1].Value)
		if d == 0 {
			continue
		}
		if dir != 0 && d != dir {
			out = append(out, readings[i-1].Value)
		}
		dir = d
	}
	out = append(out, readings[len(readings)-1].Value)
	return out
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
