package detect

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// Clustering assigns a k-means label to each rolling window's feature
// vector (mean, SD, rate of change) and emits a candidate wherever the
// label flips between adjacent windows. The seed is fixed so repeated
// runs agree.
type Clustering struct {
	cfg config.ClusteringConfig
}

func (d *Clustering) Name() string { return "clustering" }

type windowFeature struct {
	startIdx int
	vec      [3]float64
}

func (d *Clustering) Detect(ctx context.Context, series *model.ReadingSeries) ([]model.ChangePointCandidate, error) {
	readings := series.Readings
	window := d.cfg.WindowPoints
	if window < 4 {
		window = 4
	}
	step := window / 2
	if step < 1 {
		step = 1
	}
	var features []windowFeature
	for i := 0; i+window <= len(readings); i += step {
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		features = append(features, windowFeature{
			startIdx: i,
			vec:      featureVector(readings[i : i+window]),
		})
	}
	if len(features) < d.cfg.K*2 {
		return nil, nil
	}

	normalizeFeatures(features)
	labels, err := kmeans(features, d.cfg.K, d.cfg.MaxIterations, d.cfg.Seed)
	if err != nil {
		return nil, err
	}

	var out []model.ChangePointCandidate
	for i := 1; i < len(features); i++ {
		if labels[i] != labels[i-1] {
			boundary := features[i].startIdx
			out = append(out, model.ChangePointCandidate{
				Timestamp:  readings[boundary].Timestamp,
				Source:     d.Name(),
				Confidence: 0.6,
			})
		}
	}
	return out, nil
}

func featureVector(window []model.Reading) [3]float64 {
	mean, variance := meanVar(window)
	roc := 0.0
	hours := window[len(window)-1].Timestamp.Sub(window[0].Timestamp).Hours()
	if hours > 0 {
		roc = (window[len(window)-1].Value - window[0].Value) / hours
	}
	return [3]float64{mean, math.Sqrt(variance), roc}
}

// normalizeFeatures z-scores each feature dimension in place so no
// single dimension dominates the distance metric.
func normalizeFeatures(features []windowFeature) {
	for dim := 0; dim < 3; dim++ {
		var mean float64
		for _, f := range features {
			mean += f.vec[dim]
		}
		mean /= float64(len(features))
		var ss float64
		for _, f := range features {
			d := f.vec[dim] - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(len(features)))
		if sd == 0 {
			continue
		}
		for i := range features {
			features[i].vec[dim] = (features[i].vec[dim] - mean) / sd
		}
	}
}

func kmeans(features []windowFeature, k, maxIter int, seed int64) ([]int, error) {
	if k < 2 || len(features) < k {
		return nil, fmt.Errorf("kmeans: need at least %d windows, have %d", k, len(features))
	}
	rng := rand.New(rand.NewSource(seed))
	centroids := make([][3]float64, k)
	for i, idx := range rng.Perm(len(features))[:k] {
		centroids[i] = features[idx].vec
	}

	labels := make([]int, len(features))
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, f := range features {
			best := nearestCentroid(f.vec, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		var sums [][3]float64 = make([][3]float64, k)
		counts := make([]int, k)
		for i, f := range features {
			l := labels[i]
			for dim := 0; dim < 3; dim++ {
				sums[l][dim] += f.vec[dim]
			}
			counts[l]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for dim := 0; dim < 3; dim++ {
				centroids[c][dim] = sums[c][dim] / float64(counts[c])
			}
		}
	}
	return labels, nil
}

func nearestCentroid(vec [3]float64, centroids [][3]float64) int {
	best := 0
	bestDist := math.MaxFloat64
	for c, ct := range centroids {
		var dist float64
		for dim := 0; dim < 3; dim++ {
			d := vec[dim] - ct[dim]
			dist += d * d
		}
		if dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	return best
}
