// Package analyzer filters a window of scored anomalies down to the ones
// that look malicious rather than merely unusual.
package analyzer

import (
	"math"

	"github.com/scrywarden/scrywarden/pkg/store"
)

// Analyzer decides which events, out of a candidate window, represent
// malicious activity.
type Analyzer interface {
	Analyze(events []store.EventWithAnomalies) []store.EventWithAnomalies
}

// ExponentialDecayAnalyzer subtracts a decaying constant from the mean
// anomaly score of each actor's event group, using the formula
// y = a(1-b)^x: weighted_mean = mean - weight*(1-decay)^(count-1).
//
// A lone high-scoring anomaly is weighted down relative to a large group
// of them from the same actor - one surprising event is less suspicious
// than a sustained run of them. Decay controls how fast that discount
// shrinks as the group grows; a small decay makes the falloff nearly
// linear. Groups whose weighted mean clears Threshold are kept.
type ExponentialDecayAnalyzer struct {
	Weight    float64
	Decay     float64
	Threshold float64
}

// NewExponentialDecayAnalyzer returns an analyzer with the given
// parameters, defaulting to weight=0.2, decay=0.1, threshold=0.5.
func NewExponentialDecayAnalyzer(weight, decay, threshold float64) *ExponentialDecayAnalyzer {
	a := &ExponentialDecayAnalyzer{Weight: 0.2, Decay: 0.1, Threshold: 0.5}
	if weight != 0 {
		a.Weight = weight
	}
	if decay != 0 {
		a.Decay = decay
	}
	if threshold != 0 {
		a.Threshold = threshold
	}
	return a
}

func (a *ExponentialDecayAnalyzer) Analyze(events []store.EventWithAnomalies) []store.EventWithAnomalies {
	type group struct {
		sum   float64
		count int
	}
	groups := make(map[int64]*group)
	for _, e := range events {
		g, ok := groups[e.Event.ActorID]
		if !ok {
			g = &group{}
			groups[e.Event.ActorID] = g
		}
		for _, an := range e.Anomalies {
			g.sum += an.Score
			g.count++
		}
	}

	weighted := make(map[int64]float64, len(groups))
	for actorID, g := range groups {
		mean := 0.0
		if g.count > 0 {
			mean = g.sum / float64(g.count)
		}
		weighted[actorID] = mean - a.Weight*math.Pow(1-a.Decay, float64(g.count-1))
	}

	var out []store.EventWithAnomalies
	for _, e := range events {
		if weighted[e.Event.ActorID] >= a.Threshold {
			out = append(out, e)
		}
	}
	return out
}
