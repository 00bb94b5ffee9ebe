package reporter

import "github.com/scrywarden/scrywarden/pkg/store"

// Mandatory scores a field whose absence is itself the strongest possible
// signal: a never-before-seen value, or a missing one, scores 1.0
// (adjusted by Weight). Otherwise a value below its actor's historical
// mean count scores proportionally to its rarity.
type Mandatory struct {
	Weight float64
}

// NewMandatory returns a Mandatory reporter. Weight defaults to 1.0 when <= 0.
func NewMandatory(weight float64) *Mandatory {
	if weight <= 0 {
		weight = 1.0
	}
	return &Mandatory{Weight: weight}
}

func (m *Mandatory) Score(values []ValueRow, features []store.Feature) []ScoredRow {
	fa := uniqueFAKeys(values)
	byFA, byFAV := indexFeatures(features, fa)

	type faAgg struct {
		groups float64
		total  float64
		mean   float64
	}
	aggByFA := make(map[faKey]faAgg, len(byFA))
	for k, fs := range byFA {
		var total float64
		for _, f := range fs {
			total += float64(f.Count)
		}
		groups := float64(len(fs))
		mean := 0.0
		if groups > 0 {
			mean = total / groups
		}
		aggByFA[k] = faAgg{groups: groups, total: total, mean: mean}
	}

	rows := make([]*workRow, len(values))
	for i, v := range values {
		agg := aggByFA[faKey{v.FieldID, v.ActorID}]
		f, hasFeature := byFAV[favKey{v.FieldID, v.ActorID, v.Value}]
		count := 0.0
		var featureID int64
		if hasFeature {
			count = float64(f.Count)
			featureID = f.ID
		}
		rows[i] = &workRow{
			ValueRow:  v,
			FeatureID: featureID,
			Count:     count,
			Total:     agg.total,
			Groups:    agg.groups,
			Mean:      agg.mean,
		}
	}

	for _, r := range rows {
		switch {
		case r.Groups > 1 && r.Count != 0:
			r.PreviousMean = (r.Mean*r.Groups - r.Count) / (r.Groups - 1)
		case r.Groups > 1:
			r.PreviousMean = r.Mean
		default:
			r.PreviousMean = 0
		}
	}

	incrementCount(rows)
	incrementTotal(rows)

	ordered := sortedByActorTimestamp(rows)
	var section int64 = -1
	var counter float64
	for _, r := range ordered {
		if r.ActorID != section {
			section = r.ActorID
			counter = 0
		}
		if counter > 0 {
			r.Groups += counter
		}
		if r.Count == 0 {
			counter++
		}
	}

	for _, r := range rows {
		if r.Groups > 0 {
			r.Mean = r.PreviousMean + (r.Count-r.PreviousMean)/r.Groups
		}
	}

	out := make([]ScoredRow, len(rows))
	for i, r := range rows {
		score := 0.0
		switch {
		case r.Value == "" || r.Count == 0:
			score = 1.0
		case r.Count < r.Mean:
			score = 1 - r.Count/r.Total
		}
		score *= m.Weight
		out[i] = ScoredRow{ValueRow: r.ValueRow, FeatureID: r.FeatureID, Score: score}
	}
	return out
}
