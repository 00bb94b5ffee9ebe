package reporter

import "github.com/scrywarden/scrywarden/pkg/store"

// Optional scores a field an actor may legitimately omit. Reporting no
// value (an empty string) always scores 0 - that's the expected case.
// Reporting a genuinely new, never-seen value scores in proportion to how
// often the actor is usually null for this field: a value from someone
// who almost always omits it is more surprising than one from someone who
// usually reports something.
type Optional struct {
	Weight float64
}

// NewOptional returns an Optional reporter. Weight defaults to 1.0 when <= 0.
func NewOptional(weight float64) *Optional {
	if weight <= 0 {
		weight = 1.0
	}
	return &Optional{Weight: weight}
}

func (o *Optional) Score(values []ValueRow, features []store.Feature) []ScoredRow {
	fa := uniqueFAKeys(values)
	byFA, byFAV := indexFeatures(features, fa)

	totalByFA := make(map[faKey]float64, len(byFA))
	for k, fs := range byFA {
		var total float64
		for _, f := range fs {
			total += float64(f.Count)
		}
		totalByFA[k] = total
	}

	rows := make([]*workRow, len(values))
	for i, v := range values {
		k := faKey{v.FieldID, v.ActorID}
		nullCount := 0.0
		if f, ok := byFAV[favKey{v.FieldID, v.ActorID, ""}]; ok {
			nullCount = float64(f.Count)
		}
		count := 0.0
		var featureID int64
		if f, ok := byFAV[favKey{v.FieldID, v.ActorID, v.Value}]; ok {
			count = float64(f.Count)
			featureID = f.ID
		}
		rows[i] = &workRow{
			ValueRow:  v,
			FeatureID: featureID,
			Total:     totalByFA[k],
			NullCount: nullCount,
			Count:     count,
		}
	}

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
			r.NullCount += counter
		}
		if r.Value == "" {
			counter++
		}
	}

	incrementCount(rows)

	out := make([]ScoredRow, len(rows))
	for i, r := range rows {
		score := 0.0
		neNull := r.Value != ""
		eZero := r.Count == 0
		switch {
		case neNull && eZero && r.Total == 0:
			score = 1.0
		case neNull && eZero:
			score = r.NullCount / r.Total
		}
		score *= o.Weight
		out[i] = ScoredRow{ValueRow: r.ValueRow, FeatureID: r.FeatureID, Score: score}
	}
	return out
}
