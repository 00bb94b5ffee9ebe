// Package reporter implements the two scoring strategies a profile field
// attaches to: Mandatory, for fields that must always carry a value, and
// Optional, for fields an actor may legitimately omit.
//
// Both reporters score a batch of extracted values for a single field
// against the field's historical per-actor value histogram (its
// Features). Multiple occurrences of the same actor/value within one
// batch are scored as if they had arrived one at a time, in timestamp
// order, by applying an incremental rank offset before scoring rather
// than scoring the whole batch against one static snapshot of history.
package reporter

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrywarden/scrywarden/pkg/store"
)

// ValueRow is one extracted (field, actor, value) observation for a single message.
type ValueRow struct {
	FieldID   int64
	ActorID   int64
	MessageID uuid.UUID
	Timestamp time.Time
	Value     string
}

// ScoredRow is a ValueRow with its computed anomaly score and the Feature
// row it was scored against (FeatureID is 0 when the value was never seen
// before and has no Feature row yet).
type ScoredRow struct {
	ValueRow
	FeatureID int64
	Score     float64
}

// Reporter scores a batch of field values against the field's feature history.
type Reporter interface {
	Score(values []ValueRow, features []store.Feature) []ScoredRow
}

type faKey struct {
	FieldID int64
	ActorID int64
}

type favKey struct {
	FieldID int64
	ActorID int64
	Value   string
}

type workRow struct {
	ValueRow
	FeatureID    int64
	Count        float64
	Total        float64
	Groups       float64
	Mean         float64
	PreviousMean float64
	NullCount    float64
	Score        float64
}

func uniqueFAKeys(values []ValueRow) map[faKey]struct{} {
	out := make(map[faKey]struct{})
	for _, v := range values {
		out[faKey{v.FieldID, v.ActorID}] = struct{}{}
	}
	return out
}

func indexFeatures(features []store.Feature, fa map[faKey]struct{}) (byFA map[faKey][]store.Feature, byFAV map[favKey]store.Feature) {
	byFA = make(map[faKey][]store.Feature)
	byFAV = make(map[favKey]store.Feature)
	for _, f := range features {
		k := faKey{f.FieldID, f.ActorID}
		if _, ok := fa[k]; !ok {
			continue
		}
		byFA[k] = append(byFA[k], f)
		byFAV[favKey{f.FieldID, f.ActorID, f.Value}] = f
	}
	return byFA, byFAV
}

// incrementTotal adds, to each row's Total, its 0-based rank among the
// other rows sharing its ActorID once sorted by (ActorID, Timestamp) -
// simulating each message in the batch being processed one at a time.
func incrementTotal(rows []*workRow) {
	sorted := append([]*workRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ActorID != sorted[j].ActorID {
			return sorted[i].ActorID < sorted[j].ActorID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	var section int64 = -1
	var first int
	for i, r := range sorted {
		if r.ActorID != section {
			section = r.ActorID
			first = i
		}
		r.Total += float64(i - first)
	}
}

// incrementCount adds, to each row's Count, its 0-based rank among the
// other rows sharing its (ActorID, Value) once sorted by (ActorID, Value,
// Timestamp).
func incrementCount(rows []*workRow) {
	sorted := append([]*workRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ActorID != sorted[j].ActorID {
			return sorted[i].ActorID < sorted[j].ActorID
		}
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	var section int64 = -1
	var value string
	var first int
	for i, r := range sorted {
		if r.ActorID != section || r.Value != value {
			section = r.ActorID
			value = r.Value
			first = i
		}
		r.Count += float64(i - first)
	}
}

// sortedByActorTimestamp returns rows ordered by (ActorID, Timestamp),
// the order the stateful per-actor callbacks below must walk in.
func sortedByActorTimestamp(rows []*workRow) []*workRow {
	sorted := append([]*workRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ActorID != sorted[j].ActorID {
			return sorted[i].ActorID < sorted[j].ActorID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
