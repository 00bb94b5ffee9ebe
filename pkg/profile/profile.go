// Package profile implements behavioral profile registration: declaring
// which fields to extract from a message, matching messages against a
// profile, identifying the actor for a match, and scoring the extracted
// values against stored feature history.
package profile

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/errs"
	"github.com/scrywarden/scrywarden/pkg/jsonvalue"
	"github.com/scrywarden/scrywarden/pkg/reporter"
	"github.com/scrywarden/scrywarden/pkg/store"
)

// MatchFunc decides whether a message belongs to a profile.
type MatchFunc func(message map[string]any) bool

// ActorFunc extracts the actor name a message should be attributed to.
type ActorFunc func(message map[string]any) (string, error)

// FieldDef declares one field a profile extracts and how it's scored.
type FieldDef struct {
	Name      string
	Extractor Extractor
	Reporter  reporter.Reporter
}

// Definition is a registered, not-yet-synced profile: its name, field
// declarations, and the predicate/extractor functions identifying which
// messages it applies to. Build one with NewDefinition and AddField, then
// Sync it against the store once at process start.
type Definition struct {
	Name      string
	Matches   MatchFunc
	GetActor  ActorFunc
	fields    []FieldDef
	fieldSeen map[string]struct{}
}

// NewDefinition starts a new profile registration.
func NewDefinition(name string, matches MatchFunc, getActor ActorFunc) *Definition {
	return &Definition{
		Name:      name,
		Matches:   matches,
		GetActor:  getActor,
		fieldSeen: make(map[string]struct{}),
	}
}

// AddField registers one extraction field. A nil reporter defaults to
// Mandatory(1.0). Returns a ProfileError if the name is already declared.
func (d *Definition) AddField(name string, extractor Extractor, rep reporter.Reporter) error {
	if _, ok := d.fieldSeen[name]; ok {
		return errs.NewProfileError(d.Name, name, errs.ErrDuplicateFieldName)
	}
	if rep == nil {
		rep = reporter.NewMandatory(1.0)
	}
	if ne, ok := extractor.(namedExtractor); ok {
		ne.setName(name)
	}
	d.fieldSeen[name] = struct{}{}
	d.fields = append(d.fields, FieldDef{Name: name, Extractor: extractor, Reporter: rep})
	return nil
}

// fieldBinding pairs a declared field with its synced store.Field row.
type fieldBinding struct {
	FieldDef
	Model store.Field
}

// Profile is a Definition bound to its synced Profile/Field rows,
// ready to identify and score messages.
type Profile struct {
	Def          *Definition
	Model        store.Profile
	byName       map[string]fieldBinding
	byID         map[int64]fieldBinding
	orderedIDs   []int64
}

// Sync gets or creates the profile and its fields in the store, binding
// the definition to real IDs.
func Sync(ctx context.Context, repo *store.Repo, def *Definition) (*Profile, error) {
	model, err := repo.SyncProfile(ctx, def.Name)
	if err != nil {
		return nil, errs.NewProfileError(def.Name, "", err)
	}
	names := make([]string, len(def.fields))
	for i, f := range def.fields {
		names[i] = f.Name
	}
	fields, err := repo.SyncFields(ctx, model.ID, names)
	if err != nil {
		return nil, errs.NewProfileError(def.Name, "", err)
	}
	return Bind(def, model, fields), nil
}

// Bind assembles a Profile from a Definition and already-resolved
// Profile/Field rows, without touching the store. Sync uses this after
// syncing; it's also the seam tests use to build a Profile from fixed IDs.
func Bind(def *Definition, model store.Profile, fields map[string]store.Field) *Profile {
	byName := make(map[string]fieldBinding, len(def.fields))
	byID := make(map[int64]fieldBinding, len(def.fields))
	ids := make([]int64, 0, len(def.fields))
	for _, f := range def.fields {
		fm := fields[f.Name]
		b := fieldBinding{FieldDef: f, Model: fm}
		byName[f.Name] = b
		byID[fm.ID] = b
		ids = append(ids, fm.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &Profile{Def: def, Model: model, byName: byName, byID: byID, orderedIDs: ids}
}

// IdentifiedRow is one extracted field value, keyed by actor NAME rather
// than actor ID since the actor may not exist in the store yet - the
// pipeline resolves names to IDs after upserting actors.
type IdentifiedRow struct {
	MessageID uuid.UUID
	Timestamp time.Time
	ActorName string
	FieldID   int64
	Value     string
}

// Identify filters messages to the ones matching this profile, extracts
// each declared field's value, and returns one row per (message, field)
// pair. Messages that fail actor extraction are logged and dropped rather
// than aborting the batch; a field value that cannot be serialized is
// recorded as the empty string.
func (p *Profile) Identify(ctx context.Context, logger *slog.Logger, messages []entry.Message) []IdentifiedRow {
	var rows []IdentifiedRow
	for _, msg := range messages {
		if !p.Def.Matches(msg.Data) {
			continue
		}
		actorName, err := p.Def.GetActor(msg.Data)
		if err != nil {
			logger.WarnContext(ctx, "dropping message: actor extraction failed",
				"profile", p.Def.Name, "message_id", msg.ID, "error", err)
			continue
		}
		for _, fieldID := range p.orderedIDs {
			binding := p.byID[fieldID]
			value := binding.Extractor.Value(msg.Data)
			rows = append(rows, IdentifiedRow{
				MessageID: msg.ID,
				Timestamp: msg.Timestamp,
				ActorName: actorName,
				FieldID:   fieldID,
				Value:     jsonvalue.Encode(value),
			})
		}
	}
	return rows
}

// Process scores every extracted value, one field at a time in ascending
// field-ID order, threading incremental feature-count updates forward so
// later fields in the same call see counts updated by earlier ones.
func (p *Profile) Process(values []reporter.ValueRow, features []store.Feature) ([]reporter.ScoredRow, []store.Feature) {
	byField := make(map[int64][]reporter.ValueRow)
	for _, v := range values {
		byField[v.FieldID] = append(byField[v.FieldID], v)
	}

	var results []reporter.ScoredRow
	for _, fieldID := range p.orderedIDs {
		group := byField[fieldID]
		if len(group) == 0 {
			continue
		}
		binding := p.byID[fieldID]
		scored := binding.Reporter.Score(group, features)
		results = append(results, scored...)
		features = updateFeatureCount(scored, features)
	}
	return results, features
}

// FieldIDByName returns the store field ID for a declared field name.
func (p *Profile) FieldIDByName(name string) (int64, bool) {
	b, ok := p.byName[name]
	return b.Model.ID, ok
}

// updateFeatureCount folds the distinct-message-count delta each scored
// row represents into the in-memory feature set, appending a
// not-yet-persisted (FeatureID 0) row for any (field, actor, value) with
// no prior Feature.
func updateFeatureCount(scored []reporter.ScoredRow, features []store.Feature) []store.Feature {
	type key struct {
		FieldID int64
		ActorID int64
		Value   string
	}
	deltas := make(map[key]map[uuid.UUID]struct{})
	for _, s := range scored {
		k := key{s.FieldID, s.ActorID, s.Value}
		if deltas[k] == nil {
			deltas[k] = make(map[uuid.UUID]struct{})
		}
		deltas[k][s.MessageID] = struct{}{}
	}

	matched := make(map[key]struct{}, len(deltas))
	out := make([]store.Feature, len(features))
	copy(out, features)
	for i := range out {
		k := key{out[i].FieldID, out[i].ActorID, out[i].Value}
		if msgs, ok := deltas[k]; ok {
			out[i].Count += int64(len(msgs))
			matched[k] = struct{}{}
		}
	}
	for k, msgs := range deltas {
		if _, ok := matched[k]; ok {
			continue
		}
		out = append(out, store.Feature{
			FieldID: k.FieldID,
			ActorID: k.ActorID,
			Value:   k.Value,
			Count:   int64(len(msgs)),
		})
	}
	return out
}
