// Package store is the persistence layer for scrywarden: the Profile,
// Field, Actor, Feature, Message, Event, Anomaly, InvestigationGroup,
// Investigator, Investigation and InvestigationEvent tables, and the
// queries the pipeline and investigator run against them.
//
// This replaces the generated ent client the teacher relies on elsewhere in
// the codebase with a hand-written repository on top of pgx directly; see
// DESIGN.md for why ent itself could not be carried forward.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Profile is a registered behavioral profile: a named grouping of fields
// extracted from matching messages.
type Profile struct {
	ID   int64
	Name string
}

// Field is one declared extraction point within a profile.
type Field struct {
	ID        int64
	ProfileID int64
	Name      string
}

// Actor is a distinct entity (user, host, service account, ...) observed
// within a profile's namespace.
type Actor struct {
	ID        int64
	ProfileID int64
	Name      string
}

// Feature is the running frequency histogram entry for one (field, actor,
// value) triple: how many distinct messages have produced that value.
type Feature struct {
	ID      int64
	FieldID int64
	ActorID int64
	Value   string
	Count   int64
}

// Message is a raw ingested message, stored only when it produced at least
// one anomaly.
type Message struct {
	ID   uuid.UUID
	Data map[string]any
}

// Event groups the anomalies produced by one profile for one (message,
// actor) pair.
type Event struct {
	ID        int64
	ProfileID int64
	MessageID uuid.UUID
	ActorID   int64
	CreatedAt time.Time
}

// Anomaly is a single field-level anomaly score attached to an Event.
type Anomaly struct {
	ID        int64
	EventID   int64
	FieldID   int64
	FeatureID int64
	Score     float64
}

// InvestigationGroup names a coordination domain: investigators sharing a
// group compete for the same monotonically increasing investigation index.
type InvestigationGroup struct {
	ID        int64
	ProfileID int64
	Name      string
}

// Investigator is one running investigation worker. Its row is deleted on
// clean shutdown, which is what lets a sibling investigator recognize and
// reap a tombstoned (unassigned, created_by now NULL) investigation.
type Investigator struct {
	ID        uuid.UUID
	ProfileID int64
	CreatedAt time.Time
}

// Investigation is one claimed slot in a group's strictly increasing index
// sequence. CreatedBy is set NULL (not cascaded) when the owning
// investigator is deleted before the investigation was ever assigned.
type Investigation struct {
	ID          int64
	GroupID     int64
	PublicID    string // ULID, external-correlation-friendly alternative to Index
	Index       *int64
	CreatedAt   time.Time
	CreatedBy   *uuid.UUID
	CompletedAt *time.Time
	IsAssigned  bool
	Options     map[string]any
}

// InvestigationEvent links an Investigation to one Event it examined.
type InvestigationEvent struct {
	InvestigationID int64
	EventID         int64
}
