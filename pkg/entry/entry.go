// Package entry defines the small tagged envelopes passed over the bounded
// channels connecting transports to the pipeline, investigators to the
// curator, and the curator to shippers. Each stage gets its own envelope
// type with a Kind discriminant and only the fields that kind uses
// populated, a plain-struct-plus-Kind-constant style rather than an
// interface-and-type-switch hierarchy.
package entry

import (
	"time"

	"github.com/google/uuid"

	"github.com/scrywarden/scrywarden/pkg/store"
)

// Kind discriminates what an envelope carries.
type Kind int

const (
	// KindMessage carries one ingested message, from a transport.
	KindMessage Kind = iota
	// KindShutdown signals the sender has no more work and is exiting.
	KindShutdown
	// KindMaliciousActivity carries a completed, flagged investigation.
	KindMaliciousActivity
	// KindBlip is a no-op keep-alive entry; receivers discard it.
	KindBlip
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindShutdown:
		return "shutdown"
	case KindMaliciousActivity:
		return "malicious_activity"
	case KindBlip:
		return "blip"
	default:
		return "unknown"
	}
}

// Message is one unit of raw input data a transport produced.
type Message struct {
	ID        uuid.UUID
	Data      map[string]any
	Timestamp time.Time
}

// PipelineEntry flows from a transport into the pipeline coordinator.
type PipelineEntry struct {
	Kind      Kind
	Transport string
	Message   Message
}

// NewMessageEntry wraps a message produced by the named transport.
func NewMessageEntry(transport string, msg Message) PipelineEntry {
	return PipelineEntry{Kind: KindMessage, Transport: transport, Message: msg}
}

// NewTransportShutdownEntry signals that a transport is done sending.
func NewTransportShutdownEntry(transport string) PipelineEntry {
	return PipelineEntry{Kind: KindShutdown, Transport: transport}
}

// CuratorEntry flows from an investigator into the curator.
type CuratorEntry struct {
	Kind          Kind
	Investigator  uuid.UUID
	Investigation store.Investigation
	Events        []store.EventWithAnomalies
}

// NewMaliciousActivityEntry reports a completed investigation together
// with the events the analyzer kept, which may be none.
func NewMaliciousActivityEntry(investigator uuid.UUID, investigation store.Investigation, events []store.EventWithAnomalies) CuratorEntry {
	return CuratorEntry{
		Kind:          KindMaliciousActivity,
		Investigator:  investigator,
		Investigation: investigation,
		Events:        events,
	}
}

// NewInvestigatorShutdownEntry signals an investigator is exiting.
func NewInvestigatorShutdownEntry(investigator uuid.UUID) CuratorEntry {
	return CuratorEntry{Kind: KindShutdown, Investigator: investigator}
}

// ShipperEntry flows from the curator into each shipper.
type ShipperEntry struct {
	Kind          Kind
	Investigation store.Investigation
	Events        []store.EventWithAnomalies
}

// NewShipperMaliciousActivityEntry forwards a finding to a shipper.
func NewShipperMaliciousActivityEntry(investigation store.Investigation, events []store.EventWithAnomalies) ShipperEntry {
	return ShipperEntry{Kind: KindMaliciousActivity, Investigation: investigation, Events: events}
}

// NewShipperBlipEntry is a harmless keep-alive entry; the curator's
// per-shipper loop drops it without calling Ship.
func NewShipperBlipEntry() ShipperEntry {
	return ShipperEntry{Kind: KindBlip}
}
