// Package eventbus fans instance lifecycle events out to observers
// (spec.md §6 Observability, expanded in SPEC_FULL.md §4.J). It is
// explicitly informational: nothing downstream of it can affect an
// instance's state or a client's session, and it carries no client
// traffic.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which lifecycle transition an Event reports.
type Kind string

const (
	KindInstanceCreated    Kind = "instance_created"
	KindClientJoined       Kind = "client_joined"
	KindClientLeft         Kind = "client_left"
	KindInstanceTerminated Kind = "instance_terminated"
)

// Event is the JSON-serialized envelope published to every topic. Fields
// unused by a given Kind are left zero.
type Event struct {
	Kind       Kind      `json:"kind"`
	InstanceID uuid.UUID `json:"instance_id"`
	ClientID   uuid.UUID `json:"client_id,omitempty"`
	ClientName string    `json:"client_name,omitempty"`
	At         time.Time `json:"at"`
}

// topic maps an event Kind to its routing key, mirroring the one
// routing-key-per-event-type convention used for the chat delivery
// service's domain events.
func (e Event) topic() string { return "hostess.instance." + string(e.Kind) }
