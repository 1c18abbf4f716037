// Package wire defines the client/server message variants that cross the
// duplex connection, and their length-prefixed binary envelope.
package wire

import "github.com/google/uuid"

// ClientTag identifies a ClientMsg variant on the wire. Order is part of
// the wire contract: never renumber an existing tag.
type ClientTag byte

const (
	TagHello ClientTag = iota
	TagJoinInstance
	TagLeaveInstance
	TagPing
	TagRefreshInstances
	TagCustomMsg
)

// ServerTag identifies a ServerMsg variant on the wire.
type ServerTag byte

const (
	TagJoinedLobby ServerTag = iota
	TagInstances
	TagJoinedInstance
	TagJoinRejected
	TagPong
	TagCustom
)

// ClientMsg is the closed set of messages a client may send. Exactly one
// of the typed fields is meaningful, selected by Tag.
type ClientMsg struct {
	Tag ClientTag

	// Hello
	ClientID   uuid.UUID
	ClientName string

	// JoinInstance
	InstanceID uuid.UUID

	// Ping
	Tick float64

	// CustomMsg
	Payload []byte
}

// InstanceInfo mirrors the shared, read-during-tick instance metadata
// (spec.md §3). It crosses the wire by value — a snapshot, never a handle.
type InstanceInfo struct {
	ID             uuid.UUID
	CurrentPlayers uint32
	MaxPlayers     uint32
}

// ServerMsg is the closed set of messages a server may send.
type ServerMsg struct {
	Tag ServerTag

	// Instances
	InstanceList []InstanceInfo

	// JoinedInstance / JoinRejected
	Instance InstanceInfo

	// Pong
	Tick           float64
	ServerBytesSec float32
	ClientBytesSec float32

	// Custom
	Payload []byte
}
