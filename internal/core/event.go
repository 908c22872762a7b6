package core

import (
	"encoding/json"

	"github.com/beamlink/relay-server/internal/store"
)

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventRoomCreated confirms room creation to the creator.
	EventRoomCreated EventKind = iota
	// EventFileList delivers the room's file list to a joiner.
	EventFileList
	// EventSendMissingChunks forwards a retransmission request to the sender.
	EventSendMissingChunks
	// EventReceiveChunk delivers relayed chunk data to a recipient.
	EventReceiveChunk
	// EventFileConfirmed tells the sender a recipient finished a file.
	EventFileConfirmed
	// EventRoomClosed notifies members that their room is gone.
	EventRoomClosed
	// EventError notifies a connection about a domain error.
	EventError
)

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind  EventKind
	Room  string
	Files []store.FileInfo

	FileIndex     int
	MissingChunks []int

	// Recipient identifies the connection a retransmission request or
	// confirmation came from, so the sender can answer it directly.
	Recipient string

	Payload json.RawMessage
	Error   *CoreError
}
