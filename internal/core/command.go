package core

import (
	"encoding/json"

	"github.com/beamlink/relay-server/internal/store"
)

// CommandKind describes what the peer wants to do.
type CommandKind int

const (
	// CommandCreateRoom opens (or overwrites) a room with a file list.
	CommandCreateRoom CommandKind = iota
	// CommandJoinRoom subscribes the connection as a recipient.
	CommandJoinRoom
	// CommandRequestMissingChunks asks the room's sender to resend chunks.
	CommandRequestMissingChunks
	// CommandChunkTransfer relays opaque chunk data to one or all recipients.
	CommandChunkTransfer
	// CommandConfirmFileReceived tells the sender a file arrived in full.
	CommandConfirmFileReceived
)

// Command represents an action requested by a connection.
type Command struct {
	Kind  CommandKind
	Room  string
	Files []store.FileInfo

	FileIndex int
	// ReceivedIndexes carries the chunk indexes the requester already has;
	// the sender computes the complement itself.
	ReceivedIndexes []int

	// Recipient addresses a chunk transfer to a single connection. Empty
	// means multicast to the room, excluding the emitting connection.
	Recipient string

	// Payload is the raw chunk_transfer data, relayed verbatim.
	Payload json.RawMessage
}
