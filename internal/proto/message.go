package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeCreateRoom           = "create_room"
	InboundTypeJoinRoom             = "join_room"
	InboundTypeRequestMissingChunks = "request_missing_chunks"
	InboundTypeChunkTransfer        = "chunk_transfer"
	InboundTypeConfirmFileReceived  = "confirm_file_received"

	OutboundTypeRoomCreated       = "room_created"
	OutboundTypeFileList          = "file_list"
	OutboundTypeError             = "error"
	OutboundTypeSendMissingChunks = "send_missing_chunks"
	OutboundTypeReceiveChunk      = "receive_chunk"
	OutboundTypeFileConfirmed     = "file_confirmed"
	OutboundTypeRoomClosed        = "room_closed"
)

// FileInfo is the wire form of a file descriptor. The server relays it
// without interpreting contents.
type FileInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

// CreateRoomData opens a room with a file list.
type CreateRoomData struct {
	Room  string     `json:"room"`
	Files []FileInfo `json:"files"`
}

// JoinRoomData requests to join a room as a recipient.
type JoinRoomData struct {
	Room string `json:"room"`
}

// RequestMissingChunksData asks the sender to resend chunks. ReceivedIndexes
// lists what the requester already has; the sender derives the rest.
type RequestMissingChunksData struct {
	Room            string `json:"room"`
	FileIndex       int    `json:"file_index"`
	ReceivedIndexes []int  `json:"receivedIndexes"`
}

// ChunkTransferData carries relayed chunk data. Only room and recipient are
// read by the server; the full data object travels through untouched.
type ChunkTransferData struct {
	Room      string `json:"room"`
	Recipient string `json:"recipient,omitempty"`
}

// ConfirmFileReceivedData tells the sender a file arrived completely.
type ConfirmFileReceivedData struct {
	Room      string `json:"room"`
	FileIndex int    `json:"file_index"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// RoomCreatedData confirms room creation to the creator.
type RoomCreatedData struct {
	Room string `json:"room"`
}

// FileListData delivers the room's file list to a joiner.
type FileListData struct {
	Files []FileInfo `json:"files"`
	Room  string     `json:"room"`
}

// SendMissingChunksData forwards a retransmission request to the sender.
type SendMissingChunksData struct {
	FileIndex     int    `json:"file_index"`
	MissingChunks []int  `json:"missing_chunks"`
	Recipient     string `json:"recipient"`
}

// FileConfirmedData notifies the sender which recipient finished a file.
type FileConfirmedData struct {
	FileIndex int    `json:"file_index"`
	Recipient string `json:"recipient"`
}

// RoomClosedData notifies members that their room is gone.
type RoomClosedData struct{}

// ErrorData describes a protocol-level error response.
type ErrorData struct {
	Message string `json:"message"`
}
