package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a room code has no record.
var ErrNotFound = errors.New("room not found")

// FileInfo describes one file offered in a room. Content is never interpreted
// by the server; chunk semantics belong to the peers.
type FileInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

// Room is the persisted record for a transfer session.
type Room struct {
	// Code is the room identifier chosen by the creating client.
	Code string

	// Files is set once at creation and immutable afterwards.
	Files []FileInfo

	// Sender is the connection ID of the single peer that created the room.
	// It is never reassigned.
	Sender string

	// Recipients maps connection IDs to recipient-owned chunk bookkeeping.
	// The server stores it but never uses it for routing decisions.
	Recipients map[string][]int

	CreatedAt time.Time
}

// RoomStore handles room persistence. Implementations must be safe for
// concurrent use; AddRecipient and RemoveRecipientEverywhere must be atomic
// key operations, never a whole-record read-modify-write.
type RoomStore interface {
	// Get retrieves a room by code. Returns ErrNotFound if absent.
	Get(ctx context.Context, code string) (*Room, error)

	// Upsert writes a room record, replacing any existing record with the
	// same code. Last writer wins, no merge.
	Upsert(ctx context.Context, room *Room) error

	// Delete removes a room record. Deleting an absent room is not an error.
	Delete(ctx context.Context, code string) error

	// AddRecipient inserts a recipient key with empty bookkeeping into an
	// existing room. Returns ErrNotFound if the room is absent. Adding an
	// already present recipient is a no-op.
	AddRecipient(ctx context.Context, code, connID string) error

	// FindBySender returns every room whose sender is the given connection.
	FindBySender(ctx context.Context, connID string) ([]*Room, error)

	// RemoveRecipientEverywhere deletes the recipient key from every room
	// that contains it.
	RemoveRecipientEverywhere(ctx context.Context, connID string) error

	// ExpiredCodes returns codes of rooms created before cutoff.
	ExpiredCodes(ctx context.Context, cutoff time.Time) ([]string, error)

	// Close releases the underlying storage.
	Close() error
}
