package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/beamlink/relay-server/internal/store"
)

// Hub owns the room lifecycle and relays transfer messages between the
// sender and recipients of each room. All state transitions run on the hub
// loop; the store is re-read on every operation so no room state goes stale
// across calls.
type Hub struct {
	store store.RoomStore
	log   *zerolog.Logger

	roomTTL    time.Duration
	sweepEvery time.Duration

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	done       chan struct{}

	// clients indexes live connections by ID for sender-directed delivery.
	clients map[string]*Client
	// groups holds the multicast membership per room code.
	groups map[string]*Group
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// NewHub creates a hub on top of the given room store. roomTTL of zero
// disables the expiry reaper.
func NewHub(st store.RoomStore, logger *zerolog.Logger, roomTTL, sweepEvery time.Duration) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Hub{
		store:      st,
		log:        logger,
		roomTTL:    roomTTL,
		sweepEvery: sweepEvery,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		groups:     make(map[string]*Group),
	}
}

// RegisterClient announces a new connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient signals that a connection has gone away. Safe to call
// more than once for the same client, and after the hub has stopped.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run processes registrations, commands and expiry sweeps until the context
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var sweep <-chan time.Time
	if h.roomTTL > 0 {
		ticker := time.NewTicker(h.sweepEvery)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.addClient(ctx, c)
		case c := <-h.unregister:
			h.handleDisconnect(ctx, c)
		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)
		case <-sweep:
			h.sweepExpired(ctx)
		}
	}
}

func (h *Hub) addClient(ctx context.Context, c *Client) {
	h.clients[c.ID] = c
	h.log.Debug().Str("conn_id", c.ID).Msg("client registered")

	// Pump the client's commands into the hub loop, tagged with the client.
	go func() {
		for {
			select {
			case cmd, ok := <-c.Commands:
				if !ok {
					return
				}
				select {
				case h.commands <- clientCommand{client: c, cmd: cmd}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	// Commands racing with a disconnect are dropped.
	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandCreateRoom:
		h.handleCreateRoom(ctx, c, cmd)
	case CommandJoinRoom:
		h.handleJoinRoom(ctx, c, cmd)
	case CommandRequestMissingChunks:
		h.handleRequestMissingChunks(ctx, c, cmd)
	case CommandChunkTransfer:
		h.handleChunkTransfer(ctx, c, cmd)
	case CommandConfirmFileReceived:
		h.handleConfirmFileReceived(ctx, c, cmd)
	default:
		h.log.Warn().Int("kind", int(cmd.Kind)).Msg("unknown command kind")
	}
}

// handleCreateRoom upserts the room record unconditionally. Creating over an
// existing code replaces it; that is the accepted overwrite semantic, not a
// conflict.
func (h *Hub) handleCreateRoom(ctx context.Context, c *Client, cmd *Command) {
	room := &store.Room{
		Code:       cmd.Room,
		Files:      cmd.Files,
		Sender:     c.ID,
		Recipients: make(map[string][]int),
		CreatedAt:  time.Now(),
	}
	if err := h.store.Upsert(ctx, room); err != nil {
		h.log.Error().Err(err).Str("room", cmd.Room).Msg("upsert room")
		h.send(c, errorEvent(coreError(ErrCodeStoreFailure, "storage unavailable")))
		return
	}

	h.group(cmd.Room).AddClient(c)
	h.send(c, &Event{Kind: EventRoomCreated, Room: cmd.Room})
	h.log.Info().Str("room", cmd.Room).Str("conn_id", c.ID).Int("files", len(cmd.Files)).Msg("room created")
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, cmd *Command) {
	room, err := h.store.Get(ctx, cmd.Room)
	if err != nil {
		h.sendJoinError(c, cmd.Room, err)
		return
	}

	// The recipient key insert is atomic in the store; a concurrent join for
	// the same room cannot lose this add.
	if err := h.store.AddRecipient(ctx, cmd.Room, c.ID); err != nil {
		h.sendJoinError(c, cmd.Room, err)
		return
	}

	h.group(cmd.Room).AddClient(c)
	h.send(c, &Event{Kind: EventFileList, Room: cmd.Room, Files: room.Files})
	h.log.Info().Str("room", cmd.Room).Str("conn_id", c.ID).Msg("recipient joined")
}

func (h *Hub) sendJoinError(c *Client, code string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.log.Debug().Str("room", code).Str("conn_id", c.ID).Msg("join for unknown room")
		h.send(c, errorEvent(coreError(ErrCodeRoomNotFound, "Room not found")))
		return
	}
	h.log.Error().Err(err).Str("room", code).Msg("join room")
	h.send(c, errorEvent(coreError(ErrCodeStoreFailure, "storage unavailable")))
}

// handleRequestMissingChunks forwards the requester's received-index set to
// the sender, which computes the complement itself. Unknown rooms are logged
// and dropped; there is no one to answer.
func (h *Hub) handleRequestMissingChunks(ctx context.Context, c *Client, cmd *Command) {
	sender, err := h.lookupSender(ctx, cmd.Room)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.send(c, errorEvent(coreError(ErrCodeStoreFailure, "storage unavailable")))
		}
		return
	}
	h.send(sender, &Event{
		Kind:          EventSendMissingChunks,
		Room:          cmd.Room,
		FileIndex:     cmd.FileIndex,
		MissingChunks: cmd.ReceivedIndexes,
		Recipient:     c.ID,
	})
}

// handleChunkTransfer relays opaque chunk data: point-to-point when a
// recipient is named, otherwise to every room member except the emitter.
func (h *Hub) handleChunkTransfer(_ context.Context, c *Client, cmd *Command) {
	ev := &Event{Kind: EventReceiveChunk, Room: cmd.Room, Payload: cmd.Payload}

	if cmd.Recipient != "" {
		target, ok := h.clients[cmd.Recipient]
		if !ok {
			h.log.Debug().Str("recipient", cmd.Recipient).Msg("chunk for unknown recipient")
			return
		}
		h.send(target, ev)
		return
	}

	g, ok := h.groups[cmd.Room]
	if !ok {
		h.log.Debug().Str("room", cmd.Room).Msg("chunk for unknown room")
		return
	}
	g.BroadcastExcept(ev, c)
}

func (h *Hub) handleConfirmFileReceived(ctx context.Context, c *Client, cmd *Command) {
	sender, err := h.lookupSender(ctx, cmd.Room)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.send(c, errorEvent(coreError(ErrCodeStoreFailure, "storage unavailable")))
		}
		return
	}
	h.send(sender, &Event{
		Kind:      EventFileConfirmed,
		Room:      cmd.Room,
		FileIndex: cmd.FileIndex,
		Recipient: c.ID,
	})
}

// handleDisconnect tears down every room the connection owns and scrubs it
// from the recipient sets of all others. Duplicate disconnects are no-ops.
func (h *Hub) handleDisconnect(ctx context.Context, c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)

	for _, g := range h.groups {
		g.RemoveClient(c)
	}

	owned, err := h.store.FindBySender(ctx, c.ID)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("find rooms by sender")
	}
	for _, room := range owned {
		h.closeRoom(ctx, room.Code)
	}

	if err := h.store.RemoveRecipientEverywhere(ctx, c.ID); err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Msg("scrub recipient")
	}

	close(c.Events)
	h.log.Debug().Str("conn_id", c.ID).Msg("client unregistered")
}

// closeRoom notifies remaining members and deletes the record.
func (h *Hub) closeRoom(ctx context.Context, code string) {
	if g, ok := h.groups[code]; ok {
		g.Broadcast(&Event{Kind: EventRoomClosed, Room: code})
		delete(h.groups, code)
	}
	if err := h.store.Delete(ctx, code); err != nil {
		h.log.Error().Err(err).Str("room", code).Msg("delete room")
	}
	h.log.Info().Str("room", code).Msg("room closed")
}

func (h *Hub) sweepExpired(ctx context.Context) {
	codes, err := h.store.ExpiredCodes(ctx, time.Now().Add(-h.roomTTL))
	if err != nil {
		h.log.Error().Err(err).Msg("list expired rooms")
		return
	}
	for _, code := range codes {
		h.log.Info().Str("room", code).Msg("reaping expired room")
		h.closeRoom(ctx, code)
	}
}

// lookupSender resolves the live sender connection for a room code. A blank
// or unknown code is logged and reported as store.ErrNotFound; any other
// error is a store failure the caller may surface.
func (h *Hub) lookupSender(ctx context.Context, code string) (*Client, error) {
	if strings.TrimSpace(code) == "" {
		h.log.Debug().Msg("sender lookup with blank room code")
		return nil, store.ErrNotFound
	}

	room, err := h.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.log.Debug().Str("room", code).Msg("sender lookup for unknown room")
		} else {
			h.log.Error().Err(err).Str("room", code).Msg("sender lookup")
		}
		return nil, err
	}

	sender, ok := h.clients[room.Sender]
	if !ok {
		h.log.Debug().Str("room", code).Str("sender", room.Sender).Msg("sender not connected")
		return nil, store.ErrNotFound
	}
	return sender, nil
}

func (h *Hub) group(code string) *Group {
	g, ok := h.groups[code]
	if !ok {
		g = NewGroup(code)
		h.groups[code] = g
	}
	return g
}

func (h *Hub) send(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.log.Debug().Str("conn_id", c.ID).Msg("dropping event for slow consumer")
	}
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
