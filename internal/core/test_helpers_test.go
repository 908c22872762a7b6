package core

import (
	"context"
	"testing"
	"time"

	"github.com/beamlink/relay-server/internal/store"
	"github.com/beamlink/relay-server/internal/store/memory"
)

func newTestHub(t *testing.T) (*Hub, *memory.MemoryStore, context.CancelFunc) {
	t.Helper()

	st := memory.New()
	hub := NewHub(st, nil, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	return hub, st, cancel
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		if ev != nil {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(wait):
	}
}

func createRoom(t *testing.T, c *Client, code string, files []store.FileInfo) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandCreateRoom, Room: code, Files: files}
	ev := mustEvent(t, c.Events, EventRoomCreated)
	if ev.Room != code {
		t.Fatalf("room_created for %q, want %q", ev.Room, code)
	}
}

func joinRoom(t *testing.T, c *Client, code string) *Event {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: code}
	return mustEvent(t, c.Events, EventFileList)
}
