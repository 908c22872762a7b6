package sqlite

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/beamlink/relay-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoomRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "AB12"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	files := []store.FileInfo{
		{Name: "a.txt", Size: 10, ChunkCount: 1},
		{Name: "b.bin", Size: 4096, ChunkCount: 8},
	}
	room := &store.Room{
		Code:       "AB12",
		Files:      files,
		Sender:     "s1",
		Recipients: map[string][]int{"r1": {0, 1}},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Upsert(ctx, room); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Get(ctx, "AB12")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sender != "s1" {
		t.Fatalf("sender = %q", got.Sender)
	}
	if !reflect.DeepEqual(got.Files, files) {
		t.Fatalf("files mismatch: %+v", got.Files)
	}
	if !reflect.DeepEqual(got.Recipients["r1"], []int{0, 1}) {
		t.Fatalf("recipients mismatch: %+v", got.Recipients)
	}
}

func TestUpsertReplacesRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &store.Room{
		Code:       "AB12",
		Files:      []store.FileInfo{{Name: "old.txt"}},
		Sender:     "s1",
		Recipients: map[string][]int{"r1": {}},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &store.Room{
		Code:       "AB12",
		Files:      []store.FileInfo{{Name: "new.txt"}},
		Sender:     "s2",
		Recipients: map[string][]int{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.Get(ctx, "AB12")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sender != "s2" || got.Files[0].Name != "new.txt" || len(got.Recipients) != 0 {
		t.Fatalf("last writer did not win: %+v", got)
	}
}

func TestAddRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddRecipient(ctx, "nope", "r1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seedRoom(t, s, "AB12", "s1")
	if err := s.AddRecipient(ctx, "AB12", "r1"); err != nil {
		t.Fatalf("add recipient: %v", err)
	}
	if err := s.AddRecipient(ctx, "AB12", "r1"); err != nil {
		t.Fatalf("re-add recipient: %v", err)
	}

	got, err := s.Get(ctx, "AB12")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Recipients) != 1 {
		t.Fatalf("recipients = %+v", got.Recipients)
	}
	if chunks := got.Recipients["r1"]; len(chunks) != 0 {
		t.Fatalf("new recipient bookkeeping not empty: %v", chunks)
	}
}

func TestFindBySenderAndScrub(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRoom(t, s, "AB12", "s1")
	seedRoom(t, s, "CD34", "s1")
	seedRoom(t, s, "EF56", "s2")

	if err := s.AddRecipient(ctx, "EF56", "s1"); err != nil {
		t.Fatalf("add recipient: %v", err)
	}

	owned, err := s.FindBySender(ctx, "s1")
	if err != nil {
		t.Fatalf("find by sender: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("owned = %d rooms", len(owned))
	}

	if err := s.RemoveRecipientEverywhere(ctx, "s1"); err != nil {
		t.Fatalf("scrub: %v", err)
	}
	got, err := s.Get(ctx, "EF56")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := got.Recipients["s1"]; ok {
		t.Fatal("s1 still a recipient of EF56")
	}
}

func TestDeleteRemovesRecipients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRoom(t, s, "AB12", "s1")
	if err := s.AddRecipient(ctx, "AB12", "r1"); err != nil {
		t.Fatalf("add recipient: %v", err)
	}

	if err := s.Delete(ctx, "AB12"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "AB12"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("room survived delete")
	}

	// Recreating the room must not resurrect old recipients.
	seedRoom(t, s, "AB12", "s2")
	got, err := s.Get(ctx, "AB12")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Recipients) != 0 {
		t.Fatalf("stale recipients: %+v", got.Recipients)
	}
}

func TestExpiredCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &store.Room{
		Code:       "OLD1",
		Files:      []store.FileInfo{},
		Sender:     "s1",
		Recipients: map[string][]int{},
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	if err := s.Upsert(ctx, old); err != nil {
		t.Fatalf("upsert old: %v", err)
	}
	seedRoom(t, s, "NEW1", "s2")

	codes, err := s.ExpiredCodes(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("expired codes: %v", err)
	}
	if len(codes) != 1 || codes[0] != "OLD1" {
		t.Fatalf("expired = %v", codes)
	}
}

func seedRoom(t *testing.T, s *SQLiteStore, code, sender string) {
	t.Helper()

	err := s.Upsert(context.Background(), &store.Room{
		Code:       code,
		Files:      []store.FileInfo{{Name: "a.txt"}},
		Sender:     sender,
		Recipients: map[string][]int{},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", code, err)
	}
}
