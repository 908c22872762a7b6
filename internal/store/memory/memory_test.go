package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/beamlink/relay-server/internal/store"
)

func TestGetUpsertDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "AB12"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	room := &store.Room{
		Code:       "AB12",
		Files:      []store.FileInfo{{Name: "a.txt", Size: 1}},
		Sender:     "s1",
		Recipients: map[string][]int{},
		CreatedAt:  time.Now(),
	}
	if err := s.Upsert(ctx, room); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Get(ctx, "AB12")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sender != "s1" || len(got.Files) != 1 || got.Files[0].Name != "a.txt" {
		t.Fatalf("unexpected room: %+v", got)
	}

	// Upsert with the same code replaces the record wholesale.
	room.Sender = "s2"
	if err := s.Upsert(ctx, room); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}
	got, _ = s.Get(ctx, "AB12")
	if got.Sender != "s2" {
		t.Fatalf("overwrite lost: %+v", got)
	}

	if err := s.Delete(ctx, "AB12"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "AB12"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("room survived delete")
	}

	// Deleting again is not an error.
	if err := s.Delete(ctx, "AB12"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	seedRoom(t, s, "AB12", "s1")

	got, _ := s.Get(ctx, "AB12")
	got.Sender = "tampered"
	got.Recipients["ghost"] = []int{1}

	fresh, _ := s.Get(ctx, "AB12")
	if fresh.Sender != "s1" || len(fresh.Recipients) != 0 {
		t.Fatalf("store state aliased by caller: %+v", fresh)
	}
}

func TestAddRecipient(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.AddRecipient(ctx, "nope", "r1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seedRoom(t, s, "AB12", "s1")
	if err := s.AddRecipient(ctx, "AB12", "r1"); err != nil {
		t.Fatalf("add recipient: %v", err)
	}
	// Adding the same recipient twice is a no-op.
	if err := s.AddRecipient(ctx, "AB12", "r1"); err != nil {
		t.Fatalf("re-add recipient: %v", err)
	}

	room, _ := s.Get(ctx, "AB12")
	if len(room.Recipients) != 1 {
		t.Fatalf("recipients = %+v", room.Recipients)
	}
}

func TestConcurrentAddRecipientLosesNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedRoom(t, s, "AB12", "s1")

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.AddRecipient(ctx, "AB12", fmt.Sprintf("r%d", i)); err != nil {
				t.Errorf("add r%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	room, _ := s.Get(ctx, "AB12")
	if len(room.Recipients) != n {
		t.Fatalf("lost adds: %d of %d recipients", len(room.Recipients), n)
	}
}

func TestFindBySenderAndScrub(t *testing.T) {
	s := New()
	ctx := context.Background()

	seedRoom(t, s, "AB12", "s1")
	seedRoom(t, s, "CD34", "s1")
	seedRoom(t, s, "EF56", "s2")

	_ = s.AddRecipient(ctx, "EF56", "s1")
	_ = s.AddRecipient(ctx, "EF56", "r9")

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
	room, _ := s.Get(ctx, "EF56")
	if _, ok := room.Recipients["s1"]; ok {
		t.Fatal("s1 still a recipient of EF56")
	}
	if _, ok := room.Recipients["r9"]; !ok {
		t.Fatal("scrub removed the wrong recipient")
	}
}

func TestExpiredCodes(t *testing.T) {
	s := New()
	ctx := context.Background()

	old := &store.Room{Code: "OLD1", Sender: "s1", Recipients: map[string][]int{}, CreatedAt: time.Now().Add(-time.Hour)}
	fresh := &store.Room{Code: "NEW1", Sender: "s2", Recipients: map[string][]int{}, CreatedAt: time.Now()}
	_ = s.Upsert(ctx, old)
	_ = s.Upsert(ctx, fresh)

	codes, err := s.ExpiredCodes(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("expired codes: %v", err)
	}
	if len(codes) != 1 || codes[0] != "OLD1" {
		t.Fatalf("expired = %v", codes)
	}
}

func seedRoom(t *testing.T, s *MemoryStore, code, sender string) {
	t.Helper()

	err := s.Upsert(context.Background(), &store.Room{
		Code:       code,
		Files:      []store.FileInfo{{Name: "a.txt"}},
		Sender:     sender,
		Recipients: map[string][]int{},
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", code, err)
	}
}
