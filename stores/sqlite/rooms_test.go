package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"liveroom/core"
)

func TestMain(m *testing.M) {
	if !CGOEnabled {
		fmt.Println("skipping sqlite store tests: CGO disabled")
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *roomRegistry {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewRoomRegistry(dbPath).(*roomRegistry)
	t.Cleanup(func() { _ = store.Close() })

	var mu sync.Mutex
	now := time.Unix(1714557600, 0)
	store.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return store
}

func TestNewRoomRegistry(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewRoomRegistry(dbPath)
	if store == nil {
		t.Fatal("NewRoomRegistry() returned nil")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("NewRoomRegistry() did not create database file")
	}
}

func TestNewRoomRegistry_TableCreated(t *testing.T) {
	store := setupTestDB(t)

	var tableName string
	err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='rooms'").Scan(&tableName)
	if err != nil {
		t.Fatalf("rooms table not created: %v", err)
	}
}

func TestRecordViewers_TracksPeak(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, n := range []int{2, 7, 3} {
		if err := store.RecordViewers(ctx, "room-1", n); err != nil {
			t.Fatalf("RecordViewers(%d) failed: %v", n, err)
		}
	}

	room, err := store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom() failed: %v", err)
	}
	if room.Viewers != 3 {
		t.Errorf("Expected 3 viewers, got %d", room.Viewers)
	}
	if room.PeakViewers != 7 {
		t.Errorf("Expected peak 7, got %d", room.PeakViewers)
	}
	if room.LastActive == 0 {
		t.Error("Expected last activity to be set")
	}
}

func TestTouchRoom_KeepsViewers(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.RecordViewers(ctx, "room-1", 5); err != nil {
		t.Fatalf("RecordViewers() failed: %v", err)
	}
	before, _ := store.GetRoom(ctx, "room-1")
	if err := store.TouchRoom(ctx, "room-1"); err != nil {
		t.Fatalf("TouchRoom() failed: %v", err)
	}
	after, err := store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom() failed: %v", err)
	}
	if after.Viewers != 5 {
		t.Errorf("Expected 5 viewers, got %d", after.Viewers)
	}
	if after.LastActive <= before.LastActive {
		t.Errorf("Expected last activity to advance, got %d -> %d", before.LastActive, after.LastActive)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	store := setupTestDB(t)
	if _, err := store.GetRoom(context.Background(), "missing"); !errors.Is(err, core.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestListRooms_Ordering(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"room-a", "room-b", "room-c", "room-a"} {
		if err := store.TouchRoom(ctx, id); err != nil {
			t.Fatalf("TouchRoom() failed: %v", err)
		}
	}

	rooms, err := store.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() failed: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("Expected 3 rooms, got %d", len(rooms))
	}
	want := []string{"room-a", "room-c", "room-b"}
	for i, id := range want {
		if rooms[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, rooms[i].ID)
		}
	}
}

func TestDeleteRoom(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.TouchRoom(ctx, "room-1"); err != nil {
		t.Fatalf("TouchRoom() failed: %v", err)
	}
	if err := store.DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteRoom() failed: %v", err)
	}
	if _, err := store.GetRoom(ctx, "room-1"); !errors.Is(err, core.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound after delete, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.TouchRoom(ctx, ""); err == nil {
		t.Error("Expected error for empty room id")
	}
	if err := store.RecordViewers(ctx, "room-1", -2); err == nil {
		t.Error("Expected error for negative viewers")
	}
	if err := store.DeleteRoom(ctx, ""); err == nil {
		t.Error("Expected error for empty room id")
	}
}

func TestPersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first := NewRoomRegistry(dbPath).(*roomRegistry)
	if err := first.RecordViewers(ctx, "room-1", 4); err != nil {
		t.Fatalf("RecordViewers() failed: %v", err)
	}
	_ = first.Close()

	second := NewRoomRegistry(dbPath).(*roomRegistry)
	defer second.Close()
	room, err := second.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom() after reopen failed: %v", err)
	}
	if room.PeakViewers != 4 {
		t.Errorf("Expected peak 4, got %d", room.PeakViewers)
	}
}

func TestConcurrentRecordViewers(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := store.RecordViewers(ctx, "room-1", n); err != nil {
				t.Errorf("RecordViewers() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	room, err := store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom() failed: %v", err)
	}
	if room.PeakViewers != 20 {
		t.Errorf("Expected peak 20, got %d", room.PeakViewers)
	}
}
