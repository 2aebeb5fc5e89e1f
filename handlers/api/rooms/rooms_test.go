package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"liveroom/core"
)

// Mock room registry for testing
type mockRoomRegistry struct {
	rooms     map[string]core.Room
	listErr   error
	getErr    error
	deleteErr error
	deleted   []string
}

func newMockRoomRegistry(rooms ...core.Room) *mockRoomRegistry {
	m := &mockRoomRegistry{rooms: make(map[string]core.Room)}
	for _, room := range rooms {
		m.rooms[room.ID] = room
	}
	return m
}

func (m *mockRoomRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	rooms := make([]core.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (m *mockRoomRegistry) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return &room, nil
}

func (m *mockRoomRegistry) TouchRoom(ctx context.Context, roomID string) error { return nil }

func (m *mockRoomRegistry) RecordViewers(ctx context.Context, roomID string, viewers int) error {
	return nil
}

func (m *mockRoomRegistry) DeleteRoom(ctx context.Context, roomID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, roomID)
	delete(m.rooms, roomID)
	return nil
}

func activeRooms(rooms map[string]int) ActiveRooms {
	return func() map[string]int { return rooms }
}

func newRouter(registry core.RoomRegistry, active ActiveRooms) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/rooms", HandleListRooms(registry, active))
	r.Get("/api/rooms/{roomId}", HandleGetRoom(registry, active))
	r.Delete("/api/rooms/{roomId}", HandleDeleteRoom(registry))
	return r
}

func TestHandleListRooms_MergesAndSorts(t *testing.T) {
	registry := newMockRoomRegistry(
		core.Room{ID: "room-a", Viewers: 0, PeakViewers: 12, LastActive: 100},
		core.Room{ID: "room-b", Viewers: 0, PeakViewers: 3, LastActive: 300},
		core.Room{ID: "room-c", Viewers: 2, PeakViewers: 4, LastActive: 200},
	)
	router := newRouter(registry, activeRooms(map[string]int{"room-c": 2, "room-live": 5}))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var rooms []RoomInfo
	if err := json.NewDecoder(w.Body).Decode(&rooms); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	want := []string{"room-live", "room-c", "room-b", "room-a"}
	if len(rooms) != len(want) {
		t.Fatalf("Expected %d rooms, got %d", len(want), len(rooms))
	}
	for i, id := range want {
		if rooms[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, rooms[i].ID)
		}
	}
	if rooms[3].PeakUsers != 12 {
		t.Errorf("Expected peak 12 for room-a, got %d", rooms[3].PeakUsers)
	}
	if rooms[0].PeakUsers != 5 {
		t.Errorf("Expected live room peak 5, got %d", rooms[0].PeakUsers)
	}
}

func TestHandleListRooms_RegistryError(t *testing.T) {
	registry := newMockRoomRegistry()
	registry.listErr = errors.New("disk on fire")
	router := newRouter(registry, activeRooms(map[string]int{"room-1": 1}))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var rooms []RoomInfo
	if err := json.NewDecoder(w.Body).Decode(&rooms); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Users != 1 {
		t.Errorf("Expected only the live room, got %+v", rooms)
	}
}

func TestHandleListRooms_Empty(t *testing.T) {
	router := newRouter(nil, activeRooms(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}
}

func TestHandleGetRoom_Live(t *testing.T) {
	registry := newMockRoomRegistry(core.Room{ID: "room-42", Viewers: 1, PeakViewers: 9, LastActive: 1714557600000})
	router := newRouter(registry, activeRooms(map[string]int{"room-42": 3}))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var info RoomInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.Users != 3 {
		t.Errorf("Expected live count 3, got %d", info.Users)
	}
	if info.PeakUsers != 9 {
		t.Errorf("Expected peak 9, got %d", info.PeakUsers)
	}
	if info.LastActive != 1714557600000 {
		t.Errorf("Unexpected last_active %d", info.LastActive)
	}
}

func TestHandleGetRoom_StoredOnly(t *testing.T) {
	registry := newMockRoomRegistry(core.Room{ID: "room-42", Viewers: 4, PeakViewers: 6})
	router := newRouter(registry, activeRooms(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var info RoomInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.Users != 4 {
		t.Errorf("Expected stored count 4, got %d", info.Users)
	}
}

func TestHandleGetRoom_NotFound(t *testing.T) {
	router := newRouter(newMockRoomRegistry(), activeRooms(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandleGetRoom_RegistryError(t *testing.T) {
	registry := newMockRoomRegistry()
	registry.getErr = errors.New("database error")
	router := newRouter(registry, activeRooms(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestHandleDeleteRoom(t *testing.T) {
	registry := newMockRoomRegistry(core.Room{ID: "room-1"})
	router := newRouter(registry, activeRooms(nil))

	req := httptest.NewRequest(http.MethodDelete, "/api/rooms/room-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if len(registry.deleted) != 1 || registry.deleted[0] != "room-1" {
		t.Errorf("Expected room-1 to be deleted, got %v", registry.deleted)
	}
}

func TestHandleDeleteRoom_Error(t *testing.T) {
	registry := newMockRoomRegistry()
	registry.deleteErr = errors.New("database error")
	router := newRouter(registry, activeRooms(nil))

	req := httptest.NewRequest(http.MethodDelete, "/api/rooms/room-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}
