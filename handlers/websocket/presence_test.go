package websocket

import (
	"testing"

	"liveroom/core"
)

func TestPresence_JoinCounts(t *testing.T) {
	p := newPresence()

	if got := p.join("room-1", "a", core.NewProfile(nil, "alice", "")); got != 1 {
		t.Errorf("Expected 1 member, got %d", got)
	}
	if got := p.join("room-1", "b", core.NewProfile(nil, "bob", "")); got != 2 {
		t.Errorf("Expected 2 members, got %d", got)
	}
	if got := p.join("room-1", "a", core.NewProfile(nil, "alice", "")); got != 2 {
		t.Errorf("Rejoining should not change the count, got %d", got)
	}
	if !p.member("room-1", "a") {
		t.Error("Expected a to be a member")
	}
	if p.member("room-2", "a") {
		t.Error("Did not expect a to be a member of room-2")
	}
}

func TestPresence_Leave(t *testing.T) {
	p := newPresence()
	p.join("room-1", "a", core.NewProfile(nil, "alice", ""))
	p.join("room-1", "b", core.NewProfile(nil, "bob", ""))

	d, ok := p.leave("room-1", "a")
	if !ok {
		t.Fatal("Expected leave to succeed")
	}
	if d.Count != 1 || d.Profile.Username != "alice" {
		t.Errorf("Unexpected departure %+v", d)
	}
	if _, ok := p.leave("room-1", "a"); ok {
		t.Error("Leaving twice should report false")
	}

	p.leave("room-1", "b")
	if _, exists := p.snapshot()["room-1"]; exists {
		t.Error("Empty room should be removed")
	}
}

func TestPresence_Drop(t *testing.T) {
	p := newPresence()
	p.join("room-b", "a", core.NewProfile(nil, "alice", ""))
	p.join("room-a", "a", core.NewProfile(nil, "alice", ""))
	p.join("room-a", "b", core.NewProfile(nil, "bob", ""))

	out := p.drop("a")
	if len(out) != 2 {
		t.Fatalf("Expected 2 departures, got %d", len(out))
	}
	if out[0].Room != "room-a" || out[0].Count != 1 {
		t.Errorf("Unexpected first departure %+v", out[0])
	}
	if out[1].Room != "room-b" || out[1].Count != 0 {
		t.Errorf("Unexpected second departure %+v", out[1])
	}

	rooms := p.snapshot()
	if len(rooms) != 1 || rooms["room-a"] != 1 {
		t.Errorf("Unexpected rooms %v", rooms)
	}
	if got := p.count("room-b"); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
}

func TestPresence_SnapshotIsCopy(t *testing.T) {
	p := newPresence()
	p.join("room-1", "a", core.NewProfile(nil, "alice", ""))

	rooms := p.snapshot()
	rooms["room-1"] = 99
	if got := p.count("room-1"); got != 1 {
		t.Errorf("Snapshot mutation leaked, got %d", got)
	}
}
