package websocket

import (
	"sort"
	"sync"

	socketio "github.com/zishang520/socket.io/v2/socket"

	"liveroom/core"
)

// departure records a socket leaving a room and the count left behind.
type departure struct {
	Room    string
	Count   int
	Profile core.UserProfile
}

// presence tracks which sockets are in which room. A room exists only while
// it has at least one member.
type presence struct {
	mu    sync.RWMutex
	rooms map[string]map[socketio.SocketId]core.UserProfile
}

func newPresence() *presence {
	return &presence{rooms: make(map[string]map[socketio.SocketId]core.UserProfile)}
}

// join adds sid to room and returns the new member count. Joining twice only
// refreshes the profile.
func (p *presence) join(room string, sid socketio.SocketId, profile core.UserProfile) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	members, ok := p.rooms[room]
	if !ok {
		members = make(map[socketio.SocketId]core.UserProfile)
		p.rooms[room] = members
	}
	members[sid] = profile
	return len(members)
}

func (p *presence) leave(room string, sid socketio.SocketId) (departure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaveLocked(room, sid)
}

func (p *presence) leaveLocked(room string, sid socketio.SocketId) (departure, bool) {
	members, ok := p.rooms[room]
	if !ok {
		return departure{}, false
	}
	profile, ok := members[sid]
	if !ok {
		return departure{}, false
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(p.rooms, room)
	}
	return departure{Room: room, Count: len(members), Profile: profile}, true
}

// drop removes sid from every room it joined.
func (p *presence) drop(sid socketio.SocketId) []departure {
	p.mu.Lock()
	defer p.mu.Unlock()

	var rooms []string
	for room, members := range p.rooms {
		if _, ok := members[sid]; ok {
			rooms = append(rooms, room)
		}
	}
	sort.Strings(rooms)

	out := make([]departure, 0, len(rooms))
	for _, room := range rooms {
		if d, ok := p.leaveLocked(room, sid); ok {
			out = append(out, d)
		}
	}
	return out
}

func (p *presence) member(room string, sid socketio.SocketId) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rooms[room][sid]
	return ok
}

func (p *presence) count(room string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms[room])
}

func (p *presence) snapshot() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rooms := make(map[string]int, len(p.rooms))
	for k, v := range p.rooms {
		rooms[k] = len(v)
	}
	return rooms
}
