package realtime

import (
	"sync"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
)

type Member struct {
	ConnID   string
	Role     domain.Role
	Username string
	UserID   uint
}

func (m Member) view() MemberView {
	v := MemberView{ID: m.ConnID, Role: m.Role, Username: m.Username}
	if m.UserID != 0 {
		id := m.UserID
		v.UserID = &id
	}
	return v
}

// PresenceRegistry tracks which connections are live in which rooms.
type PresenceRegistry interface {
	// Join records the member; a connection already in the room keeps its
	// position and takes the new role.
	Join(roomID string, m Member)
	// Leave removes the connection from every room and returns those rooms.
	Leave(connID string) []string
	LeaveRoom(roomID, connID string) bool
	// MembersOf lists members in join order.
	MembersOf(roomID string) []Member
	RoomsOf(connID string) []string
}

type MemoryPresence struct {
	mu     sync.RWMutex
	rooms  map[string][]Member
	byConn map[string][]string
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		rooms:  make(map[string][]Member),
		byConn: make(map[string][]string),
	}
}

func (p *MemoryPresence) Join(roomID string, m Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	members := p.rooms[roomID]
	for i := range members {
		if members[i].ConnID == m.ConnID {
			members[i] = m
			return
		}
	}
	p.rooms[roomID] = append(members, m)
	p.byConn[m.ConnID] = append(p.byConn[m.ConnID], roomID)
}

func (p *MemoryPresence) Leave(connID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := p.byConn[connID]
	delete(p.byConn, connID)
	for _, roomID := range rooms {
		p.removeLocked(roomID, connID)
	}
	return rooms
}

func (p *MemoryPresence) LeaveRoom(roomID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.removeLocked(roomID, connID) {
		return false
	}
	rooms := p.byConn[connID]
	for i, r := range rooms {
		if r == roomID {
			rooms = append(rooms[:i:i], rooms[i+1:]...)
			break
		}
	}
	if len(rooms) == 0 {
		delete(p.byConn, connID)
	} else {
		p.byConn[connID] = rooms
	}
	return true
}

func (p *MemoryPresence) MembersOf(roomID string) []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Member(nil), p.rooms[roomID]...)
}

func (p *MemoryPresence) RoomsOf(connID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.byConn[connID]...)
}

func (p *MemoryPresence) removeLocked(roomID, connID string) bool {
	members := p.rooms[roomID]
	for i, m := range members {
		if m.ConnID != connID {
			continue
		}
		kept := append(members[:i:i], members[i+1:]...)
		if len(kept) == 0 {
			delete(p.rooms, roomID)
		} else {
			p.rooms[roomID] = kept
		}
		return true
	}
	return false
}
