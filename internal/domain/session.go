package domain

import (
	"fmt"
	"time"
)

// Scope identifies which of the two session modes a Session belongs to.
// It is sealed: RoomScope and MediaScope are the only implementations, so a
// session can never carry both identities or neither.
type Scope interface {
	Key() SessionKey
	scope()
}

// RoomScope is the ephemeral, roomId-keyed mode shared by a host and guests.
type RoomScope struct {
	RoomID    string
	HostToken string
	ExpireAt  time.Time
}

// MediaScope is the persistent, (user, media)-keyed mode used for solo capture.
type MediaScope struct {
	UserID       uint
	MediaID      uint
	TimerSeconds int64
}

func (RoomScope) scope()  {}
func (MediaScope) scope() {}

func (s RoomScope) Key() SessionKey  { return RoomKey{RoomID: s.RoomID} }
func (s MediaScope) Key() SessionKey { return MediaKey{UserID: s.UserID, MediaID: s.MediaID} }

// Expired reports whether the room is past its absolute expiry.
func (s RoomScope) Expired(now time.Time) bool {
	return !s.ExpireAt.IsZero() && !now.Before(s.ExpireAt)
}

// SessionKey is the lookup half of a Scope.
type SessionKey interface {
	fmt.Stringer
	sessionKey()
}

type RoomKey struct {
	RoomID string
}

type MediaKey struct {
	UserID  uint
	MediaID uint
}

func (RoomKey) sessionKey()  {}
func (MediaKey) sessionKey() {}

func (k RoomKey) String() string  { return "room:" + k.RoomID }
func (k MediaKey) String() string { return fmt.Sprintf("media:%d:%d", k.UserID, k.MediaID) }

type Session struct {
	Scope     Scope
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewRoomSession(roomID, hostToken string, expireAt time.Time) *Session {
	return &Session{Scope: RoomScope{RoomID: roomID, HostToken: hostToken, ExpireAt: expireAt}, Lines: []Line{}}
}

func NewMediaSession(userID, mediaID uint) *Session {
	return &Session{Scope: MediaScope{UserID: userID, MediaID: mediaID}, Lines: []Line{}}
}

func (s *Session) Room() (RoomScope, bool) {
	r, ok := s.Scope.(RoomScope)
	return r, ok
}

func (s *Session) Media() (MediaScope, bool) {
	m, ok := s.Scope.(MediaScope)
	return m, ok
}

// CharsCount sums the character counts of all lines.
func (s *Session) CharsCount() int64 {
	var total int64
	for _, l := range s.Lines {
		total += int64(l.CharsCount)
	}
	return total
}
