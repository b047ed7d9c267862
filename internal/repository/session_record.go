package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
)

const (
	kindRoom  = "room"
	kindMedia = "media"
)

// sessionRecord is the row shape of capture_sessions. Room rows leave the
// media columns NULL and media rows leave the room columns NULL, so the
// unique indexes never collide across kinds.
type sessionRecord struct {
	ID           uint       `gorm:"primaryKey"`
	Kind         string     `gorm:"size:8;not null;index"`
	RoomID       *string    `gorm:"size:128;uniqueIndex"`
	HostToken    *string    `gorm:"size:128"`
	ExpireAt     *time.Time `gorm:"index"`
	UserID       *uint      `gorm:"uniqueIndex:idx_capture_sessions_user_media;index"`
	MediaID      *uint      `gorm:"uniqueIndex:idx_capture_sessions_user_media"`
	TimerSeconds int64      `gorm:"not null;default:0"`
	Lines        lineList   `gorm:"type:text;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string { return "capture_sessions" }

func newRoomRecord(roomID, hostToken string, expireAt, now time.Time) *sessionRecord {
	expireAt = expireAt.UTC()
	return &sessionRecord{
		Kind:      kindRoom,
		RoomID:    &roomID,
		HostToken: &hostToken,
		ExpireAt:  &expireAt,
		Lines:     lineList{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newMediaRecord(key domain.MediaKey, now time.Time) *sessionRecord {
	userID, mediaID := key.UserID, key.MediaID
	return &sessionRecord{
		Kind:      kindMedia,
		UserID:    &userID,
		MediaID:   &mediaID,
		Lines:     lineList{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *sessionRecord) toDomain() (*domain.Session, error) {
	s := &domain.Session{
		Lines:     append([]domain.Line{}, r.Lines...),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	switch r.Kind {
	case kindRoom:
		if r.RoomID == nil {
			return nil, fmt.Errorf("capture session %d: room row without room_id", r.ID)
		}
		scope := domain.RoomScope{RoomID: *r.RoomID}
		if r.HostToken != nil {
			scope.HostToken = *r.HostToken
		}
		if r.ExpireAt != nil {
			scope.ExpireAt = *r.ExpireAt
		}
		s.Scope = scope
	case kindMedia:
		if r.UserID == nil || r.MediaID == nil {
			return nil, fmt.Errorf("capture session %d: media row without user_id/media_id", r.ID)
		}
		s.Scope = domain.MediaScope{UserID: *r.UserID, MediaID: *r.MediaID, TimerSeconds: r.TimerSeconds}
	default:
		return nil, fmt.Errorf("capture session %d: unknown kind %q", r.ID, r.Kind)
	}
	return s, nil
}

type lineList []domain.Line

func (l lineList) Value() (driver.Value, error) {
	if l == nil {
		l = lineList{}
	}
	raw, err := json.Marshal([]domain.Line(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *lineList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = lineList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan lines: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*l = lineList{}
		return nil
	}
	var lines []domain.Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return fmt.Errorf("scan lines: %w", err)
	}
	*l = lines
	return nil
}
