package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	// FindOrCreateRoom returns the live room, creating it with hostToken when
	// absent or expired. created reports whether this call created it.
	FindOrCreateRoom(ctx context.Context, roomID, hostToken string, expireAt time.Time) (*domain.Session, bool, error)
	FindOrCreateMedia(ctx context.Context, key domain.MediaKey) (*domain.Session, error)
	Find(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)
	AppendLines(ctx context.Context, key domain.SessionKey, lines []domain.Line) (*domain.Session, int, error)
	RemoveLines(ctx context.Context, key domain.SessionKey, ids []string) (*domain.Session, error)
	ClearLines(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	SetTimer(ctx context.Context, key domain.MediaKey, seconds int64) (*domain.Session, error)
	Delete(ctx context.Context, key domain.SessionKey) (bool, error)
	ListMediaByUser(ctx context.Context, userID uint, limit int) ([]domain.Session, error)
	MediaStatsByUser(ctx context.Context, userID uint) (domain.SessionStats, error)
	CleanupExpiredRooms(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func record(ctx context.Context, operation string, err error) {
	switch {
	case err == nil:
		observability.RecordRepositoryOperation(ctx, "capture_session", operation, "success")
	case errors.Is(err, ErrSessionNotFound):
		observability.RecordRepositoryOperation(ctx, "capture_session", operation, "not_found")
	default:
		observability.RecordRepositoryOperation(ctx, "capture_session", operation, "error")
	}
}

func (r *GormSessionRepository) FindOrCreateRoom(ctx context.Context, roomID, hostToken string, expireAt time.Time) (*domain.Session, bool, error) {
	var (
		rec     sessionRecord
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		// An expired room is gone for every purpose, so its id can be reclaimed.
		if err := tx.Where("kind = ? AND room_id = ? AND expire_at <= ?", kindRoom, roomID, now).
			Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoNothing: true,
		}).Create(newRoomRecord(roomID, hostToken, expireAt, now))
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return tx.Where("kind = ? AND room_id = ?", kindRoom, roomID).First(&rec).Error
	})
	if err != nil {
		record(ctx, "find_or_create_room", err)
		return nil, false, err
	}
	s, err := rec.toDomain()
	record(ctx, "find_or_create_room", err)
	return s, created, err
}

func (r *GormSessionRepository) FindOrCreateMedia(ctx context.Context, key domain.MediaKey) (*domain.Session, error) {
	var rec *sessionRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = r.findOrCreateMediaTx(tx, key, false)
		return err
	})
	if err != nil {
		record(ctx, "find_or_create_media", err)
		return nil, err
	}
	s, err := rec.toDomain()
	record(ctx, "find_or_create_media", err)
	return s, err
}

func (r *GormSessionRepository) Find(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	rec, err := r.findRecord(r.db.WithContext(ctx), key, false)
	if err != nil {
		record(ctx, "find", err)
		return nil, err
	}
	s, err := rec.toDomain()
	record(ctx, "find", err)
	return s, err
}

func (r *GormSessionRepository) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("kind = ? AND room_id = ? AND (expire_at IS NULL OR expire_at > ?)", kindRoom, roomID, r.now()).
		Count(&count).Error
	record(ctx, "room_exists", err)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormSessionRepository) AppendLines(ctx context.Context, key domain.SessionKey, lines []domain.Line) (*domain.Session, int, error) {
	added := 0
	s, err := r.mutate(ctx, key, true, func(rec *sessionRecord) map[string]any {
		merged, n := domain.AppendLines(rec.Lines, lines)
		added = n
		if n == 0 {
			return nil
		}
		rec.Lines = merged
		return map[string]any{"lines": rec.Lines}
	})
	record(ctx, "append_lines", err)
	return s, added, err
}

func (r *GormSessionRepository) RemoveLines(ctx context.Context, key domain.SessionKey, ids []string) (*domain.Session, error) {
	s, err := r.mutate(ctx, key, false, func(rec *sessionRecord) map[string]any {
		kept, n := domain.RemoveLines(rec.Lines, ids)
		if n == 0 {
			return nil
		}
		rec.Lines = kept
		return map[string]any{"lines": rec.Lines}
	})
	record(ctx, "remove_lines", err)
	return s, err
}

func (r *GormSessionRepository) ClearLines(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	s, err := r.mutate(ctx, key, true, func(rec *sessionRecord) map[string]any {
		rec.Lines = lineList{}
		return map[string]any{"lines": rec.Lines}
	})
	record(ctx, "clear_lines", err)
	return s, err
}

func (r *GormSessionRepository) SetTimer(ctx context.Context, key domain.MediaKey, seconds int64) (*domain.Session, error) {
	s, err := r.mutate(ctx, key, true, func(rec *sessionRecord) map[string]any {
		rec.TimerSeconds = seconds
		return map[string]any{"timer_seconds": seconds}
	})
	record(ctx, "set_timer", err)
	return s, err
}

func (r *GormSessionRepository) Delete(ctx context.Context, key domain.SessionKey) (bool, error) {
	q := r.db.WithContext(ctx)
	switch k := key.(type) {
	case domain.RoomKey:
		q = q.Where("kind = ? AND room_id = ?", kindRoom, k.RoomID)
	case domain.MediaKey:
		q = q.Where("kind = ? AND user_id = ? AND media_id = ?", kindMedia, k.UserID, k.MediaID)
	default:
		return false, fmt.Errorf("delete session: unsupported key %T", key)
	}
	res := q.Delete(&sessionRecord{})
	record(ctx, "delete", res.Error)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) ListMediaByUser(ctx context.Context, userID uint, limit int) ([]domain.Session, error) {
	var recs []sessionRecord
	err := r.db.WithContext(ctx).
		Where("kind = ? AND user_id = ?", kindMedia, userID).
		Order("updated_at DESC").Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		record(ctx, "list_media_by_user", err)
		return nil, err
	}
	out := make([]domain.Session, 0, len(recs))
	for i := range recs {
		s, err := recs[i].toDomain()
		if err != nil {
			record(ctx, "list_media_by_user", err)
			return nil, err
		}
		out = append(out, *s)
	}
	record(ctx, "list_media_by_user", nil)
	return out, nil
}

func (r *GormSessionRepository) MediaStatsByUser(ctx context.Context, userID uint) (domain.SessionStats, error) {
	var (
		stats domain.SessionStats
		recs  []sessionRecord
	)
	err := r.db.WithContext(ctx).
		Select("id", "kind", "lines", "timer_seconds").
		Where("kind = ? AND user_id = ?", kindMedia, userID).
		Find(&recs).Error
	record(ctx, "media_stats_by_user", err)
	if err != nil {
		return stats, err
	}
	for _, rec := range recs {
		stats.TotalSessions++
		stats.TotalTimerSeconds += rec.TimerSeconds
		stats.TotalLines += int64(len(rec.Lines))
		for _, l := range rec.Lines {
			stats.TotalChars += int64(l.CharsCount)
		}
	}
	return stats, nil
}

func (r *GormSessionRepository) CleanupExpiredRooms(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("kind = ? AND expire_at <= ?", kindRoom, now.UTC()).
		Delete(&sessionRecord{})
	record(ctx, "cleanup_expired_rooms", res.Error)
	if res.Error != nil {
		return res.RowsAffected, res.Error
	}
	return res.RowsAffected, nil
}

// mutate loads the session row under a row lock, applies fn and persists the
// returned column updates. Media sessions are created on demand when upsert
// is set; rooms are never created here.
func (r *GormSessionRepository) mutate(ctx context.Context, key domain.SessionKey, upsert bool, fn func(*sessionRecord) map[string]any) (*domain.Session, error) {
	var rec *sessionRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		mediaKey, isMedia := key.(domain.MediaKey)
		if upsert && isMedia {
			rec, err = r.findOrCreateMediaTx(tx, mediaKey, true)
		} else {
			rec, err = r.findRecord(tx, key, true)
		}
		if err != nil {
			return err
		}
		updates := fn(rec)
		if len(updates) == 0 {
			return nil
		}
		now := r.now()
		updates["updated_at"] = now
		rec.UpdatedAt = now
		return tx.Model(&sessionRecord{}).Where("id = ?", rec.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return rec.toDomain()
}

func (r *GormSessionRepository) findRecord(tx *gorm.DB, key domain.SessionKey, lock bool) (*sessionRecord, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	switch k := key.(type) {
	case domain.RoomKey:
		q = q.Where("kind = ? AND room_id = ? AND (expire_at IS NULL OR expire_at > ?)", kindRoom, k.RoomID, r.now())
	case domain.MediaKey:
		q = q.Where("kind = ? AND user_id = ? AND media_id = ?", kindMedia, k.UserID, k.MediaID)
	default:
		return nil, fmt.Errorf("find session: unsupported key %T", key)
	}
	var rec sessionRecord
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *GormSessionRepository) findOrCreateMediaTx(tx *gorm.DB, key domain.MediaKey, lock bool) (*sessionRecord, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "media_id"}},
		DoNothing: true,
	}).Create(newMediaRecord(key, r.now())).Error
	if err != nil {
		return nil, err
	}
	return r.findRecord(tx, key, lock)
}
