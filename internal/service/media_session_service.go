package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/repository"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
	// MaxTimerSeconds is the largest integer a JSON number carries exactly.
	MaxTimerSeconds = 1<<53 - 1
)

var (
	ErrInvalidTimer = errors.New("timerSeconds must be a non-negative number")
	ErrInvalidLines = errors.New("invalid lines")
)

type MediaSessionView struct {
	UserID       uint          `json:"userId"`
	MediaID      uint          `json:"mediaId"`
	Lines        []domain.Line `json:"lines"`
	TimerSeconds int64         `json:"timerSeconds"`
	CharsCount   int64         `json:"charsCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type RecentSessions struct {
	Sessions []MediaSessionView  `json:"sessions"`
	Stats    domain.SessionStats `json:"stats"`
}

type MediaSessionService struct {
	sessions    repository.SessionRepository
	recentLimit int
	logger      *slog.Logger
}

func NewMediaSessionService(sessions repository.SessionRepository, recentDefault int, logger *slog.Logger) *MediaSessionService {
	if recentDefault <= 0 || recentDefault > MaxRecentLimit {
		recentDefault = DefaultRecentLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaSessionService{sessions: sessions, recentLimit: recentDefault, logger: logger}
}

func (s *MediaSessionService) FindOrCreate(ctx context.Context, userID, mediaID uint) (*MediaSessionView, error) {
	session, err := s.sessions.FindOrCreateMedia(ctx, domain.MediaKey{UserID: userID, MediaID: mediaID})
	return s.finish(ctx, "find_or_create", session, err)
}

// UpdateTimer stores the cumulative timer. Fractional seconds are truncated;
// concurrent updates resolve as last write wins.
func (s *MediaSessionService) UpdateTimer(ctx context.Context, userID, mediaID uint, seconds float64) (int64, error) {
	value, err := normalizeTimer(seconds)
	if err != nil {
		observability.RecordMediaSessionOperation(ctx, "update_timer", "invalid")
		return 0, err
	}
	session, err := s.sessions.SetTimer(ctx, domain.MediaKey{UserID: userID, MediaID: mediaID}, value)
	view, err := s.finish(ctx, "update_timer", session, err)
	if err != nil {
		return 0, err
	}
	return view.TimerSeconds, nil
}

func (s *MediaSessionService) AddLines(ctx context.Context, userID, mediaID uint, lines []domain.Line) (*MediaSessionView, error) {
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			observability.RecordMediaSessionOperation(ctx, "add_lines", "invalid")
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidLines, i, err)
		}
	}
	session, _, err := s.sessions.AppendLines(ctx, domain.MediaKey{UserID: userID, MediaID: mediaID}, lines)
	return s.finish(ctx, "add_lines", session, err)
}

func (s *MediaSessionService) RemoveLines(ctx context.Context, userID, mediaID uint, ids []string) (*MediaSessionView, error) {
	for _, id := range ids {
		if id == "" {
			observability.RecordMediaSessionOperation(ctx, "remove_lines", "invalid")
			return nil, fmt.Errorf("%w: empty line id", ErrInvalidLines)
		}
	}
	session, err := s.sessions.RemoveLines(ctx, domain.MediaKey{UserID: userID, MediaID: mediaID}, ids)
	return s.finish(ctx, "remove_lines", session, err)
}

func (s *MediaSessionService) ClearLines(ctx context.Context, userID, mediaID uint) (*MediaSessionView, error) {
	session, err := s.sessions.ClearLines(ctx, domain.MediaKey{UserID: userID, MediaID: mediaID})
	return s.finish(ctx, "clear_lines", session, err)
}

func (s *MediaSessionService) Delete(ctx context.Context, userID, mediaID uint) error {
	deleted, err := s.sessions.Delete(ctx, domain.MediaKey{UserID: userID, MediaID: mediaID})
	if err == nil && !deleted {
		err = repository.ErrSessionNotFound
	}
	_, err = s.finish(ctx, "delete", nil, err)
	if err == nil {
		observability.Audit(ctx, "media_session.deleted", "user_id", userID, "media_id", mediaID)
	}
	return err
}

// Recent lists the caller's most recently updated media sessions, with
// totals computed over all of them.
func (s *MediaSessionService) Recent(ctx context.Context, userID uint, limit int) (*RecentSessions, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	limit = min(limit, MaxRecentLimit)
	sessions, err := s.sessions.ListMediaByUser(ctx, userID, limit)
	if err != nil {
		observability.RecordMediaSessionOperation(ctx, "recent", "error")
		return nil, err
	}
	stats, err := s.sessions.MediaStatsByUser(ctx, userID)
	if err != nil {
		observability.RecordMediaSessionOperation(ctx, "recent", "error")
		return nil, err
	}
	out := &RecentSessions{Sessions: make([]MediaSessionView, 0, len(sessions)), Stats: stats}
	for i := range sessions {
		out.Sessions = append(out.Sessions, toMediaSessionView(&sessions[i]))
	}
	observability.RecordMediaSessionOperation(ctx, "recent", "success")
	return out, nil
}

func (s *MediaSessionService) finish(ctx context.Context, op string, session *domain.Session, err error) (*MediaSessionView, error) {
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordMediaSessionOperation(ctx, op, "not_found")
		} else {
			observability.RecordMediaSessionOperation(ctx, op, "error")
			s.logger.ErrorContext(ctx, "media session operation failed", "operation", op, "error", err)
		}
		return nil, err
	}
	observability.RecordMediaSessionOperation(ctx, op, "success")
	if session == nil {
		return nil, nil
	}
	view := toMediaSessionView(session)
	return &view, nil
}

func toMediaSessionView(s *domain.Session) MediaSessionView {
	m, _ := s.Media()
	lines := s.Lines
	if lines == nil {
		lines = []domain.Line{}
	}
	return MediaSessionView{
		UserID:       m.UserID,
		MediaID:      m.MediaID,
		Lines:        lines,
		TimerSeconds: m.TimerSeconds,
		CharsCount:   s.CharsCount(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// DecodeTimerSeconds reads a JSON number. Strings, booleans and null are
// rejected so that "10" never silently becomes 10.
func DecodeTimerSeconds(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, ErrInvalidTimer
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return 0, ErrInvalidTimer
	}
	return *v, nil
}

func normalizeTimer(seconds float64) (int64, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds > MaxTimerSeconds {
		return 0, ErrInvalidTimer
	}
	return int64(math.Trunc(seconds)), nil
}
