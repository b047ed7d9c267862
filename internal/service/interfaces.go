package service

import (
	"context"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
)

type MediaSessionServiceInterface interface {
	FindOrCreate(ctx context.Context, userID, mediaID uint) (*MediaSessionView, error)
	UpdateTimer(ctx context.Context, userID, mediaID uint, seconds float64) (int64, error)
	AddLines(ctx context.Context, userID, mediaID uint, lines []domain.Line) (*MediaSessionView, error)
	RemoveLines(ctx context.Context, userID, mediaID uint, ids []string) (*MediaSessionView, error)
	ClearLines(ctx context.Context, userID, mediaID uint) (*MediaSessionView, error)
	Delete(ctx context.Context, userID, mediaID uint) error
	Recent(ctx context.Context, userID uint, limit int) (*RecentSessions, error)
}

type MediaResolverInterface interface {
	Resolve(ctx context.Context, contentID string) (*domain.Media, error)
	Enrich(ctx context.Context, media *domain.Media) map[string]any
}

type RoomLookup interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
}
