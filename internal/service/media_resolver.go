package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/repository"

	"golang.org/x/sync/singleflight"
)

// MetadataEnricher adds third-party details to a media entry for display.
type MetadataEnricher interface {
	Enrich(ctx context.Context, media domain.Media) (map[string]any, error)
}

type NoopMetadataEnricher struct{}

func (NoopMetadataEnricher) Enrich(context.Context, domain.Media) (map[string]any, error) {
	return nil, nil
}

// MediaResolver maps external content ids to media rows. Concurrent lookups
// of one id share a single query and misses are remembered for a while.
type MediaResolver struct {
	repo     repository.MediaRepository
	misses   MediaMissCache
	ttl      time.Duration
	enricher MetadataEnricher
	logger   *slog.Logger
	group    singleflight.Group
}

func NewMediaResolver(repo repository.MediaRepository, misses MediaMissCache, ttl time.Duration, enricher MetadataEnricher, logger *slog.Logger) *MediaResolver {
	if misses == nil {
		misses = NoMissCache{}
	}
	if enricher == nil {
		enricher = NoopMetadataEnricher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaResolver{repo: repo, misses: misses, ttl: ttl, enricher: enricher, logger: logger}
}

func (r *MediaResolver) Resolve(ctx context.Context, contentID string) (*domain.Media, error) {
	if contentID == "" {
		return nil, repository.ErrMediaNotFound
	}
	hit, err := r.misses.Seen(ctx, contentID)
	switch {
	case err != nil:
		observability.RecordMediaMissCacheEvent(ctx, "error")
		r.logger.WarnContext(ctx, "media miss cache read failed", "error", err)
	case hit:
		observability.RecordMediaMissCacheEvent(ctx, "hit")
		return nil, repository.ErrMediaNotFound
	default:
		observability.RecordMediaMissCacheEvent(ctx, "miss")
	}

	v, err, _ := r.group.Do(contentID, func() (any, error) {
		return r.repo.FindByContentID(ctx, contentID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrMediaNotFound) {
			if setErr := r.misses.Remember(ctx, contentID, r.ttl); setErr != nil {
				r.logger.WarnContext(ctx, "media miss cache write failed", "error", setErr)
			} else {
				observability.RecordMediaMissCacheEvent(ctx, "store")
			}
		}
		return nil, err
	}
	media := *v.(*domain.Media)
	return &media, nil
}

// Enrich never fails the request; enrichment errors are logged and dropped.
func (r *MediaResolver) Enrich(ctx context.Context, media *domain.Media) map[string]any {
	if media == nil {
		return nil
	}
	extra, err := r.enricher.Enrich(ctx, *media)
	if err != nil {
		r.logger.WarnContext(ctx, "media enrichment failed", "content_id", media.ContentID, "error", err)
		return nil
	}
	return extra
}

// Forget drops every remembered miss.
func (r *MediaResolver) Forget(ctx context.Context) error {
	return r.misses.Flush(ctx)
}
