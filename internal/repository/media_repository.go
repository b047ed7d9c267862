package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"

	"gorm.io/gorm"
)

var ErrMediaNotFound = errors.New("media not found")

type MediaRepository interface {
	FindByContentID(ctx context.Context, contentID string) (*domain.Media, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.Media, error)
}

type GormMediaRepository struct{ db *gorm.DB }

func NewMediaRepository(db *gorm.DB) MediaRepository { return &GormMediaRepository{db: db} }

func (r *GormMediaRepository) FindByContentID(ctx context.Context, contentID string) (*domain.Media, error) {
	var m domain.Media
	err := r.db.WithContext(ctx).Where("content_id = ?", contentID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "media", "find_by_content_id", "not_found")
			return nil, ErrMediaNotFound
		}
		observability.RecordRepositoryOperation(ctx, "media", "find_by_content_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "media", "find_by_content_id", "success")
	return &m, nil
}

func (r *GormMediaRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.Media, error) {
	out := make(map[uint]domain.Media, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []domain.Media
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "media", "find_by_ids", "error")
		return nil, err
	}
	for _, m := range items {
		out[m.ID] = m
	}
	observability.RecordRepositoryOperation(ctx, "media", "find_by_ids", "success")
	return out, nil
}
