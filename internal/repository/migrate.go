package repository

import (
	"github.com/sandeepkv93/capture-session-service/internal/domain"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the tables owned by the repositories.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&sessionRecord{}, &domain.Media{})
}
