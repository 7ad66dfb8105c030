package presence

import (
	"context"
	"fmt"

	"chatapp/backend/internal/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Register(ctx context.Context, username string) error {
	entry := models.Presence{Username: username}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("register %q: %w", username, err)
	}
	return nil
}

func (s *GormStore) Deregister(ctx context.Context, username string) error {
	if err := s.db.WithContext(ctx).Where("username = ?", username).Delete(&models.Presence{}).Error; err != nil {
		return fmt.Errorf("deregister %q: %w", username, err)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context) ([]Entry, error) {
	var rows []models.Presence
	if err := s.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	return lo.Map(rows, func(row models.Presence, _ int) Entry {
		return Entry{Username: row.Username, Since: row.CreatedAt}
	}), nil
}
