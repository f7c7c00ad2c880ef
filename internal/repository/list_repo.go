package repository

import (
	"context"
	"fmt"
	"time"

	"listsync/internal/models"

	"gorm.io/gorm"
)

// ListRepositoryImpl handles list rows using GORM
// Returns concrete type - "Accept interfaces, return structs"
type ListRepositoryImpl struct {
	db *gorm.DB
}

func NewListRepository(db *gorm.DB) *ListRepositoryImpl {
	return &ListRepositoryImpl{db: db}
}

// Create inserts a list. A slug collision returns ErrDuplicateEntry so the
// caller can retry with a fresh slug.
func (r *ListRepositoryImpl) Create(ctx context.Context, list *models.List) error {
	if err := r.db.WithContext(ctx).Create(list).Error; err != nil {
		return fmt.Errorf("failed to create list: %w", translate(err))
	}
	return nil
}

func (r *ListRepositoryImpl) GetBySlug(ctx context.Context, slug string) (*models.List, error) {
	var list models.List
	if err := r.db.WithContext(ctx).First(&list, "slug = ?", slug).Error; err != nil {
		return nil, fmt.Errorf("failed to get list %q: %w", slug, translate(err))
	}
	return &list, nil
}

func (r *ListRepositoryImpl) GetByID(ctx context.Context, id uint) (*models.List, error) {
	var list models.List
	if err := r.db.WithContext(ctx).First(&list, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get list %d: %w", id, translate(err))
	}
	return &list, nil
}

// Update applies the non-nil fields of the patch and returns the stored row.
func (r *ListRepositoryImpl) Update(ctx context.Context, id uint, patch *models.ListPatch) (*models.List, error) {
	list, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if len(updates) == 0 {
		return list, nil
	}

	if err := r.db.WithContext(ctx).Model(list).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update list %d: %w", id, translate(err))
	}

	return r.GetByID(ctx, id)
}

// DeleteExpired removes every list whose expiry is before now, together with
// its items and presence rows. Each list is removed in its own transaction.
func (r *ListRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.List{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find expired lists: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("list_id = ?", id).Delete(&models.ListItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("list_id = ?", id).Delete(&models.Session{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.List{}, "id = ?", id).Error
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete expired list %d: %w", id, err)
		}
		deleted++
	}

	return deleted, nil
}
