package repository

import (
	"context"
	"fmt"

	"listsync/internal/models"

	"gorm.io/gorm"
)

// ItemRepositoryImpl handles list item rows using GORM
type ItemRepositoryImpl struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepositoryImpl {
	return &ItemRepositoryImpl{db: db}
}

// ListByListID returns the items of a list in display order.
func (r *ItemRepositoryImpl) ListByListID(ctx context.Context, listID uint) ([]models.ListItem, error) {
	items := make([]models.ListItem, 0)
	err := r.db.WithContext(ctx).
		Where("list_id = ?", listID).
		Order("sort_order ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list items for list %d: %w", listID, err)
	}
	return items, nil
}

// Create inserts a new item at the top of the list: its order is one less
// than the current minimum, or 0 when the list is empty.
func (r *ItemRepositoryImpl) Create(ctx context.Context, listID uint, text, color string) (*models.ListItem, error) {
	item := &models.ListItem{
		ListID: listID,
		Text:   text,
		Color:  color,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agg struct {
			Count    int64
			MinOrder int
		}
		if err := tx.Model(&models.ListItem{}).
			Select("COUNT(*) AS count, COALESCE(MIN(sort_order), 0) AS min_order").
			Where("list_id = ?", listID).
			Scan(&agg).Error; err != nil {
			return err
		}

		if agg.Count > 0 {
			item.Order = agg.MinOrder - 1
		}

		return tx.Create(item).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item in list %d: %w", listID, translate(err))
	}

	return item, nil
}

func (r *ItemRepositoryImpl) GetByID(ctx context.Context, id uint) (*models.ListItem, error) {
	var item models.ListItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, translate(err))
	}
	return &item, nil
}

// Update applies the non-nil fields of the patch and returns the stored row.
func (r *ItemRepositoryImpl) Update(ctx context.Context, id uint, patch *models.ItemPatch) (*models.ListItem, error) {
	item, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Build update map so that false/0/"" are written too
	updates := make(map[string]interface{})
	if patch.Text != nil {
		updates["text"] = *patch.Text
	}
	if patch.Completed != nil {
		updates["completed"] = *patch.Completed
	}
	if patch.Color != nil {
		updates["color"] = *patch.Color
	}
	if patch.Order != nil {
		updates["sort_order"] = *patch.Order
	}
	if len(updates) == 0 {
		return item, nil
	}

	if err := r.db.WithContext(ctx).Model(item).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update item %d: %w", id, translate(err))
	}

	return r.GetByID(ctx, id)
}

func (r *ItemRepositoryImpl) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.ListItem{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete item %d: %w", id, ErrNotFound)
	}
	return nil
}

// Reorder writes all positions in one transaction.
func (r *ItemRepositoryImpl) Reorder(ctx context.Context, orders []models.ItemOrder) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range orders {
			if err := tx.Model(&models.ListItem{}).
				Where("id = ?", o.ID).
				Update("sort_order", o.Order).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reorder items: %w", err)
	}
	return nil
}
