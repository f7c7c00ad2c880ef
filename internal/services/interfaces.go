package services

import (
	"context"
	"time"

	"listsync/internal/models"
)

/*
LEARNING: GO INTERFACE BEST PRACTICE

"Accept interfaces, return structs"

Interfaces live where they are USED. The services package consumes the
repositories, so it declares the small slices of them it needs here. The
gorm repositories and the Redis session store satisfy these without knowing
they exist, and tests can swap in fakes or testify mocks.
*/

// ListRepository defines what the service needs from list storage
type ListRepository interface {
	Create(ctx context.Context, list *models.List) error
	GetBySlug(ctx context.Context, slug string) (*models.List, error)
	GetByID(ctx context.Context, id uint) (*models.List, error)
	Update(ctx context.Context, id uint, patch *models.ListPatch) (*models.List, error)
}

// ItemRepository defines what the service needs from item storage
type ItemRepository interface {
	ListByListID(ctx context.Context, listID uint) ([]models.ListItem, error)
	Create(ctx context.Context, listID uint, text, color string) (*models.ListItem, error)
	Update(ctx context.Context, id uint, patch *models.ItemPatch) (*models.ListItem, error)
	Delete(ctx context.Context, id uint) error
	Reorder(ctx context.Context, orders []models.ItemOrder) error
}

// SessionStore persists presence. Both the sessions table and the Redis
// store implement it; SESSION_STORE picks one at startup.
type SessionStore interface {
	Touch(ctx context.Context, listID uint, sessionID, userAgent string) error
	Remove(ctx context.Context, sessionID string) error
	CountActive(ctx context.Context, listID uint, window time.Duration) (int64, error)
	ListActive(ctx context.Context, listID uint, window time.Duration) ([]models.Session, error)
}

// ExpiredListDeleter is the one method the cleanup worker needs.
type ExpiredListDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
