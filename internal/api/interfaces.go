package api

import (
	"context"

	"listsync/internal/models"
	"listsync/internal/services/collaboration"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package (api/handlers) is the CONSUMER of services, so service interfaces live HERE.

The handler doesn't care about service implementation details - it only cares about
the methods it needs to call. Handler tests can swap in small fakes, and the
services package never imports api.
*/

// ListService is everything the CRUD endpoints need.
type ListService interface {
	CreateList(ctx context.Context, in *models.ListCreate) (*models.List, error)
	GetListBySlug(ctx context.Context, slug, password string) (*models.ListWithItems, error)
	UpdateList(ctx context.Context, id uint, patch *models.ListPatch) (*models.List, error)
	AddItem(ctx context.Context, listID uint, in *models.ItemCreate) (*models.ListItem, error)
	UpdateItem(ctx context.Context, id uint, patch *models.ItemPatch) (*models.ListItem, error)
	DeleteItem(ctx context.Context, id uint) error
	ReorderItems(ctx context.Context, orders []models.ItemOrder) error
	ListActiveSessions(ctx context.Context, listID uint) ([]models.Session, error)
	RegisterSession(ctx context.Context, listID uint, sessionID, userAgent string) (*models.Session, error)
	UnregisterSession(ctx context.Context, sessionID string) error
}

// GatewayStats reports the realtime side for the health endpoint.
type GatewayStats interface {
	Stats(ctx context.Context) (collaboration.Stats, error)
}

// PresenceQueue exposes the presence writer backlog.
type PresenceQueue interface {
	QueueLength() int
}
