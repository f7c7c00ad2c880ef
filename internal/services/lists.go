package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"listsync/internal/models"
	"listsync/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultListTitle = "My List"
	DefaultItemColor = "primary"

	maxSlugAttempts = 5
)

// expiryDurations maps the accepted expiresIn values to a lifetime.
// "inf" and "" mean the list never expires.
var expiryDurations = map[string]time.Duration{
	"1d": 24 * time.Hour,
	"1w": 7 * 24 * time.Hour,
	"1m": 30 * 24 * time.Hour,
}

// ListServiceImpl is the CRUD side of the app: lists, items and the active
// viewer count. The realtime gateway resolves rooms through ResolveList.
type ListServiceImpl struct {
	lists        ListRepository
	items        ItemRepository
	sessions     SessionStore
	activeWindow time.Duration

	slugs func() string
	now   func() time.Time
	log   *logrus.Entry
}

// NewListService wires the service to its stores.
// Returns concrete type - "Accept interfaces, return structs"
func NewListService(lists ListRepository, items ItemRepository, sessions SessionStore, activeWindow time.Duration) *ListServiceImpl {
	return &ListServiceImpl{
		lists:        lists,
		items:        items,
		sessions:     sessions,
		activeWindow: activeWindow,
		slugs:        GenerateSlug,
		now:          time.Now,
		log:          logrus.WithField("component", "list_service"),
	}
}

// CreateList stores a new list under a freshly generated slug, retrying on
// slug collisions.
func (s *ListServiceImpl) CreateList(ctx context.Context, in *models.ListCreate) (*models.List, error) {
	list := &models.List{Title: strings.TrimSpace(in.Title)}
	if list.Title == "" {
		list.Title = DefaultListTitle
	}
	if in.Description != "" {
		desc := in.Description
		list.Description = &desc
	}

	switch in.ExpiresIn {
	case "", "inf":
	default:
		d, ok := expiryDurations[in.ExpiresIn]
		if !ok {
			return nil, fmt.Errorf("%w: expiresIn must be one of 1d, 1w, 1m, inf", ErrInvalidInput)
		}
		expiresAt := s.now().Add(d)
		list.ExpiresAt = &expiresAt
	}

	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		list.PasswordHash = &h
		list.IsPasswordProtected = true
	}

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		list.ID = 0
		list.Slug = s.slugs()

		err := s.lists.Create(ctx, list)
		if err == nil {
			s.log.WithFields(logrus.Fields{"list_id": list.ID, "slug": list.Slug}).Info("✓ List created")
			return list, nil
		}
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"slug": list.Slug, "attempt": attempt}).Debug("Slug taken, retrying")
	}

	return nil, fmt.Errorf("failed to create list: no free slug after %d attempts", maxSlugAttempts)
}

// GetListBySlug returns the list with its items and active viewer count.
// Protected lists need the matching password.
func (s *ListServiceImpl) GetListBySlug(ctx context.Context, slug, password string) (*models.ListWithItems, error) {
	list, err := s.ResolveList(ctx, slug)
	if err != nil {
		return nil, err
	}

	if list.IsPasswordProtected && list.PasswordHash != nil {
		if password == "" || bcrypt.CompareHashAndPassword([]byte(*list.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidPassword
		}
	}

	items, err := s.items.ListByListID(ctx, list.ID)
	if err != nil {
		return nil, err
	}

	active, err := s.ActiveSessions(ctx, list.ID)
	if err != nil {
		// The count is informational; a flaky session store must not hide the list
		s.log.WithError(err).WithField("list_id", list.ID).Warn("⚠️  Active session count unavailable")
		active = 0
	}

	return &models.ListWithItems{List: *list, Items: items, ActiveSessions: active}, nil
}

// ResolveList looks a list up by slug without a password check. The join
// handshake uses it to map a slug to its room.
func (s *ListServiceImpl) ResolveList(ctx context.Context, slug string) (*models.List, error) {
	list, err := s.lists.GetBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrListNotFound
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListServiceImpl) UpdateList(ctx context.Context, id uint, patch *models.ListPatch) (*models.List, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
		}
		patch.Title = &title
	}

	list, err := s.lists.Update(ctx, id, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrListNotFound
	}
	return list, err
}

// AddItem puts a new item at the top of the list.
func (s *ListServiceImpl) AddItem(ctx context.Context, listID uint, in *models.ItemCreate) (*models.ListItem, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}

	if _, err := s.lists.GetByID(ctx, listID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrListNotFound
		}
		return nil, err
	}

	color := in.Color
	if color == "" {
		color = DefaultItemColor
	}

	return s.items.Create(ctx, listID, text, color)
}

func (s *ListServiceImpl) UpdateItem(ctx context.Context, id uint, patch *models.ItemPatch) (*models.ListItem, error) {
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
		}
		patch.Text = &text
	}

	item, err := s.items.Update(ctx, id, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	return item, err
}

func (s *ListServiceImpl) DeleteItem(ctx context.Context, id uint) error {
	err := s.items.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}

// ReorderItems writes every position in one transaction.
func (s *ListServiceImpl) ReorderItems(ctx context.Context, orders []models.ItemOrder) error {
	if len(orders) == 0 {
		return nil
	}
	return s.items.Reorder(ctx, orders)
}

// RegisterSession records a viewer on a list outside the websocket join, for
// clients that only poll.
func (s *ListServiceImpl) RegisterSession(ctx context.Context, listID uint, sessionID, userAgent string) (*models.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}

	if _, err := s.lists.GetByID(ctx, listID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrListNotFound
		}
		return nil, err
	}

	now := s.now()
	if err := s.sessions.Touch(ctx, listID, sessionID, userAgent); err != nil {
		return nil, err
	}
	return &models.Session{
		ListID:       listID,
		SessionID:    sessionID,
		UserAgent:    userAgent,
		LastActivity: now,
	}, nil
}

// UnregisterSession drops a viewer. Unknown sessions are not an error.
func (s *ListServiceImpl) UnregisterSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	return s.sessions.Remove(ctx, sessionID)
}

// ListActiveSessions returns the sessions seen on the list inside the active window.
func (s *ListServiceImpl) ListActiveSessions(ctx context.Context, listID uint) ([]models.Session, error) {
	return s.sessions.ListActive(ctx, listID, s.activeWindow)
}

// ActiveSessions counts sessions seen on the list inside the active window.
func (s *ListServiceImpl) ActiveSessions(ctx context.Context, listID uint) (int64, error) {
	return s.sessions.CountActive(ctx, listID, s.activeWindow)
}
