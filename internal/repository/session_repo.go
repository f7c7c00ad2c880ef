package repository

import (
	"context"
	"fmt"
	"time"

	"listsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepositoryImpl persists presence rows in the sessions table.
type SessionRepositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db, now: time.Now}
}

// Touch creates the session row or refreshes its activity. A session that
// moved to another list is re-pointed at listID.
func (r *SessionRepositoryImpl) Touch(ctx context.Context, listID uint, sessionID, userAgent string) error {
	session := &models.Session{
		ListID:       listID,
		SessionID:    sessionID,
		UserAgent:    userAgent,
		LastActivity: r.now(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"list_id", "user_agent", "last_activity"}),
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, err)
	}
	return nil
}

func (r *SessionRepositoryImpl) Remove(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("failed to remove session %s: %w", sessionID, err)
	}
	return nil
}

// ListActive returns the sessions on a list whose last activity is inside
// window, most recent first.
func (r *SessionRepositoryImpl) ListActive(ctx context.Context, listID uint, window time.Duration) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("list_id = ? AND last_activity > ?", listID, r.now().Add(-window)).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions for list %d: %w", listID, err)
	}
	return sessions, nil
}

// CountActive counts sessions on a list whose last activity is inside window.
func (r *SessionRepositoryImpl) CountActive(ctx context.Context, listID uint, window time.Duration) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("list_id = ? AND last_activity > ?", listID, r.now().Add(-window)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions for list %d: %w", listID, err)
	}
	return count, nil
}
