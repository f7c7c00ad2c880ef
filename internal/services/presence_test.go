package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"listsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) Touch(ctx context.Context, listID uint, sessionID, userAgent string) error {
	return m.Called(ctx, listID, sessionID, userAgent).Error(0)
}

func (m *mockSessionStore) Remove(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockSessionStore) CountActive(ctx context.Context, listID uint, window time.Duration) (int64, error) {
	args := m.Called(ctx, listID, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) ListActive(ctx context.Context, listID uint, window time.Duration) ([]models.Session, error) {
	args := m.Called(ctx, listID, window)
	sessions, _ := args.Get(0).([]models.Session)
	return sessions, args.Error(1)
}

// recordingStore logs every write per session in the order it was applied.
type recordingStore struct {
	mu  sync.Mutex
	ops map[string][]string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{ops: make(map[string][]string)}
}

func (r *recordingStore) Touch(_ context.Context, listID uint, sessionID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[sessionID] = append(r.ops[sessionID], fmt.Sprintf("touch %d", listID))
	return nil
}

func (r *recordingStore) Remove(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[sessionID] = append(r.ops[sessionID], "remove")
	return nil
}

func (r *recordingStore) CountActive(context.Context, uint, time.Duration) (int64, error) {
	return 0, nil
}

func (r *recordingStore) ListActive(context.Context, uint, time.Duration) ([]models.Session, error) {
	return nil, nil
}

func (r *recordingStore) opsFor(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops[sessionID]...)
}

func TestPresenceWriter_CallsStore(t *testing.T) {
	store := new(mockSessionStore)
	store.On("Touch", mock.Anything, uint(4), "tab-1", "firefox").Return(nil).Once()
	store.On("Remove", mock.Anything, "tab-1").Return(nil).Once()

	w := NewPresenceWriter(store, 2, 8)
	w.Start()

	require.NoError(t, w.Touch(4, "tab-1", "firefox"))
	require.NoError(t, w.Remove("tab-1"))
	w.Shutdown()

	store.AssertExpectations(t)
}

func TestPresenceWriter_StoreErrorsAreSwallowed(t *testing.T) {
	store := new(mockSessionStore)
	store.On("Touch", mock.Anything, uint(1), "tab-1", "ua").Return(errors.New("connection refused")).Once()
	store.On("Touch", mock.Anything, uint(1), "tab-2", "ua").Return(nil).Once()

	w := NewPresenceWriter(store, 1, 8)
	w.Start()

	// The first failure must not stop the worker
	require.NoError(t, w.Touch(1, "tab-1", "ua"))
	require.NoError(t, w.Touch(1, "tab-2", "ua"))
	w.Shutdown()

	store.AssertExpectations(t)
}

func TestPresenceWriter_KeepsPerSessionOrder(t *testing.T) {
	store := newRecordingStore()
	w := NewPresenceWriter(store, 4, 1024)
	w.Start()

	sessions := []string{"a", "b", "c", "d", "e", "f"}
	for round := 0; round < 20; round++ {
		for _, s := range sessions {
			require.NoError(t, w.Touch(uint(round), s, "ua"))
			require.NoError(t, w.Remove(s))
		}
	}
	w.Shutdown()

	for _, s := range sessions {
		ops := store.opsFor(s)
		require.Len(t, ops, 40)
		for round := 0; round < 20; round++ {
			assert.Equal(t, fmt.Sprintf("touch %d", round), ops[2*round])
			assert.Equal(t, "remove", ops[2*round+1])
		}
	}
}

func TestPresenceWriter_FullQueueDrops(t *testing.T) {
	store := new(mockSessionStore)
	w := NewPresenceWriter(store, 1, 1)

	// Not started: the single slot fills and the next job is rejected
	require.NoError(t, w.Touch(1, "tab-1", "ua"))
	err := w.Touch(1, "tab-2", "ua")
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.Equal(t, 1, w.QueueLength())
}

func TestPresenceWriter_RejectsAfterShutdown(t *testing.T) {
	store := new(mockSessionStore)
	w := NewPresenceWriter(store, 1, 4)
	w.Start()
	w.Shutdown()
	w.Shutdown()

	assert.ErrorIs(t, w.Touch(1, "tab-1", "ua"), ErrPersistenceUnavailable)
	assert.ErrorIs(t, w.Remove("tab-1"), ErrPersistenceUnavailable)
	store.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
