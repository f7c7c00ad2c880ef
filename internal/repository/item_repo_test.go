package repository

import (
	"context"
	"testing"

	"listsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newListWithRepo(t *testing.T) (*ItemRepositoryImpl, uint) {
	t.Helper()
	gdb := getTestDB(t)
	list := &models.List{Slug: "Sierra-Tango-500", Title: "Test"}
	require.NoError(t, NewListRepository(gdb).Create(context.Background(), list))
	return NewItemRepository(gdb), list.ID
}

func TestItemRepository_CreatePrependsItems(t *testing.T) {
	repo, listID := newListWithRepo(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, listID, "milk", "primary")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Order, "first item starts at 0")

	second, err := repo.Create(ctx, listID, "eggs", "red")
	require.NoError(t, err)
	assert.Equal(t, -1, second.Order)

	third, err := repo.Create(ctx, listID, "bread", "blue")
	require.NoError(t, err)
	assert.Equal(t, -2, third.Order)

	items, err := repo.ListByListID(ctx, listID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"bread", "eggs", "milk"}, []string{items[0].Text, items[1].Text, items[2].Text})
}

func TestItemRepository_CreateUsesMinimumNotLatest(t *testing.T) {
	repo, listID := newListWithRepo(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, listID, "a", "")
	require.NoError(t, err)
	minus5 := -5
	_, err = repo.Update(ctx, a.ID, &models.ItemPatch{Order: &minus5})
	require.NoError(t, err)

	b, err := repo.Create(ctx, listID, "b", "")
	require.NoError(t, err)
	assert.Equal(t, -6, b.Order)
}

func TestItemRepository_UpdateWritesZeroValues(t *testing.T) {
	repo, listID := newListWithRepo(t)
	ctx := context.Background()

	item, err := repo.Create(ctx, listID, "milk", "primary")
	require.NoError(t, err)

	done := true
	updated, err := repo.Update(ctx, item.ID, &models.ItemPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "milk", updated.Text)

	undone := false
	empty := ""
	updated, err = repo.Update(ctx, item.ID, &models.ItemPatch{Completed: &undone, Color: &empty})
	require.NoError(t, err)
	assert.False(t, updated.Completed)
	assert.Equal(t, "", updated.Color)
}

func TestItemRepository_Delete(t *testing.T) {
	repo, listID := newListWithRepo(t)
	ctx := context.Background()

	item, err := repo.Create(ctx, listID, "milk", "primary")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, item.ID))
	assert.ErrorIs(t, repo.Delete(ctx, item.ID), ErrNotFound)

	_, err = repo.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemRepository_Reorder(t *testing.T) {
	repo, listID := newListWithRepo(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, listID, "a", "")
	require.NoError(t, err)
	b, err := repo.Create(ctx, listID, "b", "")
	require.NoError(t, err)

	require.NoError(t, repo.Reorder(ctx, []models.ItemOrder{{ID: a.ID, Order: 0}, {ID: b.ID, Order: 1}}))

	items, err := repo.ListByListID(ctx, listID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)
}
