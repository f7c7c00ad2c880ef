package repository

import (
	"testing"

	"listsync/internal/db/dbtest"

	"gorm.io/gorm"
)

func getTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtest.Open(t)
}
