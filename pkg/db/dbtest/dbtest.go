// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
)

// Open returns a migrated sqlite client backed by a file under t.TempDir().
func Open(t *testing.T) *db.Client {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "fulfillment.db") + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return db.NewFromConn(conn)
}
