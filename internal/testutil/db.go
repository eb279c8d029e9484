package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/utils"
)

// NewTestDB opens a private in-memory database with every table migrated.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", utils.GenerateNanoID(12))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(repository.AllModels()...))

	t.Cleanup(func() {
		_ = sqlDb.Close()
	})
	return db
}

func NewTestLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode:  true,
		LogLevel: "debug",
		Encoder:  "console",
	})
	appLogger.InitLogger()
	return appLogger
}
