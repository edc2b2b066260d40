package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

func TestMigrateDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	require.NoError(t, MigrateDB(db))
	// 重复迁移不报错
	require.NoError(t, MigrateDB(db))

	m := db.Migrator()
	assert.True(t, m.HasTable(&domain.User{}))
	assert.True(t, m.HasTable(&domain.Book{}))
	assert.True(t, m.HasTable(&domain.Chapter{}))
	assert.True(t, m.HasIndex(&domain.Chapter{}, "idx_chapters_book_position"))
}

func TestMigrateDB_NilDB(t *testing.T) {
	assert.Error(t, MigrateDB(nil))
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("app", "secret", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "app:secret@tcp(127.0.0.1:3306)/draft_os?charset=utf8mb4&parseTime=True&loc=UTC", dsn)

	_, err = buildDSN("", "secret", "", "", "")
	assert.Error(t, err)
	_, err = buildDSN("app", "", "", "", "")
	assert.Error(t, err)
}
