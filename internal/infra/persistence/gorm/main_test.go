package gormpersistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/infra/setup"
)

// newTestDB 为每个测试创建独立的内存 SQLite 数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, setup.MigrateDB(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Password: "hash", Email: username + "@example.com"}
	require.NoError(t, NewGormUserRepository(db).Save(context.Background(), u))
	return u
}

func seedBook(t *testing.T, db *gorm.DB, owner uint, updatedAt time.Time) (*domain.Book, *domain.Chapter) {
	t.Helper()
	book := &domain.Book{
		ID:        uuid.NewString(),
		UserID:    owner,
		Title:     domain.DefaultBookTitle,
		Status:    domain.BookStatusDraft,
		UpdatedAt: updatedAt,
	}
	chapter := &domain.Chapter{ID: uuid.NewString(), Title: domain.DefaultChapterTitle, Content: `{"type":"doc"}`}
	require.NoError(t, NewGormBookRepository(db).CreateWithChapter(context.Background(), book, chapter))
	return book, chapter
}
