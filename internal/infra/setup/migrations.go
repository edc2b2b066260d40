package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

// MigrateDB 迁移 users、books、chapters 表。返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// 表之间有外键语义 (books.user_id, chapters.book_id)，按依赖顺序迁移
	models := []struct {
		name  string
		model interface{}
	}{
		{"users", &domain.User{}},
		{"books", &domain.Book{}},
		{"chapters", &domain.Chapter{}},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m.model); err != nil {
			logrus.WithError(err).Errorf("Failed to migrate %s table", m.name)
			return fmt.Errorf("failed to migrate %s table: %w", m.name, err)
		}
	}

	if err := ensureChapterPositionIndex(db); err != nil {
		return err
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// ensureChapterPositionIndex 为按书籍列出章节的查询创建组合索引
func ensureChapterPositionIndex(db *gorm.DB) error {
	const idx = "idx_chapters_book_position"
	migrator := db.Migrator()
	if migrator.HasIndex(&domain.Chapter{}, idx) {
		return nil
	}
	if err := db.Exec("CREATE INDEX " + idx + " ON chapters (book_id, position)").Error; err != nil {
		logrus.WithError(err).Error("Failed to create chapter position index")
		return fmt.Errorf("failed to create index %s: %w", idx, err)
	}
	logrus.Infof("Index %s created", idx)
	return nil
}
