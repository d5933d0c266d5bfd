package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	applog "github.com/wearesierraleone/frontend/internal/logger"
)

// Entry is one key/value row.
type Entry struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (Entry) TableName() string {
	return "kv_entries"
}

// GormBackend stores entries in a SQL table through GORM.
type GormBackend struct {
	db *gorm.DB
}

// OpenGorm connects to SQLite or Postgres depending on the URL prefix and
// migrates the entries table.
func OpenGorm(url string) (*GormBackend, error) {
	log := applog.Named("db")

	var dialector gorm.Dialector
	if strings.HasPrefix(url, "postgres://") {
		// pgx accepts the URL form as-is.
		dialector = postgres.Open(url)
		log.Info("connecting to PostgreSQL store")
	} else {
		dsn := strings.TrimPrefix(url, "sqlite://")
		dialector = sqlite.Open(dsn)
		log.Info("connecting to SQLite store", zap.String("path", dsn))
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := gdb.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}

	log.Info("store connection established")
	return &GormBackend{db: gdb}, nil
}

func (b *GormBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e Entry
	err := b.db.WithContext(ctx).Where("key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(e.Value), true, nil
}

func (b *GormBackend) Set(ctx context.Context, key string, value []byte) error {
	e := Entry{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}

func (b *GormBackend) Delete(ctx context.Context, key string) error {
	return b.db.WithContext(ctx).Where("key = ?", key).Delete(&Entry{}).Error
}

func (b *GormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
