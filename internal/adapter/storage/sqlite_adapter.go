package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// slotRecord is one row of the slots table.
type slotRecord struct {
	Key       string `gorm:"column:slot_key;primaryKey;size:64"`
	Value     string `gorm:"column:value;not null"`
	Revision  int64  `gorm:"column:revision;not null;default:0"`
	UpdatedAt time.Time
}

func (slotRecord) TableName() string { return "slots" }

// SQLiteAdapter keeps slots in an embedded SQLite file through gorm.
type SQLiteAdapter struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates the slots table.
func OpenSQLite(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	a := NewSQLiteAdapter(db)
	if err := a.Migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func NewSQLiteAdapter(db *gorm.DB) *SQLiteAdapter {
	return &SQLiteAdapter{db: db}
}

func (s *SQLiteAdapter) Migrate() error {
	if err := s.db.AutoMigrate(&slotRecord{}); err != nil {
		return fmt.Errorf("migrate slots: %w", err)
	}
	return nil
}

func (s *SQLiteAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	var rec slotRecord
	err := s.db.WithContext(ctx).Where("slot_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query slot: %w", err)
	}
	return rec.Value, true, nil
}

// Set upserts the slot and bumps its revision.
func (s *SQLiteAdapter) Set(ctx context.Context, key, value string) error {
	rec := slotRecord{Key: key, Value: value, Revision: 1, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      value,
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": rec.UpdatedAt,
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return nil
}

func (s *SQLiteAdapter) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("slot_key = ?", key).Delete(&slotRecord{}).Error; err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (s *SQLiteAdapter) Revision(ctx context.Context, key string) (int64, error) {
	var rec slotRecord
	err := s.db.WithContext(ctx).Where("slot_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query slot: %w", err)
	}
	return rec.Revision, nil
}

func (s *SQLiteAdapter) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
