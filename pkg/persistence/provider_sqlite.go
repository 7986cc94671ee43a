package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// snapshotRow is one stored blob
type snapshotRow struct {
	Key       string `gorm:"column:snapshot_key;primaryKey;size:512"`
	Blob      []byte `gorm:"column:blob"`
	UpdatedAt time.Time
}

// SQLAdapter stores blobs in a single table through gorm
type SQLAdapter struct {
	db    *gorm.DB
	table string
	owned bool
}

// SQLiteConfig contains the sqlite backend configuration
type SQLiteConfig struct {
	// DSN is the database file or ":memory:"
	DSN string

	// TableName is the table blobs are stored in (default: snapshots)
	TableName string
}

// NewSQLiteAdapter opens (or creates) a sqlite database and migrates the
// snapshot table
func NewSQLiteAdapter(ctx context.Context, config *SQLiteConfig) (*SQLAdapter, error) {
	if config == nil {
		config = &SQLiteConfig{}
	}
	if config.DSN == "" {
		config.DSN = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(config.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQLite connection pool: %w", err)
	}
	// A single connection avoids "database is locked" errors and keeps
	// an in-memory database alive across calls.
	sqlDB.SetMaxOpenConns(1)

	if !strings.Contains(config.DSN, ":memory:") {
		if err := db.WithContext(ctx).Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	adapter, err := NewSQLAdapter(ctx, db, config.TableName)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	adapter.owned = true
	return adapter, nil
}

// NewSQLAdapter uses an existing gorm connection. The caller keeps
// ownership of db; Close does not close it.
func NewSQLAdapter(ctx context.Context, db *gorm.DB, table string) (*SQLAdapter, error) {
	if table == "" {
		table = "snapshots"
	}
	if err := db.WithContext(ctx).Table(table).AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate table %s: %w", table, err)
	}
	return &SQLAdapter{db: db, table: table}, nil
}

// Read fetches the blob stored under key
func (s *SQLAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Table(s.table).Where("snapshot_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s from %s: %w", key, s.table, err)
	}
	return row.Blob, true, nil
}

// Write inserts or replaces the blob under key
func (s *SQLAdapter) Write(ctx context.Context, key string, blob []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	row := snapshotRow{Key: key, Blob: blob, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", key, s.table, err)
	}
	return nil
}

// Close closes the connection pool when the adapter opened it
func (s *SQLAdapter) Close() error {
	if !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
