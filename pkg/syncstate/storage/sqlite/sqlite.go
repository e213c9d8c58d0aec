// Package sqlite persists sync states into an SQLite database (through a
// pure-Go driver, no cgo is required).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultDBFile = "audiosync.sqlite3"

type syncStateRow struct {
	SessionKey    string `gorm:"primaryKey;type:varchar(255)"`
	OffsetSeconds float64
	IsAnalyzed    bool
	Confidence    *float64
	UpdatedAt     time.Time
}

func (syncStateRow) TableName() string {
	return "sync_states"
}

type Store struct {
	DB *gorm.DB
	db *sql.DB
}

var _ syncstate.Store = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("unable to create directory '%s': %w", dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open the database '%s': %w", dbPath, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to get the SQL handler: %w", err)
	}
	// SQLite allows a single writer anyway
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&syncStateRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("unable to migrate the database schema: %w", err)
	}
	return &Store{DB: db, db: sqlDB}, nil
}

func (s *Store) Save(
	ctx context.Context,
	sessionKey string,
	state syncstate.State,
) error {
	row := syncStateRow{
		SessionKey:    sessionKey,
		OffsetSeconds: state.OffsetSeconds,
		IsAnalyzed:    state.IsAnalyzed,
		Confidence:    state.Confidence,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"offset_seconds", "is_analyzed", "confidence", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("unable to save the sync state of '%s': %w", sessionKey, err)
	}
	return nil
}

func (s *Store) Load(
	ctx context.Context,
	sessionKey string,
) (syncstate.State, bool, error) {
	var row syncStateRow
	err := s.DB.WithContext(ctx).Where("session_key = ?", sessionKey).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return syncstate.State{}, false, nil
	case err != nil:
		return syncstate.State{}, false, fmt.Errorf("unable to load the sync state of '%s': %w", sessionKey, err)
	}
	return syncstate.State{
		OffsetSeconds: row.OffsetSeconds,
		IsAnalyzed:    row.IsAnalyzed,
		Confidence:    row.Confidence,
	}, true, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
