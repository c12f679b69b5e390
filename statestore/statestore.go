// Package statestore persists the small amount of client-local state the
// SDK owns (CSRF token and issue time). It is the Go analog of the
// browser's localStorage: a key-value table in a local sqlite file.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a key has never been set.
var ErrNotFound = errors.New("state key not found")

// Well-known keys, kept byte-for-byte compatible with the browser client
// so a future shared backend migration can map them 1:1.
const (
	KeyCSRFToken     = "flowcraft_csrf_token"
	KeyCSRFTokenTime = "flowcraft_csrf_token_time"
)

// entry is one key-value row.
type entry struct {
	Key       string `gorm:"primaryKey;column:key"`
	Value     string `gorm:"column:value"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "local_state" }

// Store is a sqlite-backed key-value store.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var e entry
	result := s.db.WithContext(ctx).First(&e, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", result.Error
	}
	return e.Value, nil
}

// Set stores the value for key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	e := entry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&e).Error
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&entry{}, "key = ?", key).Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
