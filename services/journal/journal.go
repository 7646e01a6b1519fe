// Package journal records lending events into a SQL table so operators can
// audit how reserves and obligations evolved.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/palindrome-eng/srl-program/core/events"
	"github.com/palindrome-eng/srl-program/core/types"
)

// Entry is one persisted event.
type Entry struct {
	ID         uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string            `gorm:"size:64;index" json:"type"`
	Market     string            `gorm:"size:64;index" json:"market,omitempty"`
	Reserve    string            `gorm:"size:64;index" json:"reserve,omitempty"`
	Owner      string            `gorm:"size:64;index" json:"owner,omitempty"`
	Attributes map[string]string `gorm:"serializer:json" json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (Entry) TableName() string { return "lending_events" }

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type    string
	Market  string
	Reserve string
	Owner   string
	// AfterID returns entries with an id strictly greater than AfterID.
	AfterID uint64
	Limit   int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Journal is an events.Emitter backed by gorm.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open connects to a sqlite DSN and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Journal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("journal: dsn required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: nil db")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log.With("component", "journal"), nowFn: time.Now}, nil
}

// Emit implements events.Emitter. Events without an attribute payload are
// ignored; write failures are logged because emitters cannot fail the
// operation that produced the event.
func (j *Journal) Emit(evt events.Event) {
	payload, ok := events.Payload(evt)
	if !ok {
		return
	}
	if _, err := j.Record(context.Background(), payload); err != nil {
		j.logger.Error("record event", "type", payload.Type, "error", err)
	}
}

// Record stores evt and returns the new entry.
func (j *Journal) Record(ctx context.Context, evt *types.Event) (*Entry, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, errors.New("journal: event type required")
	}
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	entry := &Entry{
		Type:       evt.Type,
		Market:     attrs["market"],
		Reserve:    attrs["reserve"],
		Owner:      attrs["owner"],
		Attributes: attrs,
		CreatedAt:  j.nowFn().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns matching entries in insertion order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := j.db.WithContext(ctx).Model(&Entry{}).Where("id > ?", filter.AfterID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Market != "" {
		query = query.Where("market = ?", filter.Market)
	}
	if filter.Reserve != "" {
		query = query.Where("reserve = ?", filter.Reserve)
	}
	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}
	var entries []Entry
	if err := query.Order("id ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of entries of eventType, or of every type when
// eventType is empty.
func (j *Journal) Count(ctx context.Context, eventType string) (int64, error) {
	query := j.db.WithContext(ctx).Model(&Entry{})
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
