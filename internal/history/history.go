package history

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pixelbatch/internal/batch"
)

// ConversionRecord is one settled batch item in the session journal.
type ConversionRecord struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ItemID       string `gorm:"index" json:"item_id"`
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	TargetFormat string `json:"target_format"`
	Status       string `gorm:"index" json:"status"`
	Error        string `json:"error,omitempty"`
	OutputSize   int64  `json:"output_size"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	DurationMs   int64  `json:"duration_ms"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates the journal.
type Summary struct {
	Total           int64 `json:"total"`
	Complete        int64 `json:"complete"`
	Errored         int64 `json:"errored"`
	TotalInBytes    int64 `json:"total_in_bytes"`
	TotalOutBytes   int64 `json:"total_out_bytes"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// Store is a session-scoped journal of conversion outcomes. The default
// path is the in-memory sqlite database; pointing it at a file is an
// explicit operator opt-in.
type Store struct {
	db *gorm.DB
}

// Open opens the journal at path (":memory:" for session-only).
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&ConversionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Record implements batch.Recorder.
func (s *Store) Record(item batch.Item) {
	rec := ConversionRecord{
		ItemID:       item.ID,
		FileName:     item.FileName,
		FileSize:     item.FileSize,
		TargetFormat: string(item.Options.Format),
		Status:       string(item.Status),
		Error:        item.Error,
		StartTime:    item.StartTime,
		EndTime:      item.EndTime,
		DurationMs:   item.EndTime.Sub(item.StartTime).Milliseconds(),
	}
	if item.Result != nil {
		rec.OutputSize = item.Result.Size
		rec.Width = item.Result.Width
		rec.Height = item.Result.Height
	}
	if err := s.db.Create(&rec).Error; err != nil {
		log.Printf("history: record %s: %v", item.FileName, err)
	}
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(limit int) ([]ConversionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []ConversionRecord
	err := s.db.Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Summary aggregates every journaled conversion.
func (s *Store) Summary() (Summary, error) {
	var sum Summary
	if err := s.db.Model(&ConversionRecord{}).Count(&sum.Total).Error; err != nil {
		return sum, err
	}
	s.db.Model(&ConversionRecord{}).Where("status = ?", string(batch.StatusComplete)).Count(&sum.Complete)
	s.db.Model(&ConversionRecord{}).Where("status = ?", string(batch.StatusError)).Count(&sum.Errored)

	type totals struct {
		BytesIn  int64
		BytesOut int64
		Dur      int64
	}
	var t totals
	s.db.Model(&ConversionRecord{}).
		Select("COALESCE(SUM(file_size),0) as bytes_in, COALESCE(SUM(output_size),0) as bytes_out, COALESCE(SUM(duration_ms),0) as dur").
		Scan(&t)
	sum.TotalInBytes = t.BytesIn
	sum.TotalOutBytes = t.BytesOut
	sum.TotalDurationMs = t.Dur
	return sum, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
