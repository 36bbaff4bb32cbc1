package storage

import (
	"fmt"
	"strings"
	"time"

	"wolf-fhs280/internal/heatpump"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&FieldReading{}, &WriteRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

// SaveSnapshot stores the given fields of a snapshot as one reading each.
func (d *Database) SaveSnapshot(snap *heatpump.Snapshot, fields []string) error {
	readings := make([]FieldReading, 0, len(fields))
	for _, name := range fields {
		v, ok := snap.Get(name)
		if !ok {
			continue
		}
		readings = append(readings, FieldReading{
			Timestamp: snap.At,
			Field:     name,
			Number:    v.Float(),
			Text:      v.String(),
		})
	}
	if len(readings) == 0 {
		return nil
	}
	return d.db.Create(&readings).Error
}

func (d *Database) GetLatestReading(field string) (*FieldReading, error) {
	var reading FieldReading
	result := d.db.Where("field = ?", field).Order("timestamp desc").First(&reading)
	if result.Error != nil {
		return nil, result.Error
	}
	return &reading, nil
}

func (d *Database) GetReadingsByRange(field string, from, to time.Time) ([]FieldReading, error) {
	var readings []FieldReading
	result := d.db.Where("field = ? AND timestamp BETWEEN ? AND ?", field, from, to).
		Order("timestamp desc").
		Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetReadingsWithLimit(field string, limit int) ([]FieldReading, error) {
	var readings []FieldReading
	result := d.db.Where("field = ?", field).Order("timestamp desc").Limit(limit).Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetDailyStats(field string, date time.Time) (*DailyStats, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := DailyStats{Date: startOfDay, Field: field}
	var row struct {
		Min   float64
		Max   float64
		Avg   float64
		Count int64
	}
	result := d.db.Model(&FieldReading{}).
		Select("MIN(number) AS min, MAX(number) AS max, AVG(number) AS avg, COUNT(*) AS count").
		Where("field = ? AND timestamp >= ? AND timestamp < ?", field, startOfDay, endOfDay).
		Scan(&row)
	if result.Error != nil {
		return nil, result.Error
	}

	stats.Min, stats.Max, stats.Avg, stats.ReadingsCount = row.Min, row.Max, row.Avg, row.Count
	return &stats, nil
}

// SaveWrite records one write attempt. err may be nil.
func (d *Database) SaveWrite(source string, res heatpump.WriteResult, req heatpump.WriteRequest, err error) (*WriteRecord, error) {
	rec := &WriteRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Field:     req.Field,
		Value:     req.Value.String(),
		Address:   res.Address,
		Words:     formatWords(res.Words),
		Source:    source,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if dbErr := d.db.Create(rec).Error; dbErr != nil {
		return nil, dbErr
	}
	return rec, nil
}

func (d *Database) GetWrites(limit int) ([]WriteRecord, error) {
	var records []WriteRecord
	result := d.db.Order("timestamp desc").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

func (d *Database) CleanOldReadings(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := d.db.Unscoped().Where("timestamp < ?", cutoff).Delete(&FieldReading{})
	return result.RowsAffected, result.Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func formatWords(words []uint16) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("0x%04X", w)
	}
	return strings.Join(parts, ",")
}
