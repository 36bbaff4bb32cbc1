package storage

import (
	"time"

	"gorm.io/gorm"
)

// FieldReading is one decoded field value from one poll.
type FieldReading struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Field     string    `gorm:"index;size:64" json:"field"`
	Number    float64   `json:"number"`
	Text      string    `gorm:"size:64" json:"text"`
}

// WriteRecord is the audit entry of one write attempt.
type WriteRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Field     string    `gorm:"size:64" json:"field"`
	Value     string    `gorm:"size:64" json:"value"`
	Address   uint16    `json:"address"`
	Words     string    `gorm:"size:64" json:"words"`
	Source    string    `gorm:"size:16" json:"source"`
	Error     string    `json:"error,omitempty"`
}

type DailyStats struct {
	Date          time.Time `json:"date"`
	Field         string    `json:"field"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Avg           float64   `json:"avg"`
	ReadingsCount int64     `json:"readings_count"`
}
