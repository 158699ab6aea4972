package models

import "time"

// CheckLog is the immutable record of one probe against a build's invite URL.
// Rows are append-only: one per probe, whether or not the status changed.
type CheckLog struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	BuildID     string `gorm:"size:36;index;not null"`
	Status      string `gorm:"size:16;not null"`
	Message     string `gorm:"size:512"`
	DurationMs  int64
	HTTPStatus  *int
	ErrorDetail *string `gorm:"type:text"`
	CreatedAt   time.Time
}
