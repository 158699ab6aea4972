package models

import "time"

// Build availability statuses. The set is closed: no other value is ever
// written to the status column, and external consumers rely on these exact
// strings.
const (
	StatusPending  = "PENDING"
	StatusActive   = "ACTIVE"
	StatusExpired  = "EXPIRED"
	StatusNotFound = "NOT_FOUND"
	StatusError    = "ERROR"
)

// Statuses returns all valid build statuses.
func Statuses() []string {
	return []string{StatusPending, StatusActive, StatusExpired, StatusNotFound, StatusError}
}

// ValidStatus reports whether s is a member of the status enumeration.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusNotFound, StatusError:
		return true
	}
	return false
}

// Build is a monitored TestFlight invite.
type Build struct {
	ID            string `gorm:"primaryKey;size:36"`
	Name          string `gorm:"not null"`
	Version       string `gorm:"size:64;uniqueIndex:idx_version_build"`
	BuildNumber   string `gorm:"size:64;uniqueIndex:idx_version_build"`
	URL           string `gorm:"size:512;uniqueIndex;not null"`
	Notes         string `gorm:"type:text"`
	Public        bool   `gorm:"default:false;index"`
	Status        string `gorm:"size:16;default:PENDING;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastCheckedAt *time.Time

	Logs []CheckLog `gorm:"foreignKey:BuildID;constraint:OnDelete:CASCADE"`
}
