// Package store provides build and check-log persistence operations.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/flightcheck/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a build does not exist.
var ErrNotFound = errors.New("store: build not found")

// Store wraps a GORM connection with build repository operations. It is the
// single owner of Build and CheckLog rows; the monitor and dashboard go
// through it rather than touching the DB directly.
type Store struct {
	db *gorm.DB
}

// New creates a Store backed by the given GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateOpts holds parameters for registering a new build.
type CreateOpts struct {
	Name        string
	Version     string
	BuildNumber string
	URL         string
	Notes       string
	Public      bool
	Status      string // defaults to PENDING
}

// ListFilters holds optional filters for listing builds.
type ListFilters struct {
	Status     string
	PublicOnly bool
}

// StatusCount holds a status and the number of builds currently in it.
type StatusCount struct {
	Status string
	Count  int64
}

// Create registers a new build with a generated UUID. The invite URL must
// point at a TestFlight join page.
func (s *Store) Create(opts CreateOpts) (*models.Build, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("store: name is required")
	}
	if !strings.Contains(opts.URL, "testflight.apple.com/join/") {
		return nil, fmt.Errorf("store: URL must contain testflight.apple.com/join/, got %q", opts.URL)
	}
	status := opts.Status
	if status == "" {
		status = models.StatusPending
	}
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("store: invalid status %q", status)
	}

	build := models.Build{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Version:     opts.Version,
		BuildNumber: opts.BuildNumber,
		URL:         opts.URL,
		Notes:       opts.Notes,
		Public:      opts.Public,
		Status:      status,
	}
	if err := s.db.Create(&build).Error; err != nil {
		return nil, fmt.Errorf("store: create build: %w", err)
	}
	return &build, nil
}

// Get retrieves a build by ID.
func (s *Store) Get(id string) (*models.Build, error) {
	var build models.Build
	if err := s.db.Where("id = ?", id).First(&build).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get build %s: %w", id, err)
	}
	return &build, nil
}

// List returns builds matching the given filters, newest first.
func (s *Store) List(filters ListFilters) ([]models.Build, error) {
	q := s.db.Model(&models.Build{})
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.PublicOnly {
		q = q.Where("public = ?", true)
	}

	var builds []models.Build
	if err := q.Order("created_at DESC").Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("store: list builds: %w", err)
	}
	return builds, nil
}

// UpdateOpts holds mutable build fields for Update. Nil pointers leave the
// field unchanged.
type UpdateOpts struct {
	Name        *string
	Version     *string
	BuildNumber *string
	URL         *string
	Notes       *string
	Public      *bool
}

// Update applies the non-nil fields of opts to a build.
func (s *Store) Update(id string, opts UpdateOpts) (*models.Build, error) {
	updates := map[string]interface{}{}
	if opts.Name != nil {
		updates["name"] = *opts.Name
	}
	if opts.Version != nil {
		updates["version"] = *opts.Version
	}
	if opts.BuildNumber != nil {
		updates["build_number"] = *opts.BuildNumber
	}
	if opts.URL != nil {
		if !strings.Contains(*opts.URL, "testflight.apple.com/join/") {
			return nil, fmt.Errorf("store: URL must contain testflight.apple.com/join/, got %q", *opts.URL)
		}
		updates["url"] = *opts.URL
	}
	if opts.Notes != nil {
		updates["notes"] = *opts.Notes
	}
	if opts.Public != nil {
		updates["public"] = *opts.Public
	}

	if len(updates) > 0 {
		result := s.db.Model(&models.Build{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("store: update build %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	return s.Get(id)
}

// Delete removes a build and, via cascade, its check-log entries.
func (s *Store) Delete(id string) error {
	// SQLite needs the cascade done by hand unless foreign_keys is on.
	if err := s.db.Where("build_id = ?", id).Delete(&models.CheckLog{}).Error; err != nil {
		return fmt.Errorf("store: delete logs for build %s: %w", id, err)
	}
	result := s.db.Where("id = ?", id).Delete(&models.Build{})
	if result.Error != nil {
		return fmt.Errorf("store: delete build %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DueBuilds returns builds whose status is in statuses, never-checked builds
// first, then oldest-checked first so no build starves within a sweep.
func (s *Store) DueBuilds(statuses []string) ([]models.Build, error) {
	var builds []models.Build
	err := s.db.Where("status IN ?", statuses).
		Order("last_checked_at IS NOT NULL, last_checked_at ASC").
		Find(&builds).Error
	if err != nil {
		return nil, fmt.Errorf("store: due builds: %w", err)
	}
	return builds, nil
}

// StaleBuilds returns builds of any status that have never been checked or
// were last checked before the freshness window, oldest first. Used by the
// on-demand check-all path.
func (s *Store) StaleBuilds(freshness time.Duration) ([]models.Build, error) {
	cutoff := time.Now().Add(-freshness)
	var builds []models.Build
	err := s.db.Where("last_checked_at IS NULL OR last_checked_at < ?", cutoff).
		Order("last_checked_at IS NOT NULL, last_checked_at ASC").
		Find(&builds).Error
	if err != nil {
		return nil, fmt.Errorf("store: stale builds: %w", err)
	}
	return builds, nil
}

// UpdateStatus persists a status transition and refreshes last_checked_at.
// Last write wins: a duplicate sweep reaching the same conclusion writes the
// same values, so the update is idempotent.
func (s *Store) UpdateStatus(id, status string, checkedAt time.Time) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("store: invalid status %q", status)
	}
	result := s.db.Model(&models.Build{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          status,
		"last_checked_at": checkedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("store: update status for build %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Touch refreshes last_checked_at without changing status. Used on
// no-transition sweeps so the build still counts as checked.
func (s *Store) Touch(id string, checkedAt time.Time) error {
	result := s.db.Model(&models.Build{}).Where("id = ?", id).
		Update("last_checked_at", checkedAt)
	if result.Error != nil {
		return fmt.Errorf("store: touch build %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AppendLog records one probe outcome. Log rows are append-only.
func (s *Store) AppendLog(entry *models.CheckLog) error {
	if entry.BuildID == "" {
		return fmt.Errorf("store: log entry requires a build ID")
	}
	if !models.ValidStatus(entry.Status) {
		return fmt.Errorf("store: invalid log status %q", entry.Status)
	}
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("store: append log for build %s: %w", entry.BuildID, err)
	}
	return nil
}

// RecentLogs returns the most recent check-log entries for a build,
// newest first.
func (s *Store) RecentLogs(buildID string, limit int) ([]models.CheckLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []models.CheckLog
	err := s.db.Where("build_id = ?", buildID).
		Order("id DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("store: logs for build %s: %w", buildID, err)
	}
	return logs, nil
}

// Stats returns the number of builds in each status. Statuses with no
// builds are included with a zero count.
func (s *Store) Stats() ([]StatusCount, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.Build{}).
		Select("status, count(*) as n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	byStatus := make(map[string]int64, len(rows))
	for _, r := range rows {
		byStatus[r.Status] = r.N
	}

	counts := make([]StatusCount, 0, len(models.Statuses()))
	for _, status := range models.Statuses() {
		counts = append(counts, StatusCount{Status: status, Count: byStatus[status]})
	}
	return counts, nil
}
