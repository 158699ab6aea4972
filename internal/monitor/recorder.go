package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/flightcheck/internal/metrics"
	"github.com/zulandar/flightcheck/internal/models"
	"github.com/zulandar/flightcheck/internal/notify"
)

// BuildStore is the persistence surface the monitor depends on. *store.Store
// satisfies it; tests use in-memory fakes.
type BuildStore interface {
	DueBuilds(statuses []string) ([]models.Build, error)
	StaleBuilds(freshness time.Duration) ([]models.Build, error)
	UpdateStatus(id, status string, checkedAt time.Time) error
	Touch(id string, checkedAt time.Time) error
	AppendLog(entry *models.CheckLog) error
}

// Notifier receives status-change events after they have been persisted.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, evt notify.Event)
}

// Outcome is one classified probe result plus its diagnostics.
type Outcome struct {
	Status      string
	Message     string
	Duration    time.Duration
	HTTPStatus  *int    // nil when the exchange did not complete
	ErrorDetail *string // nil unless the probe failed
}

// Recorder turns probe outcomes into persisted history and notifications.
// It owns transition detection: the build's stored status changes only when
// the classified status differs from it.
type Recorder struct {
	store    BuildStore
	notifier Notifier
	metrics  *metrics.Collector
}

// NewRecorder creates a Recorder. notifier may be nil when no sinks are
// configured.
func NewRecorder(store BuildStore, notifier Notifier, collector *metrics.Collector) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store is required")
	}
	return &Recorder{store: store, notifier: notifier, metrics: collector}, nil
}

// Record persists one probe outcome for build.
//
// The check-log append is unconditional: it is the audit trail, one row per
// probe. On a transition the build row gets the new status and checked
// timestamp, and only after that write succeeds is the notifier signalled.
// On a no-change probe only the checked timestamp is refreshed.
//
// Log-append and build-row writes are independent: a failure of one does not
// skip the other. Failures are joined into the returned error for the
// sweep's accounting but never stop the caller's loop.
func (r *Recorder) Record(ctx context.Context, build models.Build, out Outcome) error {
	if !models.ValidStatus(out.Status) {
		return fmt.Errorf("monitor: record for build %s: invalid status %q", build.ID, out.Status)
	}

	now := time.Now()
	var errs []error

	if err := r.store.AppendLog(&models.CheckLog{
		BuildID:     build.ID,
		Status:      out.Status,
		Message:     out.Message,
		DurationMs:  out.Duration.Milliseconds(),
		HTTPStatus:  out.HTTPStatus,
		ErrorDetail: out.ErrorDetail,
	}); err != nil {
		r.metrics.RecordStoreFailure()
		errs = append(errs, fmt.Errorf("monitor: append log for build %s: %w", build.ID, err))
	}

	if out.Status != build.Status {
		if err := r.store.UpdateStatus(build.ID, out.Status, now); err != nil {
			r.metrics.RecordStoreFailure()
			errs = append(errs, fmt.Errorf("monitor: update status for build %s: %w", build.ID, err))
		} else {
			r.metrics.RecordTransition()
			if r.notifier != nil {
				r.notifier.Dispatch(ctx, notify.Event{
					Build:    build,
					Previous: build.Status,
					New:      out.Status,
					Message:  out.Message,
				})
			}
		}
	} else {
		if err := r.store.Touch(build.ID, now); err != nil {
			r.metrics.RecordStoreFailure()
			errs = append(errs, fmt.Errorf("monitor: touch build %s: %w", build.ID, err))
		}
	}

	return errors.Join(errs...)
}
