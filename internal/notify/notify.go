// Package notify fans build status-change events out to notification sinks.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/flightcheck/internal/metrics"
	"github.com/zulandar/flightcheck/internal/models"
)

// Event describes one persisted status transition. Events are emitted only
// after the repository write succeeded.
type Event struct {
	Build    models.Build
	Previous string
	New      string
	Message  string // classifier's human-readable summary, e.g. "HTTP 200 (340ms)"
}

// Sink delivers a status-change event to one channel (chat, email, webhook).
type Sink interface {
	Name() string
	Notify(ctx context.Context, evt Event) error
}

// Dispatcher delivers events to zero or more sinks. A sink failure is logged
// and counted, never propagated: persisted state is already committed by the
// time an event reaches the dispatcher, and delivery problems must not leak
// back into the sweep.
type Dispatcher struct {
	sinks   []Sink
	metrics *metrics.Collector
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(collector *metrics.Collector, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, metrics: collector}
}

// Dispatch delivers evt to every sink in order, isolating failures per sink.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, evt); err != nil {
			log.Printf("notify: %s delivery failed for build %s: %v", sink.Name(), evt.Build.ID, err)
			d.metrics.RecordNotifyFailure()
		}
	}
}

// Sinks returns the number of configured sinks.
func (d *Dispatcher) Sinks() int {
	return len(d.sinks)
}

// StatusEmoji returns the emoji used for a status in notification copy.
func StatusEmoji(status string) string {
	switch status {
	case models.StatusPending:
		return "⏳"
	case models.StatusActive:
		return "✅"
	case models.StatusExpired:
		return "❌"
	case models.StatusNotFound:
		return "🚫"
	case models.StatusError:
		return "⚠️"
	default:
		return "❓"
	}
}

// StatusColor returns the embed sidebar color for a status.
func StatusColor(status string) int {
	switch status {
	case models.StatusPending:
		return 0xffff00
	case models.StatusActive:
		return 0x00ff00
	case models.StatusExpired:
		return 0xff0000
	case models.StatusNotFound:
		return 0x808080
	case models.StatusError:
		return 0xff6600
	default:
		return 0x808080
	}
}

// Headline returns the special-cased lead line for an event, or "" when the
// transition gets no extra framing.
func Headline(evt Event) string {
	switch {
	case evt.New == models.StatusActive && evt.Previous != models.StatusActive:
		return fmt.Sprintf("🎉 **%s** is now available for testing!", evt.Build.Name)
	case evt.New == models.StatusExpired:
		return fmt.Sprintf("⏰ **%s** has expired and is no longer available.", evt.Build.Name)
	default:
		return ""
	}
}

// TransitionLabel renders "old -> new" with emoji, the shared core of every
// sink's message body.
func TransitionLabel(evt Event) string {
	return fmt.Sprintf("%s %s → %s %s",
		StatusEmoji(evt.Previous), evt.Previous, StatusEmoji(evt.New), evt.New)
}

// VersionLabel renders the "version (build number)" pair.
func VersionLabel(b models.Build) string {
	return fmt.Sprintf("%s (%s)", b.Version, b.BuildNumber)
}

// IncludeURL reports whether the invite URL belongs in the notification:
// only when a build just became installable.
func IncludeURL(evt Event) bool {
	return evt.New == models.StatusActive && evt.Previous != models.StatusActive
}
