// Package monitor implements the build-status sweep engine: scheduling,
// probing, transition detection and history recording.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/flightcheck/internal/config"
	"github.com/zulandar/flightcheck/internal/metrics"
	"github.com/zulandar/flightcheck/internal/models"
	"github.com/zulandar/flightcheck/internal/probe"
	"golang.org/x/time/rate"
)

// ErrSweepInProgress is returned when a sweep is requested while another is
// still running. At most one sweep is ever in flight per Monitor.
var ErrSweepInProgress = errors.New("monitor: sweep already in progress")

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Prober issues one HTTP exchange against an invite URL. *probe.Prober
// satisfies it.
type Prober interface {
	Probe(url string) (*probe.Result, error)
}

// SweepMode selects which builds a sweep processes.
type SweepMode int

const (
	// SweepRoutine polls builds still worth watching: PENDING and ACTIVE.
	// Terminal-ish states are left alone until someone asks.
	SweepRoutine SweepMode = iota
	// SweepAll re-polls any build, whatever its status, that has not been
	// checked within the freshness window. Used by the on-demand trigger.
	SweepAll
	// SweepPending probes only PENDING builds. Used to settle builds that
	// were registered before the monitor first ran.
	SweepPending
)

// SweepResult is one build's outcome within a sweep summary.
type SweepResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	URL    string `json:"url"`
	Error  string `json:"error,omitempty"`
}

// Summary reports what a sweep did. Checked counts every build processed;
// Errored counts builds that classified ERROR or whose persistence failed.
type Summary struct {
	Checked int           `json:"checkedCount"`
	Errored int           `json:"errorCount"`
	Results []SweepResult `json:"results"`
}

// Monitor owns the sweep lifecycle. One Monitor is constructed at process
// start and shared by the cron loop and the on-demand trigger; its guard
// flag is the sole concurrency control for status writes.
type Monitor struct {
	store      BuildStore
	prober     Prober
	classifier probe.ResponseClassifier
	recorder   *Recorder
	metrics    *metrics.Collector
	cfg        config.MonitorConfig
	sched      cron.Schedule
	limiter    *rate.Limiter

	// jitter returns the random delay prefixed to each scheduled sweep.
	// Injectable so tests don't wait.
	jitter func() time.Duration

	mu       sync.Mutex
	sweeping bool
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Opts holds parameters for creating a Monitor.
type Opts struct {
	Store      BuildStore
	Prober     Prober
	Classifier probe.ResponseClassifier
	Notifier   Notifier // optional
	Metrics    *metrics.Collector
	Config     config.MonitorConfig
}

// New creates a Monitor. The cron schedule is parsed eagerly so a bad
// expression fails at startup, not at the first sweep.
func New(opts Opts) (*Monitor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("monitor: store is required")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("monitor: prober is required")
	}
	if opts.Classifier == nil {
		opts.Classifier = probe.KeywordClassifier{}
	}

	sched, err := cronParser.Parse(opts.Config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("monitor: parse schedule %q: %w", opts.Config.Schedule, err)
	}

	recorder, err := NewRecorder(opts.Store, opts.Notifier, opts.Metrics)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if d := opts.Config.ProbeDelay(); d > 0 {
		limit = rate.Every(d)
	}

	jitterMax := opts.Config.JitterMax()

	return &Monitor{
		store:      opts.Store,
		prober:     opts.Prober,
		classifier: opts.Classifier,
		recorder:   recorder,
		metrics:    opts.Metrics,
		cfg:        opts.Config,
		sched:      sched,
		limiter:    rate.NewLimiter(limit, 1),
		jitter: func() time.Duration {
			if jitterMax <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(jitterMax)))
		},
	}, nil
}

// Start launches the scheduling loop. The first sweep runs after the
// configured initial delay so a freshly booted process doesn't probe
// immediately; every sweep after that follows the cron schedule, each
// offset by a bounded random jitter to desynchronize independent
// deployments hitting the same upstream host.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor: already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})

	go m.run(ctx)
	log.Printf("monitor: started (schedule %q, initial delay %s)", m.cfg.Schedule, m.cfg.InitialDelay())
	return nil
}

// Stop prevents further scheduled sweeps from starting. An in-flight sweep
// observes the cancellation cooperatively: it finishes its current probe,
// then stops. Stop blocks until the loop has exited.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	log.Printf("monitor: stopped")
}

// Running reports whether the scheduling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Sweeping reports whether a sweep is currently in flight.
func (m *Monitor) Sweeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeping
}

// run is the scheduling loop.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	if !sleepWithContext(ctx, m.cfg.InitialDelay()) {
		return
	}
	m.scheduledSweep(ctx)

	for {
		next := m.sched.Next(time.Now())
		if !sleepWithContext(ctx, time.Until(next)) {
			return
		}
		m.scheduledSweep(ctx)
	}
}

// scheduledSweep applies jitter and runs one routine sweep, isolating errors
// so the loop keeps its cadence.
func (m *Monitor) scheduledSweep(ctx context.Context) {
	if d := m.jitter(); d > 0 {
		if !sleepWithContext(ctx, d) {
			return
		}
	}
	if _, err := m.RunSweep(ctx, SweepRoutine); err != nil && !errors.Is(err, ErrSweepInProgress) {
		log.Printf("monitor: sweep failed: %v", err)
	}
}

// RunSweep performs one pass over the builds selected by mode. It is the
// on-demand entry point as well as the loop's worker. If a sweep is already
// in flight it returns ErrSweepInProgress immediately without touching any
// build.
func (m *Monitor) RunSweep(ctx context.Context, mode SweepMode) (*Summary, error) {
	m.mu.Lock()
	if m.sweeping {
		m.mu.Unlock()
		return nil, ErrSweepInProgress
	}
	m.sweeping = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.sweeping = false
		m.mu.Unlock()
	}()

	builds, err := m.selectBuilds(mode)
	if err != nil {
		// Selection failure aborts this sweep only; the next scheduled
		// sweep proceeds normally.
		return nil, err
	}

	log.Printf("monitor: checking %d builds", len(builds))
	summary := &Summary{Results: []SweepResult{}}

	for _, build := range builds {
		// Pace probes so a large backlog doesn't burst the upstream
		// host. Wait also observes cancellation, which is how a stopped
		// monitor finishes its current probe and no more.
		if err := m.limiter.Wait(ctx); err != nil {
			return summary, fmt.Errorf("monitor: sweep interrupted: %w", err)
		}

		result := m.checkBuild(ctx, build)
		summary.Checked++
		if result.Status == models.StatusError || result.Error != "" {
			summary.Errored++
		}
		summary.Results = append(summary.Results, result)
	}

	m.metrics.RecordSweep()
	log.Printf("monitor: sweep complete: %d checked, %d errors", summary.Checked, summary.Errored)
	return summary, nil
}

// selectBuilds returns the builds a sweep of the given mode processes.
func (m *Monitor) selectBuilds(mode SweepMode) ([]models.Build, error) {
	switch mode {
	case SweepAll:
		return m.store.StaleBuilds(m.cfg.Freshness())
	case SweepPending:
		return m.store.DueBuilds([]string{models.StatusPending})
	default:
		return m.store.DueBuilds([]string{models.StatusPending, models.StatusActive})
	}
}

// checkBuild probes one build, classifies the response and records the
// outcome. All failures are contained to this build.
func (m *Monitor) checkBuild(ctx context.Context, build models.Build) SweepResult {
	start := time.Now()
	res, probeErr := m.prober.Probe(build.URL)
	duration := time.Since(start)

	status := m.classifier.Classify(res)
	out := Outcome{
		Status:   status,
		Message:  describeOutcome(status, res, probeErr, duration),
		Duration: duration,
	}
	if res != nil {
		code := res.StatusCode
		out.HTTPStatus = &code
	}
	if probeErr != nil {
		detail := probeErr.Error()
		out.ErrorDetail = &detail
	}

	m.metrics.RecordProbe(status, duration)

	sr := SweepResult{ID: build.ID, Name: build.Name, Status: status, URL: build.URL}
	if err := m.recorder.Record(ctx, build, out); err != nil {
		log.Printf("monitor: record %s (%s): %v", build.Name, build.ID, err)
		sr.Error = err.Error()
	}
	return sr
}

// describeOutcome builds the human-readable check-log message. Latency is
// included for diagnostics only; it never influences classification.
func describeOutcome(status string, res *probe.Result, probeErr error, duration time.Duration) string {
	ms := duration.Milliseconds()
	if probeErr != nil {
		return fmt.Sprintf("Network error: %v (%dms)", probeErr, ms)
	}

	switch status {
	case models.StatusActive:
		if res != nil && res.StatusCode >= 300 && res.StatusCode < 400 {
			return fmt.Sprintf("Redirect assumed active (HTTP %d) (%dms)", res.StatusCode, ms)
		}
		return fmt.Sprintf("Build is available for testing (%dms)", ms)
	case models.StatusExpired:
		return fmt.Sprintf("Build has expired (%dms)", ms)
	case models.StatusNotFound:
		if res != nil && res.StatusCode == 404 {
			return fmt.Sprintf("Build not found (404) (%dms)", ms)
		}
		return fmt.Sprintf("Build status unclear (%dms)", ms)
	default:
		if res != nil {
			return fmt.Sprintf("HTTP %d (%dms)", res.StatusCode, ms)
		}
		return fmt.Sprintf("Request failed (%dms)", ms)
	}
}

// sleepWithContext sleeps for d, returning false if ctx was cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
