package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/flightcheck/internal/config"
	"github.com/zulandar/flightcheck/internal/models"
	"github.com/zulandar/flightcheck/internal/probe"
)

// fakeProber serves canned results keyed by URL.
type fakeProber struct {
	mu      sync.Mutex
	results map[string]*probe.Result
	errs    map[string]error
	calls   []string
	block   chan struct{} // when set, Probe waits until it is closed
}

func (f *fakeProber) Probe(url string) (*probe.Result, error) {
	f.mu.Lock()
	block := f.block
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.results[url], nil
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Schedule:     "*/5 * * * *",
		FreshnessSec: 300,
		// Zero delay, jitter and pacing keep tests fast.
	}
}

func newTestMonitor(t *testing.T, store *fakeStore, prober *fakeProber, notifier *fakeNotifier) *Monitor {
	t.Helper()
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	m, err := New(Opts{
		Store:    store,
		Prober:   prober,
		Notifier: n,
		Config:   testConfig(),
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func activePage() *probe.Result {
	return &probe.Result{StatusCode: 200, Body: "Open in TestFlight to start testing this beta"}
}

func expiredPage() *probe.Result {
	return &probe.Result{StatusCode: 200, Body: "This beta has expired and is no longer available"}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{Prober: &fakeProber{}, Config: testConfig()}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := New(Opts{Store: &fakeStore{}, Config: testConfig()}); err == nil {
		t.Error("expected error without prober")
	}

	cfg := testConfig()
	cfg.Schedule = "not a cron line"
	if _, err := New(Opts{Store: &fakeStore{}, Prober: &fakeProber{}, Config: cfg}); err == nil {
		t.Error("expected error for a bad schedule")
	}
}

func TestRunSweep_TransitionFlow(t *testing.T) {
	pending := pendingBuild()
	active := models.Build{
		ID: "b-2", Name: "OtherApp",
		URL:    "https://testflight.apple.com/join/def",
		Status: models.StatusActive,
	}
	store := &fakeStore{builds: []models.Build{pending, active}}
	prober := &fakeProber{results: map[string]*probe.Result{
		pending.URL: activePage(),
		active.URL:  expiredPage(),
	}}
	notifier := &fakeNotifier{}
	m := newTestMonitor(t, store, prober, notifier)

	summary, err := m.RunSweep(context.Background(), SweepRoutine)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if summary.Checked != 2 || summary.Errored != 0 {
		t.Errorf("summary = %d checked / %d errors, want 2/0", summary.Checked, summary.Errored)
	}
	if len(store.logs) != 2 {
		t.Errorf("got %d log entries, want one per build", len(store.logs))
	}
	want := map[string]bool{"b-1:ACTIVE": true, "b-2:EXPIRED": true}
	for _, u := range store.statusUpdates {
		if !want[u] {
			t.Errorf("unexpected status update %q", u)
		}
		delete(want, u)
	}
	if len(want) != 0 {
		t.Errorf("missing status updates: %v", want)
	}
	if notifier.count() != 2 {
		t.Errorf("got %d notifications, want 2", notifier.count())
	}
}

func TestRunSweep_NoChangeNoNotification(t *testing.T) {
	active := models.Build{
		ID: "b-2", Name: "OtherApp",
		URL:    "https://testflight.apple.com/join/def",
		Status: models.StatusActive,
	}
	store := &fakeStore{builds: []models.Build{active}}
	prober := &fakeProber{results: map[string]*probe.Result{active.URL: activePage()}}
	notifier := &fakeNotifier{}
	m := newTestMonitor(t, store, prober, notifier)

	if _, err := m.RunSweep(context.Background(), SweepRoutine); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if notifier.count() != 0 {
		t.Error("no transition should mean no notification")
	}
	if len(store.touches) != 1 {
		t.Errorf("touches = %v, want the checked timestamp refreshed", store.touches)
	}
	if len(store.logs) != 1 {
		t.Errorf("got %d log entries, want 1 (every probe is logged)", len(store.logs))
	}
}

func TestRunSweep_NetworkErrorIsolated(t *testing.T) {
	broken := pendingBuild()
	healthy := models.Build{
		ID: "b-2", Name: "OtherApp",
		URL:    "https://testflight.apple.com/join/def",
		Status: models.StatusPending,
	}
	store := &fakeStore{builds: []models.Build{broken, healthy}}
	prober := &fakeProber{
		results: map[string]*probe.Result{healthy.URL: activePage()},
		errs:    map[string]error{broken.URL: errors.New("dial tcp: connection refused")},
	}
	notifier := &fakeNotifier{}
	m := newTestMonitor(t, store, prober, notifier)

	summary, err := m.RunSweep(context.Background(), SweepRoutine)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if summary.Checked != 2 || summary.Errored != 1 {
		t.Errorf("summary = %d checked / %d errors, want 2/1", summary.Checked, summary.Errored)
	}

	// The failing build transitions to ERROR with the error detail logged.
	var errLog *models.CheckLog
	for i := range store.logs {
		if store.logs[i].BuildID == "b-1" {
			errLog = &store.logs[i]
		}
	}
	if errLog == nil {
		t.Fatal("no log entry for the failing build")
	}
	if errLog.Status != models.StatusError {
		t.Errorf("status = %q, want ERROR", errLog.Status)
	}
	if !strings.HasPrefix(errLog.Message, "Network error:") {
		t.Errorf("message = %q, want network-error copy", errLog.Message)
	}
	if errLog.ErrorDetail == nil || !strings.Contains(*errLog.ErrorDetail, "connection refused") {
		t.Errorf("error detail = %v, want the probe error", errLog.ErrorDetail)
	}

	// The healthy build was still processed.
	found := false
	for _, u := range store.statusUpdates {
		if u == "b-2:ACTIVE" {
			found = true
		}
	}
	if !found {
		t.Errorf("status updates = %v, want b-2:ACTIVE", store.statusUpdates)
	}
}

func TestRunSweep_RoutineSelectsPendingAndActive(t *testing.T) {
	builds := []models.Build{
		{ID: "p", URL: "https://testflight.apple.com/join/p", Status: models.StatusPending},
		{ID: "a", URL: "https://testflight.apple.com/join/a", Status: models.StatusActive},
		{ID: "e", URL: "https://testflight.apple.com/join/e", Status: models.StatusExpired},
		{ID: "n", URL: "https://testflight.apple.com/join/n", Status: models.StatusNotFound},
	}
	store := &fakeStore{builds: builds}
	prober := &fakeProber{results: map[string]*probe.Result{}}
	m := newTestMonitor(t, store, prober, nil)

	summary, err := m.RunSweep(context.Background(), SweepRoutine)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if summary.Checked != 2 {
		t.Errorf("checked %d builds, want only PENDING and ACTIVE", summary.Checked)
	}
}

func TestRunSweep_AllUsesFreshnessWindow(t *testing.T) {
	stale := models.Build{
		ID: "s", URL: "https://testflight.apple.com/join/s", Status: models.StatusExpired,
	}
	store := &fakeStore{stale: []models.Build{stale}}
	prober := &fakeProber{results: map[string]*probe.Result{stale.URL: expiredPage()}}
	m := newTestMonitor(t, store, prober, nil)

	summary, err := m.RunSweep(context.Background(), SweepAll)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if summary.Checked != 1 {
		t.Errorf("checked %d builds, want the stale one", summary.Checked)
	}
	if prober.callCount() != 1 {
		t.Errorf("probed %d times, want 1", prober.callCount())
	}
}

func TestRunSweep_PendingMode(t *testing.T) {
	builds := []models.Build{
		{ID: "p", URL: "https://testflight.apple.com/join/p", Status: models.StatusPending},
		{ID: "a", URL: "https://testflight.apple.com/join/a", Status: models.StatusActive},
	}
	store := &fakeStore{builds: builds}
	prober := &fakeProber{results: map[string]*probe.Result{}}
	m := newTestMonitor(t, store, prober, nil)

	summary, err := m.RunSweep(context.Background(), SweepPending)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if summary.Checked != 1 {
		t.Errorf("checked %d builds, want only PENDING", summary.Checked)
	}
}

func TestRunSweep_OnlyOneAtATime(t *testing.T) {
	build := pendingBuild()
	block := make(chan struct{})
	store := &fakeStore{builds: []models.Build{build}}
	prober := &fakeProber{
		results: map[string]*probe.Result{build.URL: activePage()},
		block:   block,
	}
	m := newTestMonitor(t, store, prober, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := m.RunSweep(context.Background(), SweepRoutine); err != nil {
			t.Errorf("first sweep: %v", err)
		}
	}()

	// Wait for the first sweep to reach its probe, then try a second.
	deadline := time.After(2 * time.Second)
	for prober.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first sweep never started probing")
		case <-time.After(time.Millisecond):
		}
	}

	if !m.Sweeping() {
		t.Error("Sweeping() should report true mid-sweep")
	}
	if _, err := m.RunSweep(context.Background(), SweepRoutine); !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("second sweep err = %v, want ErrSweepInProgress", err)
	}

	close(block)
	<-done

	if m.Sweeping() {
		t.Error("Sweeping() should report false after the sweep")
	}
	if _, err := m.RunSweep(context.Background(), SweepRoutine); err != nil {
		t.Errorf("sweep after release: %v", err)
	}
}

func TestRunSweep_SelectionFailure(t *testing.T) {
	store := &fakeStore{dueErr: errors.New("database is locked")}
	m := newTestMonitor(t, store, &fakeProber{}, nil)

	if _, err := m.RunSweep(context.Background(), SweepRoutine); err == nil {
		t.Fatal("expected selection error")
	}
	if m.Sweeping() {
		t.Error("guard flag must be released after a failed sweep")
	}
}

func TestRunSweep_Cancellation(t *testing.T) {
	builds := []models.Build{
		{ID: "1", URL: "https://testflight.apple.com/join/1", Status: models.StatusPending},
		{ID: "2", URL: "https://testflight.apple.com/join/2", Status: models.StatusPending},
	}
	store := &fakeStore{builds: builds}
	prober := &fakeProber{results: map[string]*probe.Result{}}

	cfg := testConfig()
	cfg.ProbeDelaySec = 60 // force the pacer to block between probes
	m, err := New(Opts{Store: store, Prober: prober, Config: cfg})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for prober.callCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	summary, err := m.RunSweep(ctx, SweepRoutine)
	if err == nil {
		t.Fatal("expected interruption error")
	}
	if summary == nil || summary.Checked != 1 {
		t.Errorf("summary = %+v, want the first build processed", summary)
	}
}

func TestStartStop(t *testing.T) {
	store := &fakeStore{}
	m := newTestMonitor(t, store, &fakeProber{}, nil)

	if m.Running() {
		t.Error("Running() before Start")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Running() {
		t.Error("Running() after Start")
	}
	if err := m.Start(); err == nil {
		t.Error("second Start should fail")
	}

	m.Stop()
	if m.Running() {
		t.Error("Running() after Stop")
	}
	// Stopping twice is a no-op.
	m.Stop()
}

func TestStart_RunsInitialSweep(t *testing.T) {
	build := pendingBuild()
	store := &fakeStore{builds: []models.Build{build}}
	prober := &fakeProber{results: map[string]*probe.Result{build.URL: activePage()}}
	m := newTestMonitor(t, store, prober, nil)
	m.jitter = func() time.Duration { return 0 }

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	deadline := time.After(2 * time.Second)
	for prober.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sweep never ran")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDescribeOutcome(t *testing.T) {
	d := 340 * time.Millisecond
	cases := []struct {
		name   string
		status string
		res    *probe.Result
		err    error
		want   string
	}{
		{"active", models.StatusActive, &probe.Result{StatusCode: 200}, nil, "Build is available for testing (340ms)"},
		{"active redirect", models.StatusActive, &probe.Result{StatusCode: 302}, nil, "Redirect assumed active (HTTP 302) (340ms)"},
		{"expired", models.StatusExpired, &probe.Result{StatusCode: 200}, nil, "Build has expired (340ms)"},
		{"not found 404", models.StatusNotFound, &probe.Result{StatusCode: 404}, nil, "Build not found (404) (340ms)"},
		{"unrecognized page", models.StatusNotFound, &probe.Result{StatusCode: 200}, nil, "Build status unclear (340ms)"},
		{"server error", models.StatusError, &probe.Result{StatusCode: 503}, nil, "HTTP 503 (340ms)"},
		{"network error", models.StatusError, nil, errors.New("timeout"), "Network error: timeout (340ms)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := describeOutcome(tc.status, tc.res, tc.err, d); got != tc.want {
				t.Errorf("describeOutcome() = %q, want %q", got, tc.want)
			}
		})
	}
}
