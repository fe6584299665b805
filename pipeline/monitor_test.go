package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/capture"
	"github.com/khaledhikmat/vs-traffic/service/config"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/presenter"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

const (
	carBody     = `{"vehicle_info":[{"type":"car","location":{"left":10,"top":20,"width":100,"height":50}}]}`
	waitTimeout = 2 * time.Second
	pollEvery   = 2 * time.Millisecond
)

type fixture struct {
	monitor    *Monitor
	capture    *capture.Fake
	recognizer *recognition.Fake
	recorder   *presenter.Recorder
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T, mutate func(*config.Settings), opts []Option, replies ...recognition.FakeReply) *fixture {
	t.Helper()

	s := config.Defaults()
	s.TickIntervalMs = 1
	if mutate != nil {
		mutate(&s)
	}

	f := &fixture{
		capture:    capture.NewFake(),
		recognizer: recognition.NewFake(replies...),
		recorder:   presenter.NewRecorder(),
		metrics:    metrics.New(),
	}
	f.monitor = NewMonitor(ServicesFactory{
		CfgSvc:         config.New(s),
		CaptureSvc:     f.capture,
		RecognitionSvc: f.recognizer,
		Metrics:        f.metrics,
	}, f.recorder, opts...)

	t.Cleanup(f.monitor.StopMonitoring)
	return f
}

func (f *fixture) source(t *testing.T, i int) *capture.FakeSource {
	t.Helper()
	sources := f.capture.Sources()
	require.Greater(t, len(sources), i)
	return sources[i]
}

func containsCount(counts []int, want int) bool {
	for _, c := range counts {
		if c == want {
			return true
		}
	}
	return false
}

func containsStatus(statuses []string, prefix string) bool {
	for _, s := range statuses {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func TestVehicleResultIsDrawnOnNextFrame(t *testing.T) {
	f := newFixture(t, nil, nil, recognition.FakeReply{Body: carBody})
	f.capture.FrameBudget = 15

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	assert.Equal(t, model.StateRunning, f.monitor.State())

	require.Eventually(t, func() bool { return containsCount(f.recorder.Counts(), 1) }, waitTimeout, pollEvery)

	car := model.VehicleDetection("car", model.Box{Left: 10, Top: 20, Width: 100, Height: 50})
	assert.Equal(t, []model.Detection{car}, f.monitor.Snapshot())
	assert.Equal(t, 1, f.monitor.LastCount())
	assert.NotZero(t, f.monitor.Status().LastResultAt)
	assert.Contains(t, f.recorder.Statuses(),
		"vehicle detection result:\ntype: car, position: top-left (10, 20), width: 100, height: 50\n")

	f.source(t, 0).AddFrames(1)
	require.Eventually(t, func() bool {
		frame, ok := f.recorder.LastFrame()
		return ok && frame.Sequence == 16
	}, waitTimeout, pollEvery)

	frame, _ := f.recorder.LastFrame()
	var drawn []model.Detection
	require.NoError(t, json.Unmarshal(frame.JPEG, &drawn))
	assert.Equal(t, []model.Detection{car}, drawn)

	// Frames 1..15 were drawn without detections.
	first := f.recorder.Frames()[0]
	assert.JSONEq(t, `[]`, string(first.JPEG))

	assert.Equal(t, 1, f.recognizer.Calls())
	assert.Equal(t, [][]byte{[]byte("frame-15")}, f.recognizer.Images())
	assert.Equal(t, int64(1), f.monitor.Status().Applied)
}

func TestCrowdFailureKeepsLastCount(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) {
		s.SampleEvery = 1
		s.MaxInFlight = 1
	}, []Option{WithMode(model.ModeCrowd)},
		recognition.FakeReply{Body: `{"person_num":5}`},
		recognition.FakeReply{Err: errors.New("boom")},
	)

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))

	require.Eventually(t, func() bool {
		return containsStatus(f.recorder.Statuses(), "crowd counting request failed: boom")
	}, waitTimeout, pollEvery)

	statuses := f.recorder.Statuses()
	assert.Contains(t, statuses, "crowd counting result: 5 persons")
	assert.Contains(t, statuses, "keeping last detection result: 5")

	for _, c := range f.recorder.Counts() {
		assert.Equal(t, 5, c)
	}
	assert.Equal(t, 5, f.monitor.LastCount())
	assert.Equal(t, []model.Detection{model.CrowdDetection(5)}, f.monitor.Snapshot())
	assert.Equal(t, model.ModeCrowd, f.monitor.Status().Mode)
}

func TestEmptyResultKeepsDetections(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) {
		s.SampleEvery = 1
		s.MaxInFlight = 1
	}, nil,
		recognition.FakeReply{Body: carBody},
		recognition.FakeReply{Body: `{"log_id":1}`},
	)

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))

	require.Eventually(t, func() bool { return f.monitor.Status().Failures > 0 }, waitTimeout, pollEvery)
	assert.Len(t, f.monitor.Snapshot(), 1)
	assert.True(t, containsStatus(f.recorder.Statuses(), "vehicle detection request failed"))
}

func TestStopWhileInFlightIsSafe(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, func(s *config.Settings) {
		s.SampleEvery = 1
		s.MaxInFlight = 1
	}, nil, recognition.FakeReply{Body: carBody, Wait: gate})

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	require.Eventually(t, func() bool { return f.recognizer.InFlight() == 1 }, waitTimeout, pollEvery)

	sess := f.monitor.current()
	f.monitor.StopMonitoring()
	assert.Equal(t, model.StateStopped, f.monitor.State())
	assert.Equal(t, 1, f.source(t, 0).Closes())

	countsAtStop := len(f.recorder.Counts())
	statusesAtStop := len(f.recorder.Statuses())

	close(gate)
	sess.dispatcher.Wait()

	assert.Len(t, f.recorder.Counts(), countsAtStop)
	assert.Len(t, f.recorder.Statuses(), statusesAtStop)
	assert.Equal(t, int64(1), sess.dispatcher.Stats().Dropped)

	f.monitor.StopMonitoring()
	assert.Equal(t, 1, f.source(t, 0).Closes())
	assert.Equal(t, ErrNotRunning, f.monitor.Pause())
}

func TestSwitchingSourceReleasesPreviousFirst(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	require.NoError(t, f.monitor.SelectVideoFile(context.Background(), "clip.mp4"))

	assert.Equal(t, []string{"open:device:0", "close:device:0", "open:file:clip.mp4"}, f.capture.Events())
	assert.Equal(t, 1, f.source(t, 0).Closes())
	assert.Equal(t, "file:clip.mp4", f.monitor.Status().Target)
}

func TestOpenFailureLeavesMonitorIdle(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) {
		s.SampleEvery = 1 << 20
	}, nil)
	f.capture.FailTargets["file:missing.mp4"] = true

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))

	err := f.monitor.SelectVideoFile(context.Background(), "missing.mp4")
	var openErr *capture.OpenError
	require.ErrorAs(t, err, &openErr)

	assert.Equal(t, model.StateIdle, f.monitor.State())
	assert.Equal(t, []string{"unable to open video file"}, f.recorder.Statuses())
	assert.Equal(t, 1, f.source(t, 0).Closes())
	assert.Equal(t, ErrNotRunning, f.monitor.Resume())
}

func TestCameraOpenFailureText(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.capture.FailTargets["device:0"] = true

	assert.Error(t, f.monitor.StartMonitoring(context.Background()))
	assert.Equal(t, []string{"unable to open camera"}, f.recorder.Statuses())
	assert.Equal(t, model.StateIdle, f.monitor.State())
}

func TestPauseSuspendsTicks(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	require.Eventually(t, func() bool { return len(f.recorder.Frames()) > 2 }, waitTimeout, pollEvery)

	require.NoError(t, f.monitor.TogglePause())
	assert.Equal(t, model.StatePaused, f.monitor.State())

	reads := f.source(t, 0).Reads()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, reads, f.source(t, 0).Reads())
	assert.Equal(t, 0, f.source(t, 0).Closes())

	// Start on a paused camera resumes the same session.
	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	assert.Equal(t, model.StateRunning, f.monitor.State())
	assert.Len(t, f.capture.Sources(), 1)
	require.Eventually(t, func() bool { return f.source(t, 0).Reads() > reads }, waitTimeout, pollEvery)
}

func TestReadFailureIsReportedPerTick(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.capture.FrameBudget = 0

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	require.Eventually(t, func() bool {
		n := 0
		for _, s := range f.recorder.Statuses() {
			if s == "unable to capture video frame" {
				n++
			}
		}
		return n >= 3
	}, waitTimeout, pollEvery)

	assert.Empty(t, f.recorder.Frames())
	assert.Equal(t, model.StateRunning, f.monitor.State())
	assert.GreaterOrEqual(t, f.metrics.CaptureErrors.Load(), uint64(3))
}

func TestEndOfStreamStopsFileSession(t *testing.T) {
	stats := make(chan interface{}, 4)
	f := newFixture(t, func(s *config.Settings) {
		s.SampleEvery = 1
	}, []Option{WithStopAtEndOfStream(true), WithStatsStream(stats)})
	f.capture.FrameBudget = 2
	f.capture.EndOfStream = true

	require.NoError(t, f.monitor.SelectVideoFile(context.Background(), "clip.mp4"))

	select {
	case <-f.monitor.Done():
	case <-time.After(waitTimeout):
		t.Fatal("file session did not stop at end of stream")
	}

	assert.Equal(t, model.StateStopped, f.monitor.State())
	assert.Equal(t, 1, f.source(t, 0).Closes())

	sessionStats, ok := (<-stats).(model.SessionStats)
	require.True(t, ok)
	assert.Equal(t, int64(2), sessionStats.Frames)
	assert.Equal(t, "file:clip.mp4", sessionStats.Target)

	dispatcherStats, ok := (<-stats).(model.DispatcherStats)
	require.True(t, ok)
	assert.Equal(t, sessionStats.ID, dispatcherStats.Session)
}

func TestSetModeAppliesToNextSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.monitor.StartMonitoring(context.Background()))
	f.monitor.SetMode(model.ModeCrowd)
	assert.Equal(t, model.ModeVehicle, f.monitor.Status().Mode)

	require.NoError(t, f.monitor.SelectVideoFile(context.Background(), "crowd.mp4"))
	assert.Equal(t, model.ModeCrowd, f.monitor.Status().Mode)
}

func TestCancelledContextReleasesSession(t *testing.T) {
	stats := make(chan interface{}, 4)
	f := newFixture(t, nil, []Option{WithStatsStream(stats)})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.monitor.StartMonitoring(ctx))
	require.Eventually(t, func() bool { return len(f.recorder.Frames()) > 0 }, waitTimeout, pollEvery)

	cancel()

	select {
	case <-f.monitor.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop after its context was cancelled")
	}

	assert.Equal(t, model.StateStopped, f.monitor.State())
	assert.Equal(t, 1, f.source(t, 0).Closes())
	assert.Equal(t, []string{"open:device:0", "close:device:0"}, f.capture.Events())
	assert.Equal(t, ErrNotRunning, f.monitor.Pause())

	_, ok := (<-stats).(model.SessionStats)
	assert.True(t, ok)
}

type gatedCapture struct {
	*capture.Fake
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCapture) Open(target model.Target) (capture.Source, error) {
	close(g.entered)
	<-g.release
	return g.Fake.Open(target)
}

func TestStatusDoesNotWaitForSlowOpen(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.monitor.StartMonitoring(context.Background()))

	gated := &gatedCapture{Fake: f.capture, entered: make(chan struct{}), release: make(chan struct{})}
	f.monitor.svcs.CaptureSvc = gated

	started := make(chan error, 1)
	go func() {
		started <- f.monitor.SelectVideoFile(context.Background(), "clip.mp4")
	}()

	select {
	case <-gated.entered:
	case <-time.After(waitTimeout):
		t.Fatal("open was never attempted")
	}

	states := make(chan model.State, 1)
	go func() {
		_ = f.monitor.Status()
		_ = f.monitor.Snapshot()
		states <- f.monitor.State()
	}()

	select {
	case state := <-states:
		assert.Equal(t, model.StateStopped, state)
	case <-time.After(waitTimeout):
		t.Fatal("status blocked while a capture source was opening")
	}

	close(gated.release)
	require.NoError(t, <-started)
	assert.Equal(t, model.StateRunning, f.monitor.State())
	assert.Equal(t, "file:clip.mp4", f.monitor.Status().Target)
}
