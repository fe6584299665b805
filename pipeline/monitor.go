package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/presenter"
)

var ErrNotRunning = errors.New("monitor is not running")

type Option func(*Monitor)

// WithErrorStream receives model.CustomError values for asynchronous
// failures. Sends never block.
func WithErrorStream(stream chan interface{}) Option {
	return func(m *Monitor) {
		m.errorStream = stream
	}
}

// WithStatsStream receives session and dispatcher stats when a session ends.
func WithStatsStream(stream chan interface{}) Option {
	return func(m *Monitor) {
		m.statsStream = stream
	}
}

// WithStopAtEndOfStream stops a file session once the file is exhausted
// instead of reporting a capture failure on every tick.
func WithStopAtEndOfStream(stop bool) Option {
	return func(m *Monitor) {
		m.stopAtEOS = stop
	}
}

func WithMode(mode model.Mode) Option {
	return func(m *Monitor) {
		m.mode = mode
	}
}

func WithDetectionLog(w io.Writer) Option {
	return func(m *Monitor) {
		m.detectionLog = w
	}
}

// Monitor owns at most one session at a time. Starting a new source always
// stops the current session and releases its capture handle first.
type Monitor struct {
	svcs ServicesFactory
	sink presenter.IService

	errorStream  chan interface{}
	statsStream  chan interface{}
	stopAtEOS    bool
	detectionLog io.Writer

	// startMu serializes source switches. mu only guards the fields below and
	// is never held across a capture open or a session stop.
	startMu sync.Mutex
	mu      sync.Mutex
	mode    model.Mode
	sess    *session
}

func NewMonitor(svcs ServicesFactory, sink presenter.IService, opts ...Option) *Monitor {
	if svcs.Metrics == nil {
		svcs.Metrics = metrics.New()
	}
	if sink == nil {
		sink = presenter.NewLogger()
	}

	mode, err := model.ParseMode(svcs.CfgSvc.GetDefaultMode())
	if err != nil {
		lgr.Logger.Warn(
			"invalid default mode, using vehicle",
			slog.Any("error", err),
		)
		mode = model.ModeVehicle
	}

	m := &Monitor{
		svcs: svcs,
		sink: sink,
		mode: mode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartMonitoring resumes a paused device session or opens the configured
// camera. The session lives until ctx is cancelled or it is stopped.
func (m *Monitor) StartMonitoring(ctx context.Context) error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()

	if s != nil && s.target.Kind == model.TargetDevice && s.State() == model.StatePaused {
		return s.setPaused(false)
	}

	return m.Start(ctx, model.LiveTarget(m.svcs.CfgSvc.GetDeviceIndex()))
}

func (m *Monitor) SelectVideoFile(ctx context.Context, path string) error {
	return m.Start(ctx, model.FileTarget(path))
}

// Start stops the current session, if any, and opens target. When the open
// fails the presenter gets one status text and the monitor is left idle.
func (m *Monitor) Start(ctx context.Context, target model.Target) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	// The old handle is released before the new one is opened.
	if old := m.current(); old != nil {
		old.stop()
	}

	src, err := m.svcs.CaptureSvc.Open(target)
	if err != nil {
		m.mu.Lock()
		m.sess = nil
		m.mu.Unlock()

		m.sink.OnStatusText(openFailedText(target))
		lgr.Logger.Error(
			openFailedText(target),
			slog.String("target", target.String()),
			slog.Any("error", err),
		)
		emit(m.errorStream, model.GenError("monitor",
			err,
			map[string]interface{}{"target": target.String()},
			"error opening capture source"))
		return err
	}

	sampleEvery := int64(m.svcs.CfgSvc.GetSampleEvery())
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	tickInterval := m.svcs.CfgSvc.GetTickInterval()
	if tickInterval <= 0 {
		tickInterval = 30 * time.Millisecond
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:           uuid.NewString(),
		mode:         m.Mode(),
		target:       target,
		src:          src,
		sink:         m.sink,
		dispatcher:   NewDispatcher(sctx, m.svcs.RecognitionSvc, m.svcs.CfgSvc.GetMaxInFlight(), m.svcs.Metrics),
		annotations:  NewAnnotations(),
		metrics:      m.svcs.Metrics,
		tickInterval: tickInterval,
		sampleEvery:  sampleEvery,
		dropStale:    m.svcs.CfgSvc.GetDropStaleResults(),
		stopAtEOS:    m.stopAtEOS,
		detectionLog: m.detectionLog,
		errorStream:  m.errorStream,
		statsStream:  m.statsStream,
		cancel:       cancel,
		control:      make(chan controlRequest),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		started:      time.Now(),
		state:        model.StateRunning,
	}

	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()

	lgr.Logger.Info(
		"monitor session starting....",
		slog.String("session", s.id),
		slog.String("mode", string(s.mode)),
		slog.String("target", target.String()),
	)

	go s.run(sctx)
	return nil
}

func (m *Monitor) Pause() error {
	s := m.current()
	if s == nil {
		return ErrNotRunning
	}
	return s.setPaused(true)
}

func (m *Monitor) Resume() error {
	s := m.current()
	if s == nil {
		return ErrNotRunning
	}
	return s.setPaused(false)
}

func (m *Monitor) TogglePause() error {
	s := m.current()
	if s == nil {
		return ErrNotRunning
	}
	return s.setPaused(s.State() != model.StatePaused)
}

// StopMonitoring stops the current session. Calling it again is a no-op.
func (m *Monitor) StopMonitoring() {
	if s := m.current(); s != nil {
		s.stop()
	}
}

// SetMode selects the recognition mode used by the next session.
func (m *Monitor) SetMode(mode model.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

func (m *Monitor) Mode() model.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Monitor) State() model.State {
	s := m.current()
	if s == nil {
		return model.StateIdle
	}
	return s.State()
}

// Snapshot returns the detections currently drawn on frames.
func (m *Monitor) Snapshot() []model.Detection {
	s := m.current()
	if s == nil {
		return []model.Detection{}
	}
	return s.annotations.Snapshot()
}

func (m *Monitor) LastCount() int {
	s := m.current()
	if s == nil {
		return 0
	}
	return s.annotations.LastCount()
}

func (m *Monitor) Status() model.MonitorStatus {
	s := m.current()
	if s == nil {
		return model.MonitorStatus{
			State:      model.StateIdle.String(),
			Mode:       m.Mode(),
			Detections: []model.Detection{},
		}
	}
	return s.status()
}

// Done is closed once the current session has fully stopped. Without a
// session it is already closed.
func (m *Monitor) Done() <-chan struct{} {
	s := m.current()
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.stopped
}

func (m *Monitor) current() *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}
