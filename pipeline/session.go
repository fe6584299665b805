package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/capture"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/presenter"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

type controlRequest struct {
	pause bool
	ack   chan struct{}
}

// session is one open capture source driven by a ticker. Everything that
// touches the source, the presenter or the annotations for writing runs on
// the loop goroutine.
type session struct {
	id          string
	mode        model.Mode
	target      model.Target
	src         capture.Source
	sink        presenter.IService
	dispatcher  *Dispatcher
	annotations *Annotations
	metrics     *metrics.Metrics

	tickInterval time.Duration
	sampleEvery  int64
	dropStale    bool
	stopAtEOS    bool
	detectionLog io.Writer
	errorStream  chan interface{}
	statsStream  chan interface{}

	cancel   context.CancelFunc
	control  chan controlRequest
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	started  time.Time

	mu    sync.Mutex
	state model.State

	ticks         atomic.Int64
	frames        atomic.Int64
	captureErrors atomic.Int64
	dispatched    atomic.Int64
	applied       atomic.Int64
	failures      atomic.Int64
	stale         atomic.Int64
}

// run drives the loop and releases the session whenever the loop exits,
// including when the caller's context is cancelled.
func (s *session) run(ctx context.Context) {
	s.loop(ctx)
	close(s.done)
	s.stop()
}

func (s *session) loop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			lgr.Logger.Info(
				"monitor session context cancelled",
				slog.String("session", s.id),
			)
			return

		case req := <-s.control:
			switch {
			case req.pause && !paused:
				ticker.Stop()
				paused = true
				s.setState(model.StatePaused)
			case !req.pause && paused:
				ticker.Reset(s.tickInterval)
				paused = false
				s.setState(model.StateRunning)
			}
			close(req.ack)

		case c := <-s.dispatcher.Results():
			// Completions are applied while paused too.
			s.apply(c)

		case <-ticker.C:
			if paused {
				continue
			}
			if !s.tick() {
				lgr.Logger.Info(
					"monitor session reached end of stream",
					slog.String("session", s.id),
					slog.String("target", s.target.String()),
				)
				return
			}
		}
	}
}

func (s *session) tick() bool {
	s.ticks.Add(1)
	s.metrics.Ticks.Add(1)

	frame, err := s.src.Read()
	if err != nil {
		if errors.Is(err, capture.ErrEndOfStream) && s.stopAtEOS {
			return false
		}
		s.captureErrors.Add(1)
		s.metrics.CaptureErrors.Add(1)
		s.sink.OnStatusText(textCaptureFailed)
		lgr.Logger.Warn(
			textCaptureFailed,
			slog.String("session", s.id),
			slog.Any("error", err),
		)
		return true
	}
	defer frame.Close()

	frames := s.frames.Add(1)

	rendered, err := frame.Render(s.annotations.Snapshot())
	if err != nil {
		s.emitError(err, map[string]interface{}{"frame": frames}, "error rendering frame")
	} else {
		width, height := frame.Size()
		s.sink.OnFrame(model.RenderedFrame{
			SessionID: s.id,
			Sequence:  frames,
			Width:     width,
			Height:    height,
			JPEG:      rendered,
			Timestamp: time.Now(),
		})
		s.metrics.FramesRendered.Add(1)
	}

	if frames%s.sampleEvery != 0 {
		return true
	}

	raw, err := frame.Encode()
	if err != nil {
		s.emitError(err, map[string]interface{}{"frame": frames}, "error encoding frame for recognition")
		return true
	}

	seq := s.dispatcher.Submit(raw, s.mode)
	s.dispatched.Add(1)
	lgr.Logger.Debug(
		"frame submitted for recognition",
		slog.String("session", s.id),
		slog.Int64("frame", frames),
		slog.Uint64("seq", seq),
	)
	return true
}

// apply runs on the loop goroutine. A failed or empty result keeps the
// current detections and re-reports the last count.
func (s *session) apply(c Completion) {
	if c.Err != nil {
		outcome := metrics.OutcomeFailed
		if errors.Is(c.Err, recognition.ErrEmptyResult) {
			outcome = metrics.OutcomeEmpty
		}
		s.failures.Add(1)
		s.metrics.ObserveCompletion(string(c.Mode), outcome, c.Latency())

		last := s.annotations.LastCount()
		s.sink.OnStatusText(failureText(c.Mode, c.Err))
		s.sink.OnStatusText(keepText(last))
		s.sink.OnCount(last)

		lgr.Logger.Warn(
			"recognition request failed",
			slog.String("session", s.id),
			slog.Uint64("seq", c.Seq),
			slog.Int("lastCount", last),
			slog.Any("error", c.Err),
		)
		s.emitError(c.Err, map[string]interface{}{"seq": c.Seq, "mode": string(c.Mode)}, "recognition request failed")
		return
	}

	if !s.annotations.Replace(c.Seq, c.Result.Detections, c.Result.Count, s.dropStale) {
		s.stale.Add(1)
		s.metrics.ObserveCompletion(string(c.Mode), metrics.OutcomeStale, c.Latency())
		lgr.Logger.Info(
			"stale recognition result discarded",
			slog.String("session", s.id),
			slog.Uint64("seq", c.Seq),
			slog.Uint64("applied", s.annotations.LastSeq()),
		)
		return
	}

	s.applied.Add(1)
	s.metrics.ObserveCompletion(string(c.Mode), metrics.OutcomeApplied, c.Latency())
	s.metrics.LastCount.Store(int64(c.Result.Count))

	s.sink.OnStatusText(resultText(c.Mode, c.Result))
	s.sink.OnCount(c.Result.Count)

	lgr.Logger.Info(
		"recognition result applied",
		slog.String("session", s.id),
		slog.String("mode", string(c.Mode)),
		slog.Uint64("seq", c.Seq),
		slog.Int("count", c.Result.Count),
		slog.Duration("latency", c.Latency()),
	)
	logDetections(s.detectionLog, s.id, c)
}

// setPaused hands a pause or resume request to the loop and waits until it
// has been applied.
func (s *session) setPaused(pause bool) error {
	req := controlRequest{pause: pause, ack: make(chan struct{})}

	select {
	case s.control <- req:
	case <-s.done:
		return ErrNotRunning
	}

	select {
	case <-req.ack:
		return nil
	case <-s.done:
		return ErrNotRunning
	}
}

// stop is idempotent. It cancels the loop, waits for it to exit and only
// then releases the capture source.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done

		s.dispatcher.Close()

		if err := s.src.Close(); err != nil {
			lgr.Logger.Warn(
				"error releasing capture source",
				slog.String("session", s.id),
				slog.Any("error", err),
			)
		}

		s.setState(model.StateStopped)

		stats := s.sessionStats()
		dispatcherStats := s.dispatcher.Stats()
		dispatcherStats.Session = s.id
		emit(s.statsStream, stats)
		emit(s.statsStream, dispatcherStats)

		lgr.Logger.Info(
			"monitor session stopped",
			slog.String("session", s.id),
			slog.String("target", s.target.String()),
			slog.Int64("frames", stats.Frames),
			slog.Int64("applied", stats.Applied),
		)
		close(s.stopped)
	})
}

func (s *session) setState(state model.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *session) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) sessionStats() model.SessionStats {
	return model.SessionStats{
		ID:            s.id,
		Mode:          s.mode,
		Target:        s.target.String(),
		Ticks:         s.ticks.Load(),
		Frames:        s.frames.Load(),
		CaptureErrors: s.captureErrors.Load(),
		Dispatched:    s.dispatched.Load(),
		Applied:       s.applied.Load(),
		Failures:      s.failures.Load(),
		Stale:         s.stale.Load(),
		Uptime:        int64(time.Since(s.started).Seconds()),
		Timestamp:     time.Now().Unix(),
	}
}

func (s *session) status() model.MonitorStatus {
	dispatcherStats := s.dispatcher.Stats()
	dispatcherStats.Session = s.id

	// Unix seconds of the last applied result, zero until one arrives.
	var lastResultAt int64
	if updated := s.annotations.Updated(); !updated.IsZero() {
		lastResultAt = updated.Unix()
	}

	return model.MonitorStatus{
		SessionID:     s.id,
		State:         s.State().String(),
		Mode:          s.mode,
		Target:        s.target.String(),
		Ticks:         s.ticks.Load(),
		Frames:        s.frames.Load(),
		CaptureErrors: s.captureErrors.Load(),
		Applied:       s.applied.Load(),
		Failures:      s.failures.Load(),
		Stale:         s.stale.Load(),
		LastCount:     s.annotations.LastCount(),
		LastResultAt:  lastResultAt,
		Detections:    s.annotations.Snapshot(),
		Dispatcher:    dispatcherStats,
	}
}

func (s *session) emitError(err error, misc map[string]interface{}, messagef string, args ...interface{}) {
	misc["session"] = s.id
	emit(s.errorStream, model.GenError("monitor_session", err, misc, messagef, args...))
}

// emit never blocks the frame loop. Streams are buffered by their owner.
func emit(stream chan interface{}, v interface{}) {
	if stream == nil {
		return
	}

	select {
	case stream <- v:
	default:
		lgr.Logger.Warn(
			"stream is full, dropping value",
			slog.Any("value", v),
		)
	}
}
