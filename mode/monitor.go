package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/pipeline"
	"github.com/khaledhikmat/vs-traffic/service/data"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/presenter"
	"github.com/khaledhikmat/vs-traffic/service/web"
)

const streamBuffer = 64

type starter func(ctx context.Context, monitor *pipeline.Monitor) error

// run wires a monitor to the presenters and the web surface, starts it and
// then drains its error and stats streams into the data service until the
// context is cancelled or, when stopOnDone is set, the session ends.
func run(canxCtx context.Context, svcs pipeline.ServicesFactory, opts Options, name string, stopOnDone bool, start starter) error {
	if svcs.Metrics == nil {
		svcs.Metrics = metrics.New()
	}
	cfgSvc := svcs.CfgSvc

	modeCtx, modeCancel := context.WithCancel(canxCtx)
	defer modeCancel()

	// Buffered so the frame loop never waits on persistence
	errorStream := make(chan interface{}, streamBuffer)
	statsStream := make(chan interface{}, streamBuffer)

	hub := presenter.NewHub(cfgSvc, svcs.Metrics)
	go hub.Run(modeCtx)

	detectionLog := pipeline.NewDetectionLog(cfgSvc.GetLogFolder())
	defer detectionLog.Close()

	monitor := pipeline.NewMonitor(svcs,
		presenter.NewMulti(presenter.NewLogger(), hub),
		pipeline.WithErrorStream(errorStream),
		pipeline.WithStatsStream(statsStream),
		pipeline.WithMode(opts.Mode),
		pipeline.WithStopAtEndOfStream(stopOnDone),
		pipeline.WithDetectionLog(detectionLog),
	)

	webErr := make(chan error, 1)
	server := web.NewServer(cfgSvc, svcs.DataSvc, monitor, hub, svcs.Metrics)
	go func() {
		webErr <- server.Start(modeCtx)
	}()

	period := time.Duration(cfgSvc.GetStatsPeriodicTimeout()) * time.Second
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var runErr error
	if err := start(modeCtx, monitor); err != nil {
		runErr = fmt.Errorf("%s failed to start: %w", name, err)
		goto resume
	}

	// Wait for cancellation, session end, stats or errors
	for {
		var done <-chan struct{}
		if stopOnDone {
			done = monitor.Done()
		}

		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				name + " context cancelled",
			)
			goto resume

		case <-done:
			lgr.Logger.Info(
				name + " session ended",
			)
			goto resume

		case err := <-webErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("%s web server failed: %w", name, err)
			}
			goto resume

		case <-ticker.C:
			sample(monitor, statsStream)

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	// Wait in a non-blocking way for `ModeMaxShutdownTime` seconds for all the go routines to exit
	// This is needed because the go routines may need to report errors as they are existing
resume:
	monitor.StopMonitoring()
	sample(monitor, statsStream)
	modeCancel()
	drain(svcs.DataSvc, statsStream, errorStream)

	lgr.Logger.Info(
		name + " is waiting for all go routines to exit",
	)

	timer := time.NewTimer(time.Duration(cfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// Timer expired, proceed with shutdown
			lgr.Logger.Info(
				name+" shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(cfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return runErr

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}
}

// sample queues the current count and dispatcher counters for persistence.
func sample(monitor *pipeline.Monitor, statsStream chan interface{}) {
	status := monitor.Status()
	if status.SessionID == "" {
		return
	}

	for _, v := range []interface{}{
		model.CountSample{
			Session:   status.SessionID,
			Mode:      status.Mode,
			Count:     status.LastCount,
			Timestamp: time.Now().Unix(),
		},
		status.Dispatcher,
	} {
		select {
		case statsStream <- v:
		default:
		}
	}
}

// drain persists whatever is already queued on the streams.
func drain(datasvc data.IService, statsStream, errorStream chan interface{}) {
	for {
		select {
		case s := <-statsStream:
			procStats(datasvc, s)
		case e := <-errorStream:
			procError(datasvc, e)
		default:
			return
		}
	}
}
