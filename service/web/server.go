package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/pipeline"
	"github.com/khaledhikmat/vs-traffic/service/config"
	"github.com/khaledhikmat/vs-traffic/service/data"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/presenter"
)

// Controller is the part of the monitor driven over HTTP.
type Controller interface {
	Status() model.MonitorStatus
	Pause() error
	Resume() error
	StopMonitoring()
}

type Server struct {
	CfgSvc     config.IService
	DataSvc    data.IService
	controller Controller
	hub        *presenter.Hub
	metrics    *metrics.Metrics
}

func NewServer(cfgSvc config.IService, dataSvc data.IService, controller Controller, hub *presenter.Hub, m *metrics.Metrics) *Server {
	return &Server{
		CfgSvc:     cfgSvc,
		DataSvc:    dataSvc,
		controller: controller,
		hub:        hub,
		metrics:    m,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.HandleFunc("GET /api/status", s.statusHandler)
	mux.HandleFunc("GET /api/trend", s.trendHandler)
	mux.HandleFunc("GET /api/samples", s.samplesHandler)
	mux.HandleFunc("POST /api/monitor/pause", s.controlHandler(s.controller.Pause))
	mux.HandleFunc("POST /api/monitor/resume", s.controlHandler(s.controller.Resume))
	mux.HandleFunc("POST /api/monitor/stop", s.controlHandler(func() error {
		s.controller.StopMonitoring()
		return nil
	}))
	mux.Handle("GET /metrics", s.metrics.Handler())

	return mux
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.CfgSvc.GetListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		lgr.Logger.Info(
			"web server listening",
			slog.String("addr", srv.Addr),
		)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		lgr.Logger.Info(
			"web server context cancelled",
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.CfgSvc.GetModeMaxShutdownTime())*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) trendHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"latest": s.hub.Trend().Latest(),
		"points": s.hub.Trend().Points(),
	})
}

func (s *Server) samplesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	samples, err := s.DataSvc.RetrieveCountSamples(limit)
	if err != nil {
		lgr.Logger.Error(
			"error retrieving count samples",
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) controlHandler(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, pipeline.ErrNotRunning) {
				status = http.StatusConflict
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.controller.Status())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lgr.Logger.Error(
			"error encoding response",
			slog.Any("error", err),
		)
	}
}
