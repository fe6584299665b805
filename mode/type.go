package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/pipeline"
	"github.com/khaledhikmat/vs-traffic/service/data"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
)

// Options selects what a mode processor monitors.
type Options struct {
	Mode model.Mode
	Path string
}

type Processor func(canxCtx context.Context,
	svcs pipeline.ServicesFactory,
	opts Options) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.SessionStats:
		procSessionStats(datasvc, stats)
	case model.DispatcherStats:
		procDispatcherStats(datasvc, stats)
	case model.CountSample:
		procCountSample(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procSessionStats(datasvc data.IService, stats model.SessionStats) {
	err := datasvc.NewSessionStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store session stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procDispatcherStats(datasvc data.IService, stats model.DispatcherStats) {
	err := datasvc.NewDispatcherStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store dispatcher stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procCountSample(datasvc data.IService, sample model.CountSample) {
	err := datasvc.NewCountSample(sample)
	if err != nil {
		lgr.Logger.Error(
			"failed to store count sample",
			slog.Any("sample", sample),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
