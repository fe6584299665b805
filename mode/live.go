package mode

import (
	"context"
	"errors"

	"github.com/khaledhikmat/vs-traffic/pipeline"
)

// Live monitors the configured camera until the context is cancelled.
func Live(canxCtx context.Context, svcs pipeline.ServicesFactory, opts Options) error {
	return run(canxCtx, svcs, opts, "live monitor", false, func(ctx context.Context, monitor *pipeline.Monitor) error {
		return monitor.StartMonitoring(ctx)
	})
}

// File analyses one video file and returns once it has been played through.
func File(canxCtx context.Context, svcs pipeline.ServicesFactory, opts Options) error {
	if opts.Path == "" {
		return errors.New("file mode requires a video path")
	}

	return run(canxCtx, svcs, opts, "file monitor", true, func(ctx context.Context, monitor *pipeline.Monitor) error {
		return monitor.SelectVideoFile(ctx, opts.Path)
	})
}
