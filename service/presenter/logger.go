package presenter

import (
	"log/slog"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
)

type loggerService struct{}

// NewLogger writes status text and counts to the application log. Frames are
// only traced at debug level.
func NewLogger() IService {
	return &loggerService{}
}

func (svc *loggerService) OnFrame(frame model.RenderedFrame) {
	lgr.Logger.Debug(
		"frame rendered",
		slog.String("session", frame.SessionID),
		slog.Int64("sequence", frame.Sequence),
		slog.Int("bytes", len(frame.JPEG)),
	)
}

func (svc *loggerService) OnStatusText(text string) {
	lgr.Logger.Info(
		"monitor status",
		slog.String("text", text),
	)
}

func (svc *loggerService) OnCount(count int) {
	lgr.Logger.Info(
		"monitor count",
		slog.Int("count", count),
	)
}
