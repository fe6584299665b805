package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
)

// NewDetectionLog returns a rotating writer for applied recognition results.
func NewDetectionLog(folder string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   filepath.Join(folder, "detections.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7,    // days
		Compress:   true, // compress old logs
	}
}

type detectionEntry struct {
	Session    string            `json:"session"`
	Seq        uint64            `json:"seq"`
	Mode       model.Mode        `json:"mode"`
	Count      int               `json:"count"`
	Detections []model.Detection `json:"detections"`
	Latency    float64           `json:"latency"`
	Timestamp  string            `json:"timestamp"`
}

func logDetections(w io.Writer, sessionID string, c Completion) {
	if w == nil {
		return
	}

	entry := detectionEntry{
		Session:    sessionID,
		Seq:        c.Seq,
		Mode:       c.Mode,
		Count:      c.Result.Count,
		Detections: c.Result.Detections,
		Latency:    c.Latency().Seconds(),
		Timestamp:  c.Completed.Format(time.RFC3339Nano),
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		lgr.Logger.Error(
			"failed to marshal detection entry",
			slog.Any("error", err),
		)
		return
	}

	if _, err := w.Write(append(jsonData, '\n')); err != nil {
		lgr.Logger.Error(
			"failed to write detection log",
			slog.Any("error", err),
		)
	}
}
