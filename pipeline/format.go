package pipeline

import (
	"fmt"
	"strings"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

const (
	textCameraOpenFailed = "unable to open camera"
	textFileOpenFailed   = "unable to open video file"
	textCaptureFailed    = "unable to capture video frame"
)

func openFailedText(target model.Target) string {
	if target.Kind == model.TargetFile {
		return textFileOpenFailed
	}
	return textCameraOpenFailed
}

func resultText(mode model.Mode, result recognition.Result) string {
	if mode == model.ModeCrowd {
		return fmt.Sprintf("crowd counting result: %d persons", result.Count)
	}

	var b strings.Builder
	b.WriteString("vehicle detection result:\n")
	for _, d := range result.Detections {
		fmt.Fprintf(&b, "type: %s, position: top-left (%d, %d), width: %d, height: %d\n",
			d.Type, d.Box.Left, d.Box.Top, d.Box.Width, d.Box.Height)
	}
	return b.String()
}

func failureText(mode model.Mode, err error) string {
	what := "vehicle detection"
	if mode == model.ModeCrowd {
		what = "crowd counting"
	}
	return fmt.Sprintf("%s request failed: %v", what, err)
}

func keepText(count int) string {
	return fmt.Sprintf("keeping last detection result: %d", count)
}
