package capture

import (
	"errors"
	"fmt"

	"github.com/khaledhikmat/vs-traffic/model"
)

// Frame is one captured image. Render draws the given detections on a copy
// and returns it JPEG-encoded; Encode returns the unannotated frame.
type Frame interface {
	Size() (int, int)
	Render(detections []model.Detection) ([]byte, error)
	Encode() ([]byte, error)
	Close() error
}

// Source is an open capture handle. It is used from a single goroutine.
type Source interface {
	Read() (Frame, error)
	Close() error
}

type IService interface {
	Open(target model.Target) (Source, error)
}

var (
	ErrEndOfStream = errors.New("end of stream")
	ErrReadFailed  = errors.New("unable to capture video frame")
)

type OpenError struct {
	Target model.Target
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("unable to open %s: %v", e.Target, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
