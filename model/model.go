package model

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

// Mode selects which recognition endpoint a session uses.
type Mode string

const (
	ModeVehicle Mode = "vehicle"
	ModeCrowd   Mode = "crowd"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeVehicle, ModeCrowd:
		return Mode(s), nil
	case "":
		return ModeVehicle, nil
	}
	return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeVehicle, ModeCrowd)
}

type TargetKind int

const (
	TargetDevice TargetKind = iota
	TargetFile
)

// Target identifies a capture source: a device index or a video file path.
type Target struct {
	Kind   TargetKind `json:"kind"`
	Device int        `json:"device"`
	Path   string     `json:"path,omitempty"`
}

func LiveTarget(device int) Target {
	return Target{Kind: TargetDevice, Device: device}
}

func FileTarget(path string) Target {
	return Target{Kind: TargetFile, Path: path}
}

func (t Target) String() string {
	if t.Kind == TargetFile {
		return "file:" + t.Path
	}
	return "device:" + strconv.Itoa(t.Device)
}

// State is the lifecycle of a monitor session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type DetectionKind string

const (
	DetectionVehicle DetectionKind = "vehicle"
	DetectionCrowd   DetectionKind = "crowd"
)

// Detection is either a vehicle with a bounding box or a crowd count.
// Crowd detections carry a zero-size box.
type Detection struct {
	Kind  DetectionKind `json:"kind"`
	Type  string        `json:"type,omitempty"`
	Box   Box           `json:"box"`
	Count int           `json:"count,omitempty"`
}

func VehicleDetection(vehicleType string, box Box) Detection {
	return Detection{Kind: DetectionVehicle, Type: vehicleType, Box: box}
}

func CrowdDetection(count int) Detection {
	return Detection{Kind: DetectionCrowd, Count: count}
}

// Label is the text drawn next to the detection.
func (d Detection) Label() string {
	if d.Kind == DetectionCrowd {
		return strconv.Itoa(d.Count)
	}
	return d.Type
}

// RenderedFrame is an annotated frame handed to the presentation sinks.
type RenderedFrame struct {
	SessionID string    `json:"sessionId"`
	Sequence  int64     `json:"sequence"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	JPEG      []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionStats struct {
	ID            string `json:"id"`
	Mode          Mode   `json:"mode"`
	Target        string `json:"target"`
	Ticks         int64  `json:"ticks"`
	Frames        int64  `json:"frames"`
	CaptureErrors int64  `json:"captureErrors"`
	Dispatched    int64  `json:"dispatched"`
	Applied       int64  `json:"applied"`
	Failures      int64  `json:"failures"`
	Stale         int64  `json:"stale"`
	Uptime        int64  `json:"uptime"`
	Timestamp     int64  `json:"timestamp"`
}

type DispatcherStats struct {
	Session      string  `json:"session"`
	Submitted    int64   `json:"submitted"`
	Completed    int64   `json:"completed"`
	Failed       int64   `json:"failed"`
	Abandoned    int64   `json:"abandoned"`
	Dropped      int64   `json:"dropped"`
	InFlight     int64   `json:"inFlight"`
	PeakInFlight int64   `json:"peakInFlight"`
	AvgLatency   float64 `json:"avgLatency"`
	Timestamp    int64   `json:"timestamp"`
}

type CountSample struct {
	Session   string `json:"session"`
	Mode      Mode   `json:"mode"`
	Count     int    `json:"count"`
	Timestamp int64  `json:"timestamp"`
}

// MonitorStatus is a point-in-time view of the monitor for status endpoints.
type MonitorStatus struct {
	SessionID     string          `json:"sessionId"`
	State         string          `json:"state"`
	Mode          Mode            `json:"mode"`
	Target        string          `json:"target"`
	Ticks         int64           `json:"ticks"`
	Frames        int64           `json:"frames"`
	CaptureErrors int64           `json:"captureErrors"`
	Applied       int64           `json:"applied"`
	Failures      int64           `json:"failures"`
	Stale         int64           `json:"stale"`
	LastCount     int             `json:"lastCount"`
	LastResultAt  int64           `json:"lastResultAt"`
	Detections    []Detection     `json:"detections"`
	Dispatcher    DispatcherStats `json:"dispatcher"`
}
