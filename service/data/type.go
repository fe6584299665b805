package data

import "github.com/khaledhikmat/vs-traffic/model"

// IService persists monitor telemetry: asynchronous errors, end-of-session
// stats, dispatcher snapshots and periodic count samples.
type IService interface {
	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
	NewDispatcherStats(stats model.DispatcherStats) error
	NewCountSample(sample model.CountSample) error
	RetrieveCountSamples(limit int) ([]model.CountSample, error)
	Close() error
}

// ErrorRecord is the persisted shape of an error reported on the error stream.
type ErrorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func toErrorRecord(err interface{}, now int64) ErrorRecord {
	// Determine if the error is custom
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		customErr.Processor = "N/A"
		customErr.Inner = e
		customErr.Message = e.Error()
		customErr.StackTrace = "N/A"
	default:
		customErr.Processor = "N/A"
		customErr.Message = "unknown error value"
		customErr.StackTrace = "N/A"
		customErr.Misc = map[string]interface{}{"value": e}
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}

	return ErrorRecord{
		Timestamp:  now,
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}
}
