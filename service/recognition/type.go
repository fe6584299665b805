package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/khaledhikmat/vs-traffic/model"
)

// Result is a parsed vendor response.
type Result struct {
	Mode       model.Mode        `json:"mode"`
	Detections []model.Detection `json:"detections"`
	Count      int               `json:"count"`
	StatusCode int               `json:"statusCode"`
	Body       []byte            `json:"-"`
}

// IService classifies one still JPEG image. Calls are synchronous and never
// retried.
type IService interface {
	Classify(ctx context.Context, image []byte, mode model.Mode) (Result, error)
}

// ErrEmptyResult is returned for a 200 response that carries neither
// vehicle_info nor person_num.
var ErrEmptyResult = errors.New("recognition returned an empty result")

// TransportError wraps network failures and client timeouts.
type TransportError struct {
	Mode model.Mode
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s recognition transport failure: %v", e.Mode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// VendorError is a non-200 response, a malformed body or a body carrying a
// vendor error code.
type VendorError struct {
	Mode       model.Mode
	StatusCode int
	Code       int64
	Message    string
	Body       string
}

func (e *VendorError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s recognition vendor failure: status %d, code %d: %s", e.Mode, e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s recognition vendor failure: status %d: %s", e.Mode, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s recognition vendor failure: status %d, body %q", e.Mode, e.StatusCode, e.Body)
}
