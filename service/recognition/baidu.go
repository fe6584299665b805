package recognition

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/config"
)

const tracerName = "github.com/khaledhikmat/vs-traffic/service/recognition"

type baiduService struct {
	CfgSvc config.IService
	client *http.Client
	tracer trace.Tracer
}

// NewBaidu calls the Baidu image-classify endpoints: vehicle_detect for
// vehicle mode and body_num for crowd mode.
func NewBaidu(cfgSvc config.IService) IService {
	return &baiduService{
		CfgSvc: cfgSvc,
		client: &http.Client{Timeout: cfgSvc.GetRequestTimeout()},
		tracer: otel.Tracer(tracerName),
	}
}

func (svc *baiduService) Classify(ctx context.Context, image []byte, mode model.Mode) (Result, error) {
	ctx, span := svc.tracer.Start(ctx, "recognition.classify", trace.WithAttributes(
		attribute.String("recognition.mode", string(mode)),
		attribute.Int("recognition.image_bytes", len(image)),
	))
	defer span.End()

	result, err := svc.classify(ctx, image, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", result.StatusCode),
		attribute.Int("recognition.count", result.Count),
	)
	return result, nil
}

func (svc *baiduService) classify(ctx context.Context, image []byte, mode model.Mode) (Result, error) {
	endpoint, token := svc.endpoint(mode)

	requestURL, err := url.Parse(endpoint)
	if err != nil {
		return Result{}, &TransportError{Mode: mode, Err: fmt.Errorf("bad endpoint %q: %w", endpoint, err)}
	}
	query := requestURL.Query()
	query.Set("access_token", token)
	requestURL.RawQuery = query.Encode()

	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, &TransportError{Mode: mode, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := svc.client.Do(req)
	if err != nil {
		return Result{}, &TransportError{Mode: mode, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &TransportError{Mode: mode, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, &VendorError{
			Mode:       mode,
			StatusCode: resp.StatusCode,
			Body:       truncate(body),
		}
	}

	return Parse(mode, resp.StatusCode, body)
}

func (svc *baiduService) endpoint(mode model.Mode) (string, string) {
	if mode == model.ModeCrowd {
		return svc.CfgSvc.GetCrowdCountURL(), svc.CfgSvc.GetCrowdAccessToken()
	}
	return svc.CfgSvc.GetVehicleDetectURL(), svc.CfgSvc.GetVehicleAccessToken()
}
