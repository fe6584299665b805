package pipeline

import (
	"github.com/khaledhikmat/vs-traffic/service/capture"
	"github.com/khaledhikmat/vs-traffic/service/config"
	"github.com/khaledhikmat/vs-traffic/service/data"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

// ServicesFactory carries the services a monitor session depends on.
type ServicesFactory struct {
	CfgSvc         config.IService
	DataSvc        data.IService
	CaptureSvc     capture.IService
	RecognitionSvc recognition.IService
	Metrics        *metrics.Metrics
}
