package config

import "time"

type hardcodedService struct {
	s Settings
}

// Defaults mirrors the observed desktop behaviour: a 30ms frame timer,
// one recognition call every 15th frame, two calls in flight at most and a
// 30s client timeout.
func Defaults() Settings {
	return Settings{
		ModeMaxShutdownTime:  5,
		StatsPeriodicTimeout: 30,
		DataFolder:           "./data",
		DataStore:            "files",
		SqlitePath:           "./data/traffic.db",
		LogFolder:            "./logs",
		LogLevel:             "info",
		ListenAddr:           ":8080",

		DefaultMode:      "vehicle",
		DeviceIndex:      0,
		TickIntervalMs:   30,
		SampleEvery:      15,
		JPEGQuality:      90,
		MaxInFlight:      2,
		DropStaleResults: false,

		RequestTimeoutS:  30,
		VehicleDetectURL: "https://aip.baidubce.com/rest/2.0/image-classify/v1/vehicle_detect",
		CrowdCountURL:    "https://aip.baidubce.com/rest/2.0/image-classify/v1/body_num",

		TrendLength:         20,
		TrendPeriodMs:       1000,
		FrameBroadcastEvery: 3,

		SyntheticWidth:      640,
		SyntheticHeight:     480,
		SyntheticFileFrames: 300,
	}
}

func NewHardCoded() IService {
	return New(Defaults())
}

// New serves the given settings as-is. Zero values are not defaulted.
func New(s Settings) IService {
	return &hardcodedService{s: s}
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return svc.s.ModeMaxShutdownTime
}

func (svc *hardcodedService) GetStatsPeriodicTimeout() int {
	return svc.s.StatsPeriodicTimeout
}

func (svc *hardcodedService) GetDataFolder() string {
	return svc.s.DataFolder
}

func (svc *hardcodedService) GetDataStore() string {
	return svc.s.DataStore
}

func (svc *hardcodedService) GetSqlitePath() string {
	return svc.s.SqlitePath
}

func (svc *hardcodedService) GetLogFolder() string {
	return svc.s.LogFolder
}

func (svc *hardcodedService) GetLogLevel() string {
	return svc.s.LogLevel
}

func (svc *hardcodedService) GetListenAddr() string {
	return svc.s.ListenAddr
}

func (svc *hardcodedService) GetDefaultMode() string {
	return svc.s.DefaultMode
}

func (svc *hardcodedService) GetDeviceIndex() int {
	return svc.s.DeviceIndex
}

func (svc *hardcodedService) GetTickInterval() time.Duration {
	return time.Duration(svc.s.TickIntervalMs) * time.Millisecond
}

func (svc *hardcodedService) GetSampleEvery() int {
	return svc.s.SampleEvery
}

func (svc *hardcodedService) GetJPEGQuality() int {
	return svc.s.JPEGQuality
}

func (svc *hardcodedService) GetMaxInFlight() int {
	return svc.s.MaxInFlight
}

func (svc *hardcodedService) GetDropStaleResults() bool {
	return svc.s.DropStaleResults
}

func (svc *hardcodedService) GetRequestTimeout() time.Duration {
	return time.Duration(svc.s.RequestTimeoutS) * time.Second
}

func (svc *hardcodedService) GetVehicleDetectURL() string {
	return svc.s.VehicleDetectURL
}

func (svc *hardcodedService) GetCrowdCountURL() string {
	return svc.s.CrowdCountURL
}

func (svc *hardcodedService) GetVehicleAccessToken() string {
	return svc.s.VehicleAccessToken
}

func (svc *hardcodedService) GetCrowdAccessToken() string {
	return svc.s.CrowdAccessToken
}

func (svc *hardcodedService) GetTrendLength() int {
	return svc.s.TrendLength
}

func (svc *hardcodedService) GetTrendPeriod() time.Duration {
	return time.Duration(svc.s.TrendPeriodMs) * time.Millisecond
}

func (svc *hardcodedService) GetFrameBroadcastEvery() int {
	return svc.s.FrameBroadcastEvery
}

func (svc *hardcodedService) GetSyntheticWidth() int {
	return svc.s.SyntheticWidth
}

func (svc *hardcodedService) GetSyntheticHeight() int {
	return svc.s.SyntheticHeight
}

func (svc *hardcodedService) GetSyntheticFileFrames() int {
	return svc.s.SyntheticFileFrames
}
