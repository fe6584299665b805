package config

import "time"

type IService interface {
	GetModeMaxShutdownTime() int
	GetStatsPeriodicTimeout() int
	GetDataFolder() string
	GetDataStore() string
	GetSqlitePath() string
	GetLogFolder() string
	GetLogLevel() string
	GetListenAddr() string

	GetDefaultMode() string
	GetDeviceIndex() int
	GetTickInterval() time.Duration
	GetSampleEvery() int
	GetJPEGQuality() int
	GetMaxInFlight() int
	GetDropStaleResults() bool

	GetRequestTimeout() time.Duration
	GetVehicleDetectURL() string
	GetCrowdCountURL() string
	GetVehicleAccessToken() string
	GetCrowdAccessToken() string

	GetTrendLength() int
	GetTrendPeriod() time.Duration
	GetFrameBroadcastEvery() int

	GetSyntheticWidth() int
	GetSyntheticHeight() int
	GetSyntheticFileFrames() int
}

// Settings is the flat configuration document. It maps one to one onto the
// YAML overlay file and the environment variables read by NewEnvVars.
type Settings struct {
	ModeMaxShutdownTime  int    `yaml:"mode_max_shutdown_time"`
	StatsPeriodicTimeout int    `yaml:"stats_periodic_timeout"`
	DataFolder           string `yaml:"data_folder"`
	DataStore            string `yaml:"data_store"`
	SqlitePath           string `yaml:"sqlite_path"`
	LogFolder            string `yaml:"log_folder"`
	LogLevel             string `yaml:"log_level"`
	ListenAddr           string `yaml:"listen_addr"`

	DefaultMode      string `yaml:"default_mode"`
	DeviceIndex      int    `yaml:"device_index"`
	TickIntervalMs   int    `yaml:"tick_interval_ms"`
	SampleEvery      int    `yaml:"sample_every"`
	JPEGQuality      int    `yaml:"jpeg_quality"`
	MaxInFlight      int    `yaml:"max_in_flight"`
	DropStaleResults bool   `yaml:"drop_stale_results"`

	RequestTimeoutS    int    `yaml:"request_timeout_s"`
	VehicleDetectURL   string `yaml:"vehicle_detect_url"`
	CrowdCountURL      string `yaml:"crowd_count_url"`
	VehicleAccessToken string `yaml:"vehicle_access_token"`
	CrowdAccessToken   string `yaml:"crowd_access_token"`

	TrendLength         int `yaml:"trend_length"`
	TrendPeriodMs       int `yaml:"trend_period_ms"`
	FrameBroadcastEvery int `yaml:"frame_broadcast_every"`

	SyntheticWidth      int `yaml:"synthetic_width"`
	SyntheticHeight     int `yaml:"synthetic_height"`
	SyntheticFileFrames int `yaml:"synthetic_file_frames"`
}
