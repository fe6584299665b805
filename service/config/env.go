package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NewEnvVars starts from Defaults, overlays the optional YAML file at path
// and finally applies environment variables.
func NewEnvVars(path string) (IService, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(&s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return New(s), nil
}

// LoadSettings resolves settings the way NewEnvVars does but leaves
// validation to the caller so command line flags can be applied first.
func LoadSettings(path string) (Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	s.ModeMaxShutdownTime = getEnvAsInt("MODE_MAX_SHUTDOWN_TIME", s.ModeMaxShutdownTime)
	s.StatsPeriodicTimeout = getEnvAsInt("STATS_PERIODIC_TIMEOUT", s.StatsPeriodicTimeout)
	s.DataFolder = getEnv("DATA_DIR", s.DataFolder)
	s.DataStore = getEnv("DATA_STORE", s.DataStore)
	s.SqlitePath = getEnv("SQLITE_PATH", s.SqlitePath)
	s.LogFolder = getEnv("LOG_DIR", s.LogFolder)
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)
	s.ListenAddr = getEnv("LISTEN_ADDR", s.ListenAddr)

	s.DefaultMode = getEnv("MONITOR_MODE", s.DefaultMode)
	s.DeviceIndex = getEnvAsInt("CAMERA_INDEX", s.DeviceIndex)
	s.TickIntervalMs = getEnvAsInt("TICK_INTERVAL_MS", s.TickIntervalMs)
	s.SampleEvery = getEnvAsInt("SAMPLE_EVERY", s.SampleEvery)
	s.JPEGQuality = getEnvAsInt("JPEG_QUALITY", s.JPEGQuality)
	s.MaxInFlight = getEnvAsInt("MAX_IN_FLIGHT", s.MaxInFlight)
	s.DropStaleResults = getEnvAsBool("DROP_STALE_RESULTS", s.DropStaleResults)

	s.RequestTimeoutS = getEnvAsInt("REQUEST_TIMEOUT_S", s.RequestTimeoutS)
	s.VehicleDetectURL = getEnv("VEHICLE_DETECT_URL", s.VehicleDetectURL)
	s.CrowdCountURL = getEnv("CROWD_COUNT_URL", s.CrowdCountURL)
	s.VehicleAccessToken = getEnv("VEHICLE_ACCESS_TOKEN", s.VehicleAccessToken)
	s.CrowdAccessToken = getEnv("CROWD_ACCESS_TOKEN", s.CrowdAccessToken)

	s.TrendLength = getEnvAsInt("TREND_LENGTH", s.TrendLength)
	s.TrendPeriodMs = getEnvAsInt("TREND_PERIOD_MS", s.TrendPeriodMs)
	s.FrameBroadcastEvery = getEnvAsInt("FRAME_BROADCAST_EVERY", s.FrameBroadcastEvery)

	s.SyntheticWidth = getEnvAsInt("SYNTHETIC_WIDTH", s.SyntheticWidth)
	s.SyntheticHeight = getEnvAsInt("SYNTHETIC_HEIGHT", s.SyntheticHeight)
	s.SyntheticFileFrames = getEnvAsInt("SYNTHETIC_FILE_FRAMES", s.SyntheticFileFrames)

	return s, nil
}

// Validate rejects settings the monitor cannot run with.
func Validate(s *Settings) error {
	if s.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be > 0")
	}
	if s.SampleEvery <= 0 {
		return fmt.Errorf("sample_every must be > 0")
	}
	if s.MaxInFlight <= 0 {
		return fmt.Errorf("max_in_flight must be > 0")
	}
	if s.RequestTimeoutS <= 0 {
		return fmt.Errorf("request_timeout_s must be > 0")
	}
	if s.JPEGQuality <= 0 || s.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be within 1..100")
	}
	if s.DataStore != "files" && s.DataStore != "sqlite" {
		return fmt.Errorf("data_store must be files or sqlite, got %q", s.DataStore)
	}
	if s.TrendLength <= 0 {
		s.TrendLength = 20
	}
	if s.TrendPeriodMs <= 0 {
		s.TrendPeriodMs = 1000
	}
	if s.StatsPeriodicTimeout <= 0 {
		s.StatsPeriodicTimeout = 30
	}
	if s.FrameBroadcastEvery <= 0 {
		s.FrameBroadcastEvery = 1
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
