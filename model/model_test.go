package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"vehicle", ModeVehicle, false},
		{"crowd", ModeCrowd, false},
		{"", ModeVehicle, false},
		{"bikes", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "device:0", LiveTarget(0).String())
	assert.Equal(t, "file:/tmp/road.mp4", FileTarget("/tmp/road.mp4").String())
}

func TestDetectionLabel(t *testing.T) {
	assert.Equal(t, "car", VehicleDetection("car", Box{Left: 1}).Label())
	crowd := CrowdDetection(12)
	assert.Equal(t, "12", crowd.Label())
	assert.Equal(t, Box{}, crowd.Box)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestCustomErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := GenError("monitor_session", inner, nil, "tick %d failed", 3)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "monitor_session: tick 3 failed: boom", err.Error())
	assert.NotEmpty(t, err.StackTrace)
}
