package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/khaledhikmat/vs-traffic/model"
)

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAnnotations()
	a.Replace(1, []model.Detection{model.VehicleDetection("car", model.Box{Left: 1})}, 1, false)

	snap := a.Snapshot()
	snap[0].Type = "mutated"
	assert.Equal(t, "car", a.Snapshot()[0].Type)

	a.Replace(2, []model.Detection{}, 0, false)
	assert.Equal(t, "mutated", snap[0].Type)
	assert.Empty(t, a.Snapshot())
	assert.Equal(t, 0, a.LastCount())
}

func TestReplaceLastCompletedWins(t *testing.T) {
	a := NewAnnotations()

	assert.True(t, a.Replace(2, []model.Detection{model.CrowdDetection(7)}, 7, false))
	assert.True(t, a.Replace(1, []model.Detection{model.CrowdDetection(3)}, 3, false))

	assert.Equal(t, 3, a.LastCount())
	assert.Equal(t, uint64(2), a.LastSeq())
}

func TestReplaceDropsStale(t *testing.T) {
	a := NewAnnotations()

	assert.True(t, a.Replace(2, []model.Detection{model.CrowdDetection(7)}, 7, true))
	assert.False(t, a.Replace(1, []model.Detection{model.CrowdDetection(3)}, 3, true))

	assert.Equal(t, 7, a.LastCount())
	assert.Equal(t, []model.Detection{model.CrowdDetection(7)}, a.Snapshot())
}

func TestReplaceRecordsUpdateTime(t *testing.T) {
	a := NewAnnotations()
	assert.True(t, a.Updated().IsZero())

	before := time.Now()
	a.Replace(2, []model.Detection{model.CrowdDetection(4)}, 4, true)
	updated := a.Updated()
	assert.False(t, updated.Before(before))

	a.Replace(1, []model.Detection{model.CrowdDetection(1)}, 1, true)
	assert.Equal(t, updated, a.Updated())
}
