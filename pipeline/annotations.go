package pipeline

import (
	"sync"
	"time"

	"github.com/khaledhikmat/vs-traffic/model"
)

// Annotations is the detection list drawn on every frame and the last
// reported count. It is owned by one session and shared between the frame
// loop and status readers.
type Annotations struct {
	mu         sync.RWMutex
	detections []model.Detection
	count      int
	seq        uint64
	updated    time.Time
}

func NewAnnotations() *Annotations {
	return &Annotations{
		detections: []model.Detection{},
	}
}

// Snapshot returns a copy that stays valid after later replacements.
func (a *Annotations) Snapshot() []model.Detection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.Detection(nil), a.detections...)
}

func (a *Annotations) LastCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

func (a *Annotations) LastSeq() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.seq
}

func (a *Annotations) Updated() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updated
}

// Replace swaps detections and count together. With dropStale set, a result
// from a sequence older than the one already applied is rejected.
func (a *Annotations) Replace(seq uint64, detections []model.Detection, count int, dropStale bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if dropStale && seq < a.seq {
		return false
	}

	a.detections = append([]model.Detection{}, detections...)
	a.count = count
	if seq > a.seq {
		a.seq = seq
	}
	a.updated = time.Now()
	return true
}
