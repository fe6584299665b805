package presenter

import (
	"sync"
	"time"
)

type TrendPoint struct {
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"`
}

// Trend keeps the latest reported count and a bounded series of periodic
// samples of it, oldest first.
type Trend struct {
	mu     sync.Mutex
	max    int
	latest int
	points []TrendPoint
}

func NewTrend(max int) *Trend {
	if max < 1 {
		max = 1
	}
	return &Trend{
		max:    max,
		points: make([]TrendPoint, 0, max),
	}
}

func (t *Trend) Record(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = count
}

// Sample appends the latest count to the series and evicts the oldest point
// once the series is full.
func (t *Trend) Sample(at time.Time) TrendPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := TrendPoint{Count: t.latest, Timestamp: at.Unix()}
	if len(t.points) == t.max {
		copy(t.points, t.points[1:])
		t.points = t.points[:t.max-1]
	}
	t.points = append(t.points, p)
	return p
}

func (t *Trend) Points() []TrendPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TrendPoint(nil), t.points...)
}

func (t *Trend) Latest() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}
