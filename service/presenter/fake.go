package presenter

import (
	"sync"

	"github.com/khaledhikmat/vs-traffic/model"
)

// Recorder keeps every call it receives.
type Recorder struct {
	mu       sync.Mutex
	frames   []model.RenderedFrame
	statuses []string
	counts   []int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnFrame(frame model.RenderedFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *Recorder) OnStatusText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *Recorder) OnCount(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, count)
}

func (r *Recorder) Frames() []model.RenderedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RenderedFrame(nil), r.frames...)
}

func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *Recorder) Counts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.counts...)
}

// LastFrame returns the most recent frame and false when none arrived yet.
func (r *Recorder) LastFrame() (model.RenderedFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return model.RenderedFrame{}, false
	}
	return r.frames[len(r.frames)-1], true
}
