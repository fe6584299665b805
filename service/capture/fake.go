package capture

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/khaledhikmat/vs-traffic/model"
)

// Fake records every open and close in Events ("open:device:0",
// "close:file:a.mp4"). Each opened source yields FrameBudget frames (-1 for
// unlimited) and then either ErrEndOfStream or ErrReadFailed. Frames render
// to the JSON encoding of the detections they were asked to draw.
type Fake struct {
	mu          sync.Mutex
	FrameBudget int
	EndOfStream bool
	FailTargets map[string]bool
	events      []string
	sources     []*FakeSource
}

func NewFake() *Fake {
	return &Fake{
		FrameBudget: -1,
		FailTargets: map[string]bool{},
	}
}

func (f *Fake) Open(target model.Target) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailTargets[target.String()] {
		f.events = append(f.events, "fail:"+target.String())
		return nil, &OpenError{Target: target, Err: fmt.Errorf("fake open failure")}
	}

	f.events = append(f.events, "open:"+target.String())
	src := &FakeSource{
		owner:       f,
		target:      target,
		budget:      f.FrameBudget,
		endOfStream: f.EndOfStream,
	}
	f.sources = append(f.sources, src)
	return src, nil
}

func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *Fake) Sources() []*FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSource(nil), f.sources...)
}

type FakeSource struct {
	owner       *Fake
	target      model.Target
	budget      int
	endOfStream bool
	reads       int
	closes      int
}

func (s *FakeSource) Read() (Frame, error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()

	s.reads++
	if s.closes > 0 {
		return nil, ErrReadFailed
	}
	if s.budget == 0 {
		if s.endOfStream {
			return nil, ErrEndOfStream
		}
		return nil, ErrReadFailed
	}
	if s.budget > 0 {
		s.budget--
	}
	return &fakeFrame{seq: s.reads}, nil
}

func (s *FakeSource) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()

	s.closes++
	s.owner.events = append(s.owner.events, "close:"+s.target.String())
	return nil
}

// AddFrames extends the remaining frame budget.
func (s *FakeSource) AddFrames(n int) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.budget < 0 {
		return
	}
	s.budget += n
}

func (s *FakeSource) Closes() int {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return s.closes
}

func (s *FakeSource) Reads() int {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return s.reads
}

type fakeFrame struct {
	seq int
}

func (f *fakeFrame) Size() (int, int) {
	return 640, 480
}

func (f *fakeFrame) Render(detections []model.Detection) ([]byte, error) {
	if detections == nil {
		detections = []model.Detection{}
	}
	return json.Marshal(detections)
}

func (f *fakeFrame) Encode() ([]byte, error) {
	return []byte(fmt.Sprintf("frame-%d", f.seq)), nil
}

func (f *fakeFrame) Close() error {
	return nil
}
