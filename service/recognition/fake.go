package recognition

import (
	"context"
	"sync"

	"github.com/khaledhikmat/vs-traffic/model"
)

// FakeReply scripts one Classify call. Body is parsed as a 200 response
// unless Err is set. When Wait is non-nil the call blocks until it is closed
// or the call context ends.
type FakeReply struct {
	Body string
	Err  error
	Wait <-chan struct{}
}

// Fake replays scripted replies. Replies are consumed in call order and the
// last one repeats; ByImage overrides the script for a given image payload.
type Fake struct {
	mu       sync.Mutex
	script   []FakeReply
	ByImage  map[string]FakeReply
	calls    int
	inFlight int
	peak     int
	images   [][]byte
}

func NewFake(replies ...FakeReply) *Fake {
	return &Fake{
		script:  replies,
		ByImage: map[string]FakeReply{},
	}
}

func (f *Fake) Classify(ctx context.Context, image []byte, mode model.Mode) (Result, error) {
	f.mu.Lock()
	reply := f.next(image)
	f.calls++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.images = append(f.images, append([]byte(nil), image...))
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if reply.Wait != nil {
		select {
		case <-reply.Wait:
		case <-ctx.Done():
			return Result{}, &TransportError{Mode: mode, Err: ctx.Err()}
		}
	}

	if reply.Err != nil {
		return Result{}, reply.Err
	}
	if reply.Body == "" {
		return Result{}, ErrEmptyResult
	}
	return Parse(mode, 200, []byte(reply.Body))
}

func (f *Fake) next(image []byte) FakeReply {
	if reply, ok := f.ByImage[string(image)]; ok {
		return reply
	}
	if len(f.script) == 0 {
		return FakeReply{}
	}
	if f.calls < len(f.script) {
		return f.script[f.calls]
	}
	return f.script[len(f.script)-1]
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *Fake) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func (f *Fake) Images() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.images...)
}
