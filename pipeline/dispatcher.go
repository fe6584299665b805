package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

// Completion is the outcome of one recognition call.
type Completion struct {
	Seq       uint64
	Mode      model.Mode
	Result    recognition.Result
	Err       error
	Submitted time.Time
	Completed time.Time
}

func (c Completion) Latency() time.Duration {
	return c.Completed.Sub(c.Submitted)
}

// Dispatcher runs recognition calls in the background with at most
// maxInFlight calls executing at once. Submit never blocks; completions are
// delivered on Results in completion order.
type Dispatcher struct {
	ctx        context.Context
	cancel     context.CancelFunc
	recognizer recognition.IService
	sem        *semaphore.Weighted
	results    chan Completion
	metrics    *metrics.Metrics
	seq        atomic.Uint64
	wg         sync.WaitGroup

	mu           sync.Mutex
	submitted    int64
	completed    int64
	failed       int64
	abandoned    int64
	dropped      int64
	inFlight     int64
	peakInFlight int64
	totalLatency time.Duration
}

func NewDispatcher(ctx context.Context, recognizer recognition.IService, maxInFlight int, m *metrics.Metrics) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if m == nil {
		m = metrics.New()
	}

	dctx, cancel := context.WithCancel(ctx)
	return &Dispatcher{
		ctx:        dctx,
		cancel:     cancel,
		recognizer: recognizer,
		sem:        semaphore.NewWeighted(int64(maxInFlight)),
		results:    make(chan Completion, maxInFlight),
		metrics:    m,
	}
}

// Submit queues image for recognition and returns its sequence number.
// Sequence numbers increase in submission order.
func (d *Dispatcher) Submit(image []byte, mode model.Mode) uint64 {
	seq := d.seq.Add(1)
	submitted := time.Now()

	d.mu.Lock()
	d.submitted++
	d.mu.Unlock()
	d.metrics.Dispatched.Add(1)

	d.wg.Add(1)
	go d.run(seq, image, mode, submitted)

	return seq
}

func (d *Dispatcher) run(seq uint64, image []byte, mode model.Mode, submitted time.Time) {
	defer d.wg.Done()

	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		d.mu.Lock()
		d.abandoned++
		d.mu.Unlock()
		d.metrics.Abandoned.Add(1)
		lgr.Logger.Debug(
			"recognition submission abandoned",
			slog.Uint64("seq", seq),
		)
		return
	}

	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.peakInFlight {
		d.peakInFlight = d.inFlight
	}
	d.mu.Unlock()
	d.metrics.InFlight.Add(1)

	// The call outlives a stopped session; its result is dropped below.
	result, err := d.recognizer.Classify(context.WithoutCancel(d.ctx), image, mode)
	completion := Completion{
		Seq:       seq,
		Mode:      mode,
		Result:    result,
		Err:       err,
		Submitted: submitted,
		Completed: time.Now(),
	}

	d.mu.Lock()
	d.inFlight--
	d.completed++
	if err != nil {
		d.failed++
	}
	d.totalLatency += completion.Latency()
	d.mu.Unlock()
	d.metrics.InFlight.Add(-1)

	// The slot is held until the completion is posted so completions enter
	// results in the order calls finished. results has one slot per permit.
	defer d.sem.Release(1)

	if d.ctx.Err() != nil {
		d.drop(seq)
		return
	}

	select {
	case d.results <- completion:
	case <-d.ctx.Done():
		d.drop(seq)
	}
}

func (d *Dispatcher) drop(seq uint64) {
	d.mu.Lock()
	d.dropped++
	d.mu.Unlock()
	d.metrics.Dropped.Add(1)
	lgr.Logger.Debug(
		"recognition completion dropped after close",
		slog.Uint64("seq", seq),
	)
}

// Results has a single consumer: the session loop.
func (d *Dispatcher) Results() <-chan Completion {
	return d.results
}

// Close abandons queued submissions. Calls already executing finish in the
// background and their completions are dropped. Close does not wait.
func (d *Dispatcher) Close() {
	d.cancel()
}

// Wait blocks until every submitted call has finished or been abandoned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Stats() model.DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var avg float64
	if d.completed > 0 {
		avg = d.totalLatency.Seconds() / float64(d.completed)
	}

	return model.DispatcherStats{
		Submitted:    d.submitted,
		Completed:    d.completed,
		Failed:       d.failed,
		Abandoned:    d.abandoned,
		Dropped:      d.dropped,
		InFlight:     d.inFlight,
		PeakInFlight: d.peakInFlight,
		AvgLatency:   avg,
		Timestamp:    time.Now().Unix(),
	}
}
