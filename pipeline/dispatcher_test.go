package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

func receive(t *testing.T, d *Dispatcher) Completion {
	t.Helper()
	select {
	case c := <-d.Results():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no completion received")
	}
	return Completion{}
}

func TestDispatcherCapsInFlight(t *testing.T) {
	gate := make(chan struct{})
	fake := recognition.NewFake(recognition.FakeReply{Body: `{"person_num":1}`, Wait: gate})
	d := NewDispatcher(context.Background(), fake, 2, metrics.New())
	defer d.Close()

	seqs := []uint64{}
	for i := 0; i < 5; i++ {
		seqs = append(seqs, d.Submit([]byte("img"), model.ModeCrowd))
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)

	require.Eventually(t, func() bool { return fake.InFlight() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, fake.InFlight())
	assert.Equal(t, 2, fake.Calls())

	close(gate)
	for i := 0; i < 5; i++ {
		c := receive(t, d)
		require.NoError(t, c.Err)
		assert.Equal(t, 1, c.Result.Count)
	}

	d.Wait()
	assert.Equal(t, 2, fake.Peak())
	stats := d.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Completed)
	assert.Equal(t, int64(2), stats.PeakInFlight)
	assert.Equal(t, int64(0), stats.InFlight)
}

func TestDispatcherDeliversInCompletionOrder(t *testing.T) {
	for _, dropStale := range []bool{false, true} {
		gate := make(chan struct{})
		fake := recognition.NewFake()
		fake.ByImage["slow"] = recognition.FakeReply{Body: `{"person_num":3}`, Wait: gate}
		fake.ByImage["fast"] = recognition.FakeReply{Body: `{"person_num":7}`}

		d := NewDispatcher(context.Background(), fake, 2, metrics.New())
		annotations := NewAnnotations()

		slow := d.Submit([]byte("slow"), model.ModeCrowd)
		fast := d.Submit([]byte("fast"), model.ModeCrowd)

		first := receive(t, d)
		assert.Equal(t, fast, first.Seq)
		assert.True(t, annotations.Replace(first.Seq, first.Result.Detections, first.Result.Count, dropStale))

		close(gate)
		second := receive(t, d)
		assert.Equal(t, slow, second.Seq)
		applied := annotations.Replace(second.Seq, second.Result.Detections, second.Result.Count, dropStale)

		if dropStale {
			assert.False(t, applied)
			assert.Equal(t, 7, annotations.LastCount())
		} else {
			assert.True(t, applied)
			assert.Equal(t, 3, annotations.LastCount())
		}
		d.Close()
	}
}

func TestDispatcherCloseAbandonsQueuedAndDropsLate(t *testing.T) {
	gate := make(chan struct{})
	fake := recognition.NewFake(recognition.FakeReply{Body: `{"person_num":1}`, Wait: gate})
	m := metrics.New()
	d := NewDispatcher(context.Background(), fake, 1, m)

	d.Submit([]byte("a"), model.ModeCrowd)
	require.Eventually(t, func() bool { return fake.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)
	d.Submit([]byte("b"), model.ModeCrowd)
	d.Submit([]byte("c"), model.ModeCrowd)

	d.Close()
	close(gate)
	d.Wait()

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Abandoned)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, 1, fake.Calls())
	assert.Equal(t, uint64(2), m.Abandoned.Load())
	assert.Len(t, d.Results(), 0)
}

func TestDispatcherCallOutlivesClose(t *testing.T) {
	gate := make(chan struct{})
	fake := recognition.NewFake(recognition.FakeReply{Body: `{"person_num":1}`, Wait: gate})
	d := NewDispatcher(context.Background(), fake, 1, nil)

	d.Submit([]byte("a"), model.ModeCrowd)
	require.Eventually(t, func() bool { return fake.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	d.Close()
	time.Sleep(20 * time.Millisecond)
	// The vendor call is not cancelled by Close.
	assert.Equal(t, 1, fake.InFlight())

	close(gate)
	d.Wait()
	assert.Equal(t, int64(1), d.Stats().Completed)
	assert.Equal(t, int64(0), d.Stats().Failed)
}
