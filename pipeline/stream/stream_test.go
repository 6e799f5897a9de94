package stream

import (
	"context"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/proctor-go/proctor"
)

// slowDetector sees two people in every frame and takes longer than the
// frame interval to say so.
type slowDetector struct {
	delay time.Duration
	calls atomic.Int32
}

func (d *slowDetector) Detect(ctx context.Context, _ proctor.Frame) ([]proctor.FaceDetection, error) {
	d.calls.Add(1)
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []proctor.FaceDetection{
		{Box: image.Rect(0, 0, 100, 100)},
		{Box: image.Rect(300, 0, 400, 100)},
	}, nil
}

func testFrame(i int) proctor.Frame {
	return proctor.Frame{
		Data:      []byte{0xff, 0xd8},
		Width:     640,
		Height:    480,
		Timestamp: time.Unix(int64(i), 0),
	}
}

// A recording ends while frames are still queued behind a slow detector.
// Ending the session must not cost the evidence in those frames.
func TestReplayJudgesQueuedFramesAfterEndOfVideo(t *testing.T) {
	const frames = 20

	cfg := proctor.DefaultConfig()
	cfg.PersonDebounceCycles = 15
	det := &slowDetector{delay: 2 * time.Millisecond}
	events := proctor.NewEventLog()
	engine, err := proctor.NewEngine(cfg, det, events, nil)
	require.NoError(t, err)

	canx := context.Background()
	sessionCtx, sessionCancel := context.WithCancel(canx)

	in := make(chan proctor.Frame, 100)
	var processed, discarded int
	done := Workers(1, func(_ int) {
		processed, discarded = Consume(canx, in, func(f proctor.Frame) {
			_, err := engine.Evaluate(canx, f)
			assert.NoError(t, err)
		}, func(proctor.Frame) {})
	})

	// The framer: read everything, close its outputs, end the session
	for i := 0; i < frames; i++ {
		in <- testFrame(i)
	}
	CloseAll([]chan proctor.Frame{in})
	sessionCancel()
	require.Error(t, sessionCtx.Err())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("detector never finished the queued frames")
	}

	assert.Equal(t, frames, processed)
	assert.Zero(t, discarded)
	assert.EqualValues(t, frames, det.calls.Load())

	counts := proctor.CountByCategory(events.Drain())
	assert.Equal(t, frames-cfg.PersonDebounceCycles+1, counts[proctor.MultiplePersons])
}

func TestConsumeDiscardsOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan int, 10)
	for i := 0; i < 5; i++ {
		in <- i
	}
	close(in)

	var seen, dropped []int
	processed, discarded := Consume(ctx, in, func(i int) {
		seen = append(seen, i)
		if i == 1 {
			cancel()
		}
	}, func(i int) {
		dropped = append(dropped, i)
	})

	assert.Equal(t, 2, processed)
	assert.Equal(t, 3, discarded)
	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, []int{2, 3, 4}, dropped)
}

// The sender owns the close, so a slow sender that wakes after
// cancellation can never hit a channel closed under it.
func TestSenderClosesAfterLateSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chans := []chan int{make(chan int, 1), make(chan int, 1)}
	var dropped atomic.Int32
	dones := make([]<-chan struct{}, len(chans))
	for i, ch := range chans {
		ch := ch
		dones[i] = Workers(1, func(_ int) {
			Consume(ctx, ch, func(int) {}, func(int) { dropped.Add(1) })
		})
	}

	time.Sleep(10 * time.Millisecond)
	for _, ch := range chans {
		ch <- 1
	}
	CloseAll(chans)

	for _, done := range dones {
		<-done
	}
	assert.EqualValues(t, 2, dropped.Load())
}

func TestWorkersDoneAfterAll(t *testing.T) {
	var ran atomic.Int32
	release := make(chan struct{})
	done := Workers(3, func(_ int) {
		<-release
		ran.Add(1)
	})

	select {
	case <-done:
		t.Fatal("done before the workers returned")
	case <-time.After(10 * time.Millisecond):
	}

	close(release)
	<-done
	assert.EqualValues(t, 3, ran.Load())

	<-Workers(0, func(_ int) { ran.Add(1) })
	assert.EqualValues(t, 4, ran.Load())
}
