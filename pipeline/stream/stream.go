// Package stream holds the channel plumbing shared by the framer and the
// streamers: the framer is the only sender on a streamer's input and the
// only one to close it, and streamers read until that close.
package stream

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Consume hands every item received on in to proc, in arrival order, until
// in is closed. Once ctx is cancelled the remaining items go to discard so
// the sender never blocks and nothing is leaked.
func Consume[T any](ctx context.Context, in <-chan T, proc func(T), discard func(T)) (processed, discarded int) {
	for item := range in {
		if ctx.Err() != nil {
			discard(item)
			discarded++
			continue
		}
		proc(item)
		processed++
	}
	return processed, discarded
}

// CloseAll closes the inputs once their sender is done with them.
func CloseAll[T any](chans []chan T) {
	for _, ch := range chans {
		close(ch)
	}
}

// Workers runs n copies of work and returns a channel closed once all of
// them have returned.
func Workers(n int, work func(worker int)) <-chan struct{} {
	if n < 1 {
		n = 1
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		worker := i
		g.Go(func() error {
			work(worker)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	return done
}
