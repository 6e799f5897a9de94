package status

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

const clientFrameBuffer = 2

// Board holds what the monitor pages show: the latest cycle result and a
// fanout of annotated JPEG frames.
type Board struct {
	latest atomic.Pointer[proctor.CycleResult]

	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	dropped uint64
}

func NewBoard() *Board {
	return &Board{
		clients: map[int]chan []byte{},
	}
}

// Publish replaces the latest cycle result. The faces are kept for the
// overlay and never serialised.
func (b *Board) Publish(res proctor.CycleResult) {
	b.latest.Store(&res)
}

// Latest returns the last published result, false before the first cycle.
func (b *Board) Latest() (proctor.CycleResult, bool) {
	res := b.latest.Load()
	if res == nil {
		return proctor.CycleResult{}, false
	}
	return *res, true
}

// Subscribe adds a frame client.
func (b *Board) Subscribe() (int, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan []byte, clientFrameBuffer)
	b.clients[id] = ch

	lgr.Logger.Debug("frame client subscribed",
		slog.Int("client", id),
		slog.Int("clients", len(b.clients)),
	)
	return id, ch
}

// Unsubscribe removes a frame client and closes its channel.
func (b *Board) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		lgr.Logger.Debug("frame client unsubscribed",
			slog.Int("client", id),
			slog.Int("clients", len(b.clients)),
		)
	}
}

// Clients is the number of subscribed frame clients. The overlay skips
// rendering when nobody watches.
func (b *Board) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// PublishFrame hands a JPEG to every client. Slow clients miss frames.
func (b *Board) PublishFrame(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- jpeg:
		default:
			b.dropped++
		}
	}
}

// Close disconnects every frame client.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}
