package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

const subscriberBuffer = 32

type memoryService struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
	closed bool
}

// NewMemory is an in-process broker. A subscriber that falls behind loses
// messages rather than blocking the publisher.
func NewMemory() IService {
	return &memoryService{
		subs: map[int]chan Message{},
	}
}

func (svc *memoryService) Publish(_ context.Context, sessionID string, event proctor.CheatingEvent) error {
	msg := Message{SessionID: sessionID, Event: event}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for id, ch := range svc.subs {
		select {
		case ch <- msg:
		default:
			lgr.Logger.Warn("broker subscriber full, dropping message",
				slog.Int("subscriber", id),
			)
		}
	}
	return nil
}

func (svc *memoryService) Subscribe(ctx context.Context) (<-chan Message, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return nil, ErrClosed
	}

	id := svc.nextID
	svc.nextID++
	ch := make(chan Message, subscriberBuffer)
	svc.subs[id] = ch

	go func() {
		<-ctx.Done()
		svc.unsubscribe(id)
	}()
	return ch, nil
}

func (svc *memoryService) unsubscribe(id int) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if ch, ok := svc.subs[id]; ok {
		close(ch)
		delete(svc.subs, id)
	}
}

func (svc *memoryService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for id, ch := range svc.subs {
		close(ch)
		delete(svc.subs, id)
	}
	svc.closed = true
	return nil
}
