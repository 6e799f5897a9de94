package broker

import (
	"context"

	"github.com/khaledhikmat/proctor-go/proctor"
)

// Message is a cheating event tagged with the session that raised it.
type Message struct {
	SessionID string                `json:"session"`
	Event     proctor.CheatingEvent `json:"event"`
}

// IService fans cheating events out to whoever watches the session:
// the status server and, through Redis, other processes.
type IService interface {
	Publish(ctx context.Context, sessionID string, event proctor.CheatingEvent) error
	// Subscribe delivers messages until ctx is done, then closes the channel.
	Subscribe(ctx context.Context) (<-chan Message, error)
	Close() error
}
