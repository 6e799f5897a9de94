package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/lgr"
)

// ErrClosed is returned when subscribing to a closed broker.
var ErrClosed = xerrors.New("broker closed")

const (
	defaultPrefix = "proctor"
	defaultTTL    = 24 * time.Hour
)

// RedisBroker appends every event to a per-session list and publishes it
// on a shared channel. The list outlives the process so a report can be
// rebuilt after a crash.
type RedisBroker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisBroker.
type RedisOption func(*RedisBroker)

// WithTTL sets how long a session's event list is kept. 0 keeps it forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBroker) {
		b.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "proctor".
func WithPrefix(prefix string) RedisOption {
	return func(b *RedisBroker) {
		b.prefix = prefix
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisBroker {
	b := &RedisBroker{
		client: client,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewRedisURL connects to the server at url (redis://host:port/db) and
// checks it is reachable.
func NewRedisURL(ctx context.Context, url string, opts ...RedisOption) (*RedisBroker, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, xerrors.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Errorf("redis ping: %w", err)
	}
	return NewRedis(client, opts...), nil
}

func (b *RedisBroker) eventsKey(sessionID string) string {
	return b.prefix + ":" + sessionID + ":events"
}

func (b *RedisBroker) channel() string {
	return b.prefix + ":events"
}

func (b *RedisBroker) Publish(ctx context.Context, sessionID string, event proctor.CheatingEvent) error {
	data, err := json.Marshal(Message{SessionID: sessionID, Event: event})
	if err != nil {
		return xerrors.Errorf("marshalling event: %w", err)
	}
	eventData, err := json.Marshal(event)
	if err != nil {
		return xerrors.Errorf("marshalling event: %w", err)
	}

	key := b.eventsKey(sessionID)
	pipe := b.client.Pipeline()
	pipe.RPush(ctx, key, eventData)
	if b.ttl > 0 {
		pipe.Expire(ctx, key, b.ttl)
	}
	pipe.Publish(ctx, b.channel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Errorf("redis publish: %w", err)
	}
	return nil
}

// Events returns the events recorded for a session, oldest first.
func (b *RedisBroker) Events(ctx context.Context, sessionID string) ([]proctor.CheatingEvent, error) {
	items, err := b.client.LRange(ctx, b.eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, xerrors.Errorf("redis lrange: %w", err)
	}

	events := make([]proctor.CheatingEvent, 0, len(items))
	for _, item := range items {
		var e proctor.CheatingEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, xerrors.Errorf("unmarshalling event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Message, error) {
	ps := b.client.Subscribe(ctx, b.channel())
	// Wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, xerrors.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Message, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					lgr.Logger.Warn("dropping malformed broker message",
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
