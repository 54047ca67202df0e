package notify

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisBroker fronts the same Broker contract as LocalBroker but fans out
// across replicas via Redis pub/sub, per the design note that a shared
// message bus can replace the in-process broker without changing the
// contract. Each Subscribe opens one Redis subscription per user channel
// and bridges its messages onto a local Queue.
type RedisBroker struct {
	client *redis.Client
	prefix string

	mu   sync.Mutex
	subs map[string]map[Queue]func()
}

// NewRedisBroker builds a Redis-backed broker. channelPrefix namespaces the
// pub/sub channels (e.g. "vinylwatch:stream:").
func NewRedisBroker(client *redis.Client, channelPrefix string) *RedisBroker {
	if channelPrefix == "" {
		channelPrefix = "vinylwatch:stream:"
	}
	return &RedisBroker{
		client: client,
		prefix: channelPrefix,
		subs:   make(map[string]map[Queue]func()),
	}
}

func (b *RedisBroker) channel(userID string) string {
	return b.prefix + userID
}

// Subscribe opens a Redis subscription for userID's channel and bridges
// incoming messages onto a buffered local Queue.
func (b *RedisBroker) Subscribe(userID string) Queue {
	q := make(Queue, queueBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, b.channel(userID))

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[Queue]func())
	}
	b.subs[userID][q] = func() {
		cancel()
		_ = pubsub.Close()
	}
	b.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for msg := range ch {
			select {
			case q <- []byte(msg.Payload):
			default:
			}
		}
	}()

	return q
}

// Unsubscribe tears down the Redis subscription backing q and closes it.
func (b *RedisBroker) Unsubscribe(userID string, q Queue) {
	b.mu.Lock()
	var teardown func()
	if set, ok := b.subs[userID]; ok {
		if fn, present := set[q]; present {
			teardown = fn
			delete(set, q)
		}
		if len(set) == 0 {
			delete(b.subs, userID)
		}
	}
	b.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	close(q)
}

// Publish sends payload to userID's Redis channel. Any Redis error is
// swallowed here (best-effort fan-out); callers that need delivery
// confirmation should check the notification's persisted status instead.
func (b *RedisBroker) Publish(ctx context.Context, userID string, payload []byte) {
	_ = b.client.Publish(ctx, b.channel(userID), payload).Err()
}
