// Package notify implements the notification fan-out, the delivery worker,
// and the in-process stream broker described in §4.5.
package notify

import (
	"context"
	"sync"
	"time"
)

// Queue is a single subscriber's inbox. Publish never blocks on a full
// queue; a slow subscriber drops messages rather than stalling publishers.
type Queue chan []byte

const queueBuffer = 32

// Broker is the realtime publish/subscribe contract. The in-process
// implementation below satisfies it; broker_redis.go provides an
// alternative that fans out across replicas via Redis pub/sub, per the
// "front it with a shared message bus" note.
type Broker interface {
	Subscribe(userID string) Queue
	Unsubscribe(userID string, q Queue)
	Publish(ctx context.Context, userID string, payload []byte)
}

// LocalBroker is a process-local pub/sub: subscribe(user_id) → Queue;
// publish(user_id, payload) fans out to all queues currently subscribed for
// that user; unsubscribe removes and garbage-collects empty user slots.
type LocalBroker struct {
	mu   sync.Mutex
	subs map[string]map[Queue]bool

	pingInterval time.Duration
}

// NewLocalBroker builds an in-process broker. pingInterval configures the
// liveness ping sent to every subscriber; zero disables pings.
func NewLocalBroker(pingInterval time.Duration) *LocalBroker {
	return &LocalBroker{
		subs:         make(map[string]map[Queue]bool),
		pingInterval: pingInterval,
	}
}

// Subscribe registers a new queue for userID.
func (b *LocalBroker) Subscribe(userID string) Queue {
	q := make(Queue, queueBuffer)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[Queue]bool)
	}
	b.subs[userID][q] = true
	b.mu.Unlock()

	if b.pingInterval > 0 {
		go b.liveness(userID, q)
	}
	return q
}

// Unsubscribe removes q from userID's subscriber set, garbage-collecting the
// user slot once empty, and closes q.
func (b *LocalBroker) Unsubscribe(userID string, q Queue) {
	b.mu.Lock()
	if set, ok := b.subs[userID]; ok {
		if _, present := set[q]; present {
			delete(set, q)
			close(q)
		}
		if len(set) == 0 {
			delete(b.subs, userID)
		}
	}
	b.mu.Unlock()
}

// Publish fans payload out to every queue currently subscribed for userID.
// The lock is held only to snapshot the subscriber list; sends happen after
// release, and a full queue is skipped rather than blocking the publisher.
func (b *LocalBroker) Publish(_ context.Context, userID string, payload []byte) {
	b.mu.Lock()
	set := b.subs[userID]
	queues := make([]Queue, 0, len(set))
	for q := range set {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		select {
		case q <- payload:
		default:
		}
	}
}

// livenessPing is the payload sent on every liveness tick. The realtime
// transport (outside this package's scope) distinguishes it from actual
// event payloads by the "ping" type field.
var livenessPing = []byte(`{"type":"ping"}`)

func (b *LocalBroker) liveness(userID string, q Queue) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		b.mu.Lock()
		set, ok := b.subs[userID]
		stillSubscribed := ok && set[q]
		b.mu.Unlock()
		if !stillSubscribed {
			return
		}
		select {
		case q <- livenessPing:
		default:
		}
	}
}
