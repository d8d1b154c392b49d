package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"realty/site/internal/utils"
)

const inquiryChangesChannel = "inquiry_changes"

// Change operations carried on the bus.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeBus carries "the inquiries collection changed" signals from writers to feeds.
// Signals carry no state; feeds re-query the store when they receive one.
type ChangeBus interface {
	Publish(ctx context.Context, op string, id utils.SixID)
	// Listen returns a channel that receives a value after each change.
	// Bursts may be coalesced into a single signal. The channel is closed when ctx ends.
	Listen(ctx context.Context) (<-chan struct{}, error)
}

// signal performs a non-blocking send on a 1-buffered channel, coalescing bursts.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// --- Redis Pub/Sub ---

type redisChangeBus struct {
	rdb *redis.Client
}

// NewRedisChangeBus propagates changes between every process sharing the Redis instance.
func NewRedisChangeBus(rdb *redis.Client) ChangeBus {
	return &redisChangeBus{rdb: rdb}
}

func (b *redisChangeBus) Publish(ctx context.Context, op string, id utils.SixID) {
	payload := fmt.Sprintf("%s:%s", op, id.String())
	if err := b.rdb.Publish(ctx, inquiryChangesChannel, payload).Err(); err != nil {
		// Subscribers will catch up on the next change or poll.
		log.Printf("Warning: Failed to publish inquiry change %s: %v", payload, err)
	}
}

func (b *redisChangeBus) Listen(ctx context.Context) (<-chan struct{}, error) {
	pubsub := b.rdb.Subscribe(ctx, inquiryChangesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", inquiryChangesChannel, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					log.Println("Inquiry change subscription closed by Redis.")
					return
				}
				signal(out)
			}
		}
	}()
	return out, nil
}

// --- In-process ---

type localChangeBus struct {
	mu        sync.Mutex
	listeners map[chan struct{}]struct{}
}

// NewLocalChangeBus propagates changes within a single process. Used when Redis is not configured.
func NewLocalChangeBus() ChangeBus {
	return &localChangeBus{listeners: make(map[chan struct{}]struct{})}
}

func (b *localChangeBus) Publish(_ context.Context, _ string, _ utils.SixID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.listeners {
		signal(ch)
	}
}

func (b *localChangeBus) Listen(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.listeners, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
