// Package eventbus is the outbound notification channel of the core.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/xsync"
)

const DefaultBufferSize = 64

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber that does not keep up loses events.
type Bus struct {
	BufferSize int

	locker      xsync.Mutex
	subscribers map[uint64]*Subscription
	nextID      atomic.Uint64
}

var _ screencap.EventPublisher = (*Bus)(nil)

func New() *Bus {
	return &Bus{
		BufferSize:  DefaultBufferSize,
		subscribers: map[uint64]*Subscription{},
	}
}

type Subscription struct {
	id        uint64
	bus       *Bus
	ch        chan screencap.Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// C returns the events; it is closed when the subscription ends.
func (s *Subscription) C() <-chan screencap.Event {
	return s.ch
}

// Dropped returns how many events were lost because the subscriber was slow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

func (b *Bus) Publish(
	ctx context.Context,
	ev screencap.Event,
) {
	logger.Debugf(ctx, "Publish(ctx, %s)", ev)
	ctx = xsync.WithNoLogging(ctx, true)
	b.locker.Do(ctx, func() {
		for _, sub := range b.subscribers {
			select {
			case sub.ch <- ev:
			default:
				sub.dropped.Add(1)
				logger.Warnf(ctx, "subscriber %d is too slow, dropped event %s", sub.id, ev.Type)
			}
		}
	})
}

// Subscribe returns a subscription that ends when ctx is cancelled or
// Close is called.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	size := b.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	sub := &Subscription{
		id:   b.nextID.Add(1),
		bus:  b,
		ch:   make(chan screencap.Event, size),
		done: make(chan struct{}),
	}
	b.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		b.subscribers[sub.id] = sub
	})
	logger.Debugf(ctx, "subscriber %d added", sub.id)

	observability.Go(ctx, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	})
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	sub.closeOnce.Do(func() {
		b.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
			delete(b.subscribers, sub.id)
			close(sub.ch)
		})
		close(sub.done)
	})
}

func (b *Bus) SubscribersCount() int {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &b.locker, func() int {
		return len(b.subscribers)
	})
}
