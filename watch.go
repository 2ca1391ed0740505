package flux

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cheggaaa/mb/v3"
)

const defaultWatchBuffer = 256

const defaultPropagationBuffer = 1024

// Watcher is a broadcast reader over a view's change events. Delivery is
// best-effort: if a reader falls behind and its buffer is full, each new
// event that does not fit is dropped (the buffered ones are kept) and
// Lagged reports how many were lost since the last call, rather than
// blocking the writer that produced them.
type Watcher[K, V any] struct {
	events    chan ChangeEvent[K, V]
	lagged    atomic.Int64
	closeOnce sync.Once
	closeFn   func()
}

func (w *Watcher[K, V]) Events() <-chan ChangeEvent[K, V] { return w.events }

// Lagged reports, and resets, the number of events dropped since the last
// call because the reader fell behind.
func (w *Watcher[K, V]) Lagged() int { return int(w.lagged.Swap(0)) }

// LaggedErr is Lagged wrapped as a *SubscriptionLaggedError, for callers
// that want to check lag alongside other errors instead of polling a
// separate counter.
func (w *Watcher[K, V]) LaggedErr() error {
	if n := w.Lagged(); n > 0 {
		return &SubscriptionLaggedError{Missed: n}
	}
	return nil
}

func (w *Watcher[K, V]) Close() { w.closeOnce.Do(w.closeFn) }

// subscription is the reliable counterpart to Watcher, used internally by
// materialized-view propagation workers: it must never silently drop an
// event, so it is backed by a bounded, blocking queue instead of a
// drop-and-report channel.
type subscription[K, V any] struct {
	q         *mb.MB[ChangeEvent[K, V]]
	closeOnce sync.Once
	closeFn   func()
}

func newTranslatedSubscription[K, V any]() *subscription[K, V] {
	return &subscription[K, V]{q: mb.New[ChangeEvent[K, V]](defaultPropagationBuffer), closeFn: func() {}}
}

func (s *subscription[K, V]) Next(ctx context.Context) (ChangeEvent[K, V], error) {
	return s.q.WaitOne(ctx)
}

// Len reports how many events are queued but not yet dequeued by Next.
func (s *subscription[K, V]) Len() int { return s.q.Len() }

func (s *subscription[K, V]) Close() {
	s.closeOnce.Do(func() {
		_ = s.q.Close()
		s.closeFn()
	})
}

// broadcaster is embedded by every base event source (Tree, Single,
// MaterializedView). It fans every applied change out to each live Watcher
// (lossy) and each live subscription (reliable), the latter feeding
// downstream materialized views.
type broadcaster[K, V any] struct {
	mu       sync.Mutex
	watchers map[*Watcher[K, V]]struct{}
	subs     map[*subscription[K, V]]struct{}
}

func newBroadcaster[K, V any]() *broadcaster[K, V] {
	return &broadcaster[K, V]{
		watchers: make(map[*Watcher[K, V]]struct{}),
		subs:     make(map[*subscription[K, V]]struct{}),
	}
}

func (b *broadcaster[K, V]) watch() *Watcher[K, V] {
	w := &Watcher[K, V]{events: make(chan ChangeEvent[K, V], defaultWatchBuffer)}
	w.closeFn = func() {
		b.mu.Lock()
		delete(b.watchers, w)
		close(w.events)
		b.mu.Unlock()
	}
	b.mu.Lock()
	b.watchers[w] = struct{}{}
	b.mu.Unlock()
	return w
}

func (b *broadcaster[K, V]) subscribe(ctx context.Context) *subscription[K, V] {
	s := &subscription[K, V]{q: mb.New[ChangeEvent[K, V]](defaultPropagationBuffer)}
	s.closeFn = func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *broadcaster[K, V]) publish(ctx context.Context, ev ChangeEvent[K, V]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for w := range b.watchers {
		select {
		case w.events <- ev:
		default:
			w.lagged.Add(1)
		}
	}
	for s := range b.subs {
		_ = s.q.Add(ctx, ev)
	}
}
