package flux

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sync tracks outstanding propagation deltas for one materialized view,
// letting callers wait for it to catch up with its source(s). "Pending"
// covers two disjoint things: events already queued on the underlying
// subscription (queued reports how many) plus the one event, if any, a
// worker has dequeued and is actively applying (incoming).
type Sync struct {
	queued   func() int
	incoming atomic.Int64
	degraded atomic.Bool
	mu       sync.Mutex
	cond     *sync.Cond
}

var (
	allSyncsMu sync.Mutex
	allSyncs   []*Sync
)

func newSync(queued func() int) *Sync {
	s := &Sync{queued: queued}
	s.cond = sync.NewCond(&s.mu)
	allSyncsMu.Lock()
	allSyncs = append(allSyncs, s)
	allSyncsMu.Unlock()
	return s
}

// WaitAll blocks until every materialized view and pipe live in the
// process has caught up with its source(s). Registrations accumulate for
// the life of the process, mirroring a global propagation checkpoint
// rather than a per-view one.
func WaitAll() {
	allSyncsMu.Lock()
	syncs := append([]*Sync(nil), allSyncs...)
	allSyncsMu.Unlock()
	for _, s := range syncs {
		s.Wait()
	}
}

// Incoming returns the number of change events a worker has dequeued from
// the subscription but not yet applied to the sink.
func (s *Sync) Incoming() int64 { return s.incoming.Load() }

// IsSync reports whether the view has no pending deltas right now: nothing
// queued on the subscription and nothing mid-apply. A degraded view is
// always reported in sync, since its worker has stopped draining for good.
func (s *Sync) IsSync() bool {
	return s.degraded.Load() || (s.incoming.Load() == 0 && s.queued() == 0)
}

// Wait blocks until the view has no pending deltas, or has gone degraded.
// Events mid-apply are woken via the usual condition variable; events
// still sitting in the subscription's queue, not yet dequeued by the
// worker, are polled for, since nothing signals Sync when they arrive.
func (s *Sync) Wait() {
	for {
		s.mu.Lock()
		for s.incoming.Load() != 0 && !s.degraded.Load() {
			s.cond.Wait()
		}
		s.mu.Unlock()
		if s.degraded.Load() || s.queued() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Sync) inc() { s.incoming.Add(1) }

func (s *Sync) dec() {
	if s.incoming.Add(-1) == 0 {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// markDegraded permanently marks the view as no longer propagating,
// waking any caller blocked in Wait.
func (s *Sync) markDegraded() {
	s.degraded.Store(true)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}
