package flux

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

var anonSinkCounter atomic.Uint64

// anonymousSinkName derives a collision-resistant bucket name for an
// anonymous Load() sink, the way the teacher derives index bucket names
// from a hash rather than from caller-chosen strings.
func anonymousSinkName(prefix string) string {
	n := anonSinkCounter.Add(1)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return fmt.Sprintf("__%s.%016x", prefix, xxhash.Sum64(buf[:]))
}

// MaterializedView is the read-only result of Store or Load: a sink tree
// kept current by a propagation worker. It is deliberately not Writable —
// the only way to change it is to change its source(s).
//
// A StorageError from the propagation worker marks the view degraded: the
// worker stops for good, and every subsequent read fails deterministically
// with the error that degraded it, rather than silently serving a sink that
// has stopped tracking its source.
type MaterializedView[K, V any] struct {
	sink   *Tree[K, V]
	sync   *Sync
	cancel context.CancelFunc
	done   chan struct{}
	ownDB  *Database

	degradedErr atomic.Value // holds degradedHolder
}

type degradedHolder struct{ err error }

func (m *MaterializedView[K, V]) markDegraded(err error) {
	m.degradedErr.Store(degradedHolder{err: err})
	m.sync.markDegraded()
}

func (m *MaterializedView[K, V]) degradedError() error {
	v := m.degradedErr.Load()
	if v == nil {
		return nil
	}
	return v.(degradedHolder).err
}

var _ View[int, int] = (*MaterializedView[int, int])(nil)

func (m *MaterializedView[K, V]) DB() *Database       { return m.sink.DB() }
func (m *MaterializedView[K, V]) diverged() bool      { return false }
func (m *MaterializedView[K, V]) keyLess(a, b K) bool { return m.sink.keyLess(a, b) }

func (m *MaterializedView[K, V]) IsEmpty() (bool, error) {
	if err := m.degradedError(); err != nil {
		return false, err
	}
	return m.sink.IsEmpty()
}

func (m *MaterializedView[K, V]) ContainsKey(k K) (bool, error) {
	if err := m.degradedError(); err != nil {
		return false, err
	}
	return m.sink.ContainsKey(k)
}

func (m *MaterializedView[K, V]) Get(k K) (v V, ok bool, err error) {
	if err := m.degradedError(); err != nil {
		return v, false, err
	}
	return m.sink.Get(k)
}

func (m *MaterializedView[K, V]) GetLT(k K) (rk K, rv V, ok bool, err error) {
	if err := m.degradedError(); err != nil {
		return rk, rv, false, err
	}
	return m.sink.GetLT(k)
}

func (m *MaterializedView[K, V]) GetGT(k K) (rk K, rv V, ok bool, err error) {
	if err := m.degradedError(); err != nil {
		return rk, rv, false, err
	}
	return m.sink.GetGT(k)
}

func (m *MaterializedView[K, V]) First() (k K, v V, ok bool, err error) {
	if err := m.degradedError(); err != nil {
		return k, v, false, err
	}
	return m.sink.First()
}

func (m *MaterializedView[K, V]) Last() (k K, v V, ok bool, err error) {
	if err := m.degradedError(); err != nil {
		return k, v, false, err
	}
	return m.sink.Last()
}

func degradedSeq[K, V any](err error) iter.Seq2[Entry[K, V], error] {
	return func(yield func(Entry[K, V], error) bool) {
		yield(Entry[K, V]{}, err)
	}
}

func (m *MaterializedView[K, V]) Iter() iter.Seq2[Entry[K, V], error] {
	if err := m.degradedError(); err != nil {
		return degradedSeq[K, V](err)
	}
	return m.sink.Iter()
}

func (m *MaterializedView[K, V]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	if err := m.degradedError(); err != nil {
		return degradedSeq[K, V](err)
	}
	return m.sink.Range(lo, hi)
}

func (m *MaterializedView[K, V]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	if err := m.degradedError(); err != nil {
		return degradedSeq[K, V](err)
	}
	return m.sink.RangeReverse(lo, hi)
}

func (m *MaterializedView[K, V]) Watch() *Watcher[K, V] { return m.sink.Watch() }

func (m *MaterializedView[K, V]) subscribe(ctx context.Context) (*subscription[K, V], error) {
	return m.sink.subscribe(ctx)
}

// Sync reports this view's propagation quiescence.
func (m *MaterializedView[K, V]) Sync() *Sync { return m.sync }

// Close stops the propagation worker. For a Load()ed view, it also closes
// the anonymous in-memory Database backing the sink.
func (m *MaterializedView[K, V]) Close() {
	m.cancel()
	<-m.done
	if m.ownDB != nil {
		m.ownDB.Close()
	}
}

// Store materializes src into a named, durable sink tree in src's own
// Database: an eager initial fill over a consistent snapshot, followed by
// a propagation worker that keeps the sink current.
func Store[K, V any](src View[K, V], name string, opts ...TreeOption[K, V]) (*MaterializedView[K, V], error) {
	return storeInto(src, src.DB(), name, opts...)
}

// Load materializes src into an anonymous sink tree backed by its own
// in-process memory Database, torn down when the MaterializedView closes.
func Load[K, V any](src View[K, V], opts ...TreeOption[K, V]) (*MaterializedView[K, V], error) {
	db := OpenMemory(Options{})
	mv, err := storeInto(src, db, anonymousSinkName("load"), opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	mv.ownDB = db
	return mv, nil
}

func storeInto[K, V any](src View[K, V], db *Database, name string, opts ...TreeOption[K, V]) (*MaterializedView[K, V], error) {
	sink, err := OpenTree[K, V](db, name, opts...)
	if err != nil {
		return nil, err
	}
	// A named sink may already hold a previous run's contents (Store is
	// meant to be durable and re-open the same bucket across restarts);
	// clear it so the initial fill below rebuilds from the source instead
	// of doubling up on top of stale rows.
	if err := sink.Clear(); err != nil {
		return nil, err
	}
	// Subscribe before the initial fill so no event raised during the scan
	// is lost; the worker will simply re-apply it once the scan completes.
	sub, err := src.subscribe(db.ctx)
	if err != nil {
		return nil, err
	}
	for e, ferr := range src.Iter() {
		if ferr != nil {
			sub.Close()
			return nil, ferr
		}
		if _, _, err := sink.Insert(e.Key, e.Val); err != nil {
			sub.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(db.ctx)
	mv := &MaterializedView[K, V]{sink: sink, cancel: cancel, done: make(chan struct{})}
	mv.sync = newSync(sub.Len)
	go mv.runWorker(ctx, sub)
	return mv, nil
}

func (m *MaterializedView[K, V]) runWorker(ctx context.Context, sub *subscription[K, V]) {
	defer close(m.done)
	defer sub.Close()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		m.sync.inc()
		if err := applyChangeEvent(m.sink, ev); err != nil {
			var decErr *DecodeError
			if errors.As(err, &decErr) {
				m.sink.db.logAttrs(slog.LevelWarn, "materialize: skipping row with decode error", "tree", m.sink.name, "err", err)
				m.sync.dec()
				continue
			}
			m.sink.db.logAttrs(slog.LevelError, "materialize: view degraded", "tree", m.sink.name, "err", err)
			m.markDegraded(err)
			m.sync.dec()
			return
		}
		m.sync.dec()
	}
}
