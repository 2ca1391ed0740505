package flux

import (
	"context"
	"errors"
	"log/slog"
)

// Pair is one key-value produced by a Transform function, distinct from
// Entry so that a transform's fan-out ([]Pair) reads unambiguously.
type Pair[K2, V2 any] struct {
	Key K2
	Val V2
}

// TransformResult is the divergent-key result of Transform/Index. It does
// not implement View at all — unlike Chain/Zip, there is no sensible way
// to read it without the contribution map a Store/Load builds, so chaining
// a further combinator on it is a compile error rather than a runtime
// CompositionError.
type TransformResult[K comparable, V, K2, V2 any] struct {
	src View[K, V]
	f   func(K, V) []Pair[K2, V2]
}

// Transform maps every source entry to zero or more derived (K2, V2)
// pairs. Because several source keys may contribute to the same derived
// key, the sink holds a multiset: Store/Load produce a
// MaterializedView[K2, []V2].
func Transform[K comparable, V, K2, V2 any](src View[K, V], f func(K, V) []Pair[K2, V2]) (*TransformResult[K, V, K2, V2], error) {
	if src.diverged() {
		return nil, compositionErrf("transform: source must be stored or loaded before further composition")
	}
	return &TransformResult[K, V, K2, V2]{src: src, f: f}, nil
}

// Index is the common case of Transform where the derived value is just
// the original value, fanned out over a list of derived keys.
func Index[K comparable, V, K2 any](src View[K, V], f func(K, V) []K2) (*TransformResult[K, V, K2, V], error) {
	return Transform[K, V, K2, V](src, func(k K, v V) []Pair[K2, V] {
		k2s := f(k, v)
		pairs := make([]Pair[K2, V], len(k2s))
		for i, k2 := range k2s {
			pairs[i] = Pair[K2, V]{Key: k2, Val: v}
		}
		return pairs
	})
}

// Store materializes a transform/index into a named sink tree plus a
// private "<name>.__keys" contribution map (derived key -> multiset of
// contributing source keys), used to correctly retract or update a
// derived entry when the source row that produced it changes.
func (tr *TransformResult[K, V, K2, V2]) Store(name string, opts ...TreeOption[K2, []V2]) (*MaterializedView[K2, []V2], error) {
	return tr.materialize(tr.src.DB(), name, opts...)
}

// Load materializes a transform/index into an anonymous, ephemeral
// in-memory sink.
func (tr *TransformResult[K, V, K2, V2]) Load(opts ...TreeOption[K2, []V2]) (*MaterializedView[K2, []V2], error) {
	name := anonymousSinkName("load")
	db := OpenMemory(Options{})
	mv, err := tr.materialize(db, name, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	mv.ownDB = db
	return mv, nil
}

func (tr *TransformResult[K, V, K2, V2]) materialize(db *Database, name string, opts ...TreeOption[K2, []V2]) (*MaterializedView[K2, []V2], error) {
	sink, err := OpenTree[K2, []V2](db, name, opts...)
	if err != nil {
		return nil, err
	}
	contrib, err := OpenTree[K2, []K](db, name+".__keys")
	if err != nil {
		return nil, err
	}
	// As in storeInto: a named sink may already hold a previous run's
	// contents, so rebuild it from scratch rather than doubling every
	// multiset entry on top of stale rows.
	if err := sink.Clear(); err != nil {
		return nil, err
	}
	if err := contrib.Clear(); err != nil {
		return nil, err
	}

	sub, err := tr.src.subscribe(db.ctx)
	if err != nil {
		return nil, err
	}

	prev := make(map[K][]Pair[K2, V2])
	for e, ferr := range tr.src.Iter() {
		if ferr != nil {
			sub.Close()
			return nil, ferr
		}
		pairs := tr.f(e.Key, e.Val)
		prev[e.Key] = pairs
		for _, p := range pairs {
			if err := tr.appendContribution(sink, contrib, p.Key, e.Key, p.Val); err != nil {
				sub.Close()
				return nil, err
			}
		}
	}

	ctx, cancel := context.WithCancel(db.ctx)
	mv := &MaterializedView[K2, []V2]{sink: sink, cancel: cancel, done: make(chan struct{})}
	mv.sync = newSync(sub.Len)
	go tr.runWorker(ctx, sub, prev, sink, contrib, mv)
	return mv, nil
}

func (tr *TransformResult[K, V, K2, V2]) appendContribution(sink *Tree[K2, []V2], contrib *Tree[K2, []K], k2 K2, srcKey K, v2 V2) error {
	vals, _, err := sink.Get(k2)
	if err != nil {
		return err
	}
	vals = append(vals, v2)
	if _, _, err := sink.Insert(k2, vals); err != nil {
		return err
	}
	keys, _, err := contrib.Get(k2)
	if err != nil {
		return err
	}
	keys = append(keys, srcKey)
	_, _, err = contrib.Insert(k2, keys)
	return err
}

func (tr *TransformResult[K, V, K2, V2]) keyEqual2(sink *Tree[K2, []V2], a, b K2) bool {
	return !sink.keyLess(a, b) && !sink.keyLess(b, a)
}

func (tr *TransformResult[K, V, K2, V2]) dedupKeys2(sink *Tree[K2, []V2], ks []K2) []K2 {
	out := make([]K2, 0, len(ks))
	for _, k := range ks {
		dup := false
		for _, o := range out {
			if tr.keyEqual2(sink, k, o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}

func derivedKeysOf[K2, V2 any](pairs []Pair[K2, V2]) []K2 {
	ks := make([]K2, len(pairs))
	for i, p := range pairs {
		ks[i] = p.Key
	}
	return ks
}

func removeFromKeys[K comparable](list []K, k K) []K {
	out := list[:0]
	for _, x := range list {
		if x != k {
			out = append(out, x)
		}
	}
	return out
}

// rebuildSink recomputes sink[k2] from scratch, from contrib's current
// list of contributing source keys and each one's cached pairs in prev.
// It is how a removal is applied without needing V2 to be comparable.
func (tr *TransformResult[K, V, K2, V2]) rebuildSink(sink *Tree[K2, []V2], contrib *Tree[K2, []K], k2 K2, prev map[K][]Pair[K2, V2]) error {
	keys, hasKeys, err := contrib.Get(k2)
	if err != nil {
		return err
	}
	if !hasKeys || len(keys) == 0 {
		if _, _, err := sink.Remove(k2); err != nil {
			return err
		}
		_, _, err = contrib.Remove(k2)
		return err
	}
	var vals []V2
	for _, k := range keys {
		for _, p := range prev[k] {
			if tr.keyEqual2(sink, p.Key, k2) {
				vals = append(vals, p.Val)
			}
		}
	}
	_, _, err = sink.Insert(k2, vals)
	return err
}

func (tr *TransformResult[K, V, K2, V2]) applySourceUpdate(sink *Tree[K2, []V2], contrib *Tree[K2, []K], prev map[K][]Pair[K2, V2], k K, newVal V, hasNew bool) error {
	oldPairs := prev[k]
	var newPairs []Pair[K2, V2]
	if hasNew {
		newPairs = tr.f(k, newVal)
	}
	oldKeys := tr.dedupKeys2(sink, derivedKeysOf(oldPairs))
	newKeys := tr.dedupKeys2(sink, derivedKeysOf(newPairs))

	for _, k2 := range oldKeys {
		keys, _, err := contrib.Get(k2)
		if err != nil {
			return err
		}
		keys = removeFromKeys(keys, k)
		if len(keys) == 0 {
			if _, _, err := contrib.Remove(k2); err != nil {
				return err
			}
		} else if _, _, err := contrib.Insert(k2, keys); err != nil {
			return err
		}
	}
	for _, k2 := range newKeys {
		keys, _, err := contrib.Get(k2)
		if err != nil {
			return err
		}
		keys = append(keys, k)
		if _, _, err := contrib.Insert(k2, keys); err != nil {
			return err
		}
	}

	if hasNew {
		prev[k] = newPairs
	} else {
		delete(prev, k)
	}

	affected := tr.dedupKeys2(sink, append(append([]K2{}, oldKeys...), newKeys...))
	for _, k2 := range affected {
		if err := tr.rebuildSink(sink, contrib, k2, prev); err != nil {
			return err
		}
	}
	return nil
}

func (tr *TransformResult[K, V, K2, V2]) runWorker(ctx context.Context, sub *subscription[K, V], prev map[K][]Pair[K2, V2], sink *Tree[K2, []V2], contrib *Tree[K2, []K], mv *MaterializedView[K2, []V2]) {
	defer close(mv.done)
	defer sub.Close()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		mv.sync.inc()
		var applyErr error
		switch ev.Kind {
		case ChangeClear:
			applyErr = sink.Clear()
			if applyErr == nil {
				applyErr = contrib.Clear()
			}
			for k := range prev {
				delete(prev, k)
			}
		case ChangeInsert:
			applyErr = tr.applySourceUpdate(sink, contrib, prev, ev.Key, ev.New, true)
		case ChangeRemove:
			applyErr = tr.applySourceUpdate(sink, contrib, prev, ev.Key, ev.Old, false)
		}
		if applyErr != nil {
			var decErr *DecodeError
			if errors.As(applyErr, &decErr) {
				sink.db.logAttrs(slog.LevelWarn, "transform: skipping row with decode error", "tree", sink.name, "err", applyErr)
				mv.sync.dec()
				continue
			}
			sink.db.logAttrs(slog.LevelError, "transform: view degraded", "tree", sink.name, "err", applyErr)
			mv.markDegraded(applyErr)
			mv.sync.dec()
			return
		}
		mv.sync.dec()
	}
}
