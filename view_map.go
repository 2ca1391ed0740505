package flux

import (
	"context"
	"iter"
)

// Map returns a lazy view that applies f to every value of src. Its key
// space is identical to src's, so it remains purely lazy: no
// materialization is required before chaining further combinators on it.
func Map[K, V, V2 any](src View[K, V], f func(K, V) V2) (View[K, V2], error) {
	if src.diverged() {
		return nil, compositionErrf("map: source must be stored or loaded before further composition")
	}
	return &mapView[K, V, V2]{src: src, f: f}, nil
}

type mapView[K, V, V2 any] struct {
	src View[K, V]
	f   func(K, V) V2
}

func (m *mapView[K, V, V2]) DB() *Database         { return m.src.DB() }
func (m *mapView[K, V, V2]) diverged() bool        { return false }
func (m *mapView[K, V, V2]) keyLess(a, b K) bool   { return m.src.keyLess(a, b) }

func (m *mapView[K, V, V2]) mapEntry(e Entry[K, V]) Entry[K, V2] {
	return Entry[K, V2]{Key: e.Key, Val: m.f(e.Key, e.Val)}
}

func (m *mapView[K, V, V2]) Get(k K) (v2 V2, ok bool, err error) {
	v, ok, err := m.src.Get(k)
	if err != nil || !ok {
		return v2, ok, err
	}
	return m.f(k, v), true, nil
}

func (m *mapView[K, V, V2]) ContainsKey(k K) (bool, error) { return m.src.ContainsKey(k) }
func (m *mapView[K, V, V2]) IsEmpty() (bool, error)        { return m.src.IsEmpty() }

func (m *mapView[K, V, V2]) First() (k K, v2 V2, ok bool, err error) {
	k, v, ok, err := m.src.First()
	if err != nil || !ok {
		return k, v2, ok, err
	}
	return k, m.f(k, v), true, nil
}

func (m *mapView[K, V, V2]) Last() (k K, v2 V2, ok bool, err error) {
	k, v, ok, err := m.src.Last()
	if err != nil || !ok {
		return k, v2, ok, err
	}
	return k, m.f(k, v), true, nil
}

func (m *mapView[K, V, V2]) GetLT(k K) (rk K, v2 V2, ok bool, err error) {
	rk, v, ok, err := m.src.GetLT(k)
	if err != nil || !ok {
		return rk, v2, ok, err
	}
	return rk, m.f(rk, v), true, nil
}

func (m *mapView[K, V, V2]) GetGT(k K) (rk K, v2 V2, ok bool, err error) {
	rk, v, ok, err := m.src.GetGT(k)
	if err != nil || !ok {
		return rk, v2, ok, err
	}
	return rk, m.f(rk, v), true, nil
}

func (m *mapView[K, V, V2]) Iter() iter.Seq2[Entry[K, V2], error] {
	return mapSeq(m.src.Iter(), m.mapEntry)
}

func (m *mapView[K, V, V2]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V2], error] {
	return mapSeq(m.src.Range(lo, hi), m.mapEntry)
}

func (m *mapView[K, V, V2]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V2], error] {
	return mapSeq(m.src.RangeReverse(lo, hi), m.mapEntry)
}

func (m *mapView[K, V, V2]) Watch() *Watcher[K, V2] {
	return translateWatch(m.src.Watch(), func(ev ChangeEvent[K, V]) (ChangeEvent[K, V2], bool) {
		return mapEvent(ev, m.f), true
	})
}

func (m *mapView[K, V, V2]) subscribe(ctx context.Context) (*subscription[K, V2], error) {
	return translateSubscribe(ctx, m.src, func(ev ChangeEvent[K, V]) (ChangeEvent[K, V2], bool) {
		return mapEvent(ev, m.f), true
	})
}

func mapEvent[K, V, V2 any](ev ChangeEvent[K, V], f func(K, V) V2) ChangeEvent[K, V2] {
	out := ChangeEvent[K, V2]{Kind: ev.Kind, Key: ev.Key}
	if ev.HasNew {
		out.New = f(ev.Key, ev.New)
		out.HasNew = true
	}
	if ev.HasOld {
		out.Old = f(ev.Key, ev.Old)
		out.HasOld = true
	}
	return out
}

func mapSeq[K, V, V2 any](src iter.Seq2[Entry[K, V], error], f func(Entry[K, V]) Entry[K, V2]) iter.Seq2[Entry[K, V2], error] {
	return func(yield func(Entry[K, V2], error) bool) {
		for e, err := range src {
			if err != nil {
				yield(Entry[K, V2]{}, err)
				return
			}
			if !yield(f(e), nil) {
				return
			}
		}
	}
}

// Filter returns a lazy view holding only the entries of src for which
// pred returns true.
func Filter[K, V any](src View[K, V], pred func(K, V) bool) (View[K, V], error) {
	if src.diverged() {
		return nil, compositionErrf("filter: source must be stored or loaded before further composition")
	}
	return &filterView[K, V]{src: src, pred: pred}, nil
}

type filterView[K, V any] struct {
	src  View[K, V]
	pred func(K, V) bool
}

func (fv *filterView[K, V]) DB() *Database       { return fv.src.DB() }
func (fv *filterView[K, V]) diverged() bool      { return false }
func (fv *filterView[K, V]) keyLess(a, b K) bool { return fv.src.keyLess(a, b) }

func (fv *filterView[K, V]) Get(k K) (v V, ok bool, err error) {
	v, ok, err = fv.src.Get(k)
	if err != nil || !ok {
		return v, ok, err
	}
	if !fv.pred(k, v) {
		var zero V
		return zero, false, nil
	}
	return v, true, nil
}

func (fv *filterView[K, V]) ContainsKey(k K) (bool, error) {
	_, ok, err := fv.Get(k)
	return ok, err
}

func (fv *filterView[K, V]) IsEmpty() (bool, error) {
	_, _, ok, err := fv.First()
	return !ok, err
}

func (fv *filterView[K, V]) Iter() iter.Seq2[Entry[K, V], error] {
	return filterSeq(fv.src.Iter(), fv.pred)
}

func (fv *filterView[K, V]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	return filterSeq(fv.src.Range(lo, hi), fv.pred)
}

func (fv *filterView[K, V]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	return filterSeq(fv.src.RangeReverse(lo, hi), fv.pred)
}

func (fv *filterView[K, V]) First() (k K, v V, ok bool, err error) {
	for e, ferr := range fv.Iter() {
		if ferr != nil {
			return k, v, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v, false, nil
}

func (fv *filterView[K, V]) Last() (k K, v V, ok bool, err error) {
	for e, ferr := range fv.RangeReverse(Unbounded[K](), Unbounded[K]()) {
		if ferr != nil {
			return k, v, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v, false, nil
}

func (fv *filterView[K, V]) GetLT(k K) (rk K, rv V, ok bool, err error) {
	for e, ferr := range fv.RangeReverse(Unbounded[K](), Excl(k)) {
		if ferr != nil {
			return rk, rv, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, rv, false, nil
}

func (fv *filterView[K, V]) GetGT(k K) (rk K, rv V, ok bool, err error) {
	for e, ferr := range fv.Range(Excl(k), Unbounded[K]()) {
		if ferr != nil {
			return rk, rv, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, rv, false, nil
}

func (fv *filterView[K, V]) Watch() *Watcher[K, V] {
	return translateWatch(fv.src.Watch(), filterEvent(fv.pred))
}

func (fv *filterView[K, V]) subscribe(ctx context.Context) (*subscription[K, V], error) {
	return translateSubscribe(ctx, fv.src, filterEvent(fv.pred))
}

func filterEvent[K, V any](pred func(K, V) bool) func(ChangeEvent[K, V]) (ChangeEvent[K, V], bool) {
	return func(ev ChangeEvent[K, V]) (ChangeEvent[K, V], bool) {
		switch ev.Kind {
		case ChangeClear:
			return ev, true
		case ChangeRemove:
			if ev.HasOld && pred(ev.Key, ev.Old) {
				return ev, true
			}
			return ev, false
		default:
			newMatch := ev.HasNew && pred(ev.Key, ev.New)
			oldMatch := ev.HasOld && pred(ev.Key, ev.Old)
			switch {
			case newMatch:
				out := ev
				out.HasOld = oldMatch
				return out, true
			case oldMatch:
				return removeEvent[K, V](ev.Key, ev.Old), true
			default:
				return ev, false
			}
		}
	}
}

func filterSeq[K, V any](src iter.Seq2[Entry[K, V], error], pred func(K, V) bool) iter.Seq2[Entry[K, V], error] {
	return func(yield func(Entry[K, V], error) bool) {
		for e, err := range src {
			if err != nil {
				yield(Entry[K, V]{}, err)
				return
			}
			if !pred(e.Key, e.Val) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// FilterMap combines Map and Filter: f inspects and transforms each entry,
// returning keep=false to drop it.
func FilterMap[K, V, V2 any](src View[K, V], f func(K, V) (V2, bool)) (View[K, V2], error) {
	if src.diverged() {
		return nil, compositionErrf("filter_map: source must be stored or loaded before further composition")
	}
	return &filterMapView[K, V, V2]{src: src, f: f}, nil
}

type filterMapView[K, V, V2 any] struct {
	src View[K, V]
	f   func(K, V) (V2, bool)
}

func (fm *filterMapView[K, V, V2]) DB() *Database         { return fm.src.DB() }
func (fm *filterMapView[K, V, V2]) diverged() bool        { return false }
func (fm *filterMapView[K, V, V2]) keyLess(a, b K) bool   { return fm.src.keyLess(a, b) }

func (fm *filterMapView[K, V, V2]) Get(k K) (v2 V2, ok bool, err error) {
	v, ok, err := fm.src.Get(k)
	if err != nil || !ok {
		return v2, false, err
	}
	v2, ok = fm.f(k, v)
	return v2, ok, nil
}

func (fm *filterMapView[K, V, V2]) ContainsKey(k K) (bool, error) {
	_, ok, err := fm.Get(k)
	return ok, err
}

func (fm *filterMapView[K, V, V2]) IsEmpty() (bool, error) {
	_, _, ok, err := fm.First()
	return !ok, err
}

func (fm *filterMapView[K, V, V2]) seq(src iter.Seq2[Entry[K, V], error]) iter.Seq2[Entry[K, V2], error] {
	return func(yield func(Entry[K, V2], error) bool) {
		for e, err := range src {
			if err != nil {
				yield(Entry[K, V2]{}, err)
				return
			}
			v2, keep := fm.f(e.Key, e.Val)
			if !keep {
				continue
			}
			if !yield(Entry[K, V2]{Key: e.Key, Val: v2}, nil) {
				return
			}
		}
	}
}

func (fm *filterMapView[K, V, V2]) Iter() iter.Seq2[Entry[K, V2], error] { return fm.seq(fm.src.Iter()) }

func (fm *filterMapView[K, V, V2]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V2], error] {
	return fm.seq(fm.src.Range(lo, hi))
}

func (fm *filterMapView[K, V, V2]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V2], error] {
	return fm.seq(fm.src.RangeReverse(lo, hi))
}

func (fm *filterMapView[K, V, V2]) First() (k K, v2 V2, ok bool, err error) {
	for e, ferr := range fm.Iter() {
		if ferr != nil {
			return k, v2, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v2, false, nil
}

func (fm *filterMapView[K, V, V2]) Last() (k K, v2 V2, ok bool, err error) {
	for e, ferr := range fm.RangeReverse(Unbounded[K](), Unbounded[K]()) {
		if ferr != nil {
			return k, v2, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v2, false, nil
}

func (fm *filterMapView[K, V, V2]) GetLT(k K) (rk K, v2 V2, ok bool, err error) {
	for e, ferr := range fm.RangeReverse(Unbounded[K](), Excl(k)) {
		if ferr != nil {
			return rk, v2, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, v2, false, nil
}

func (fm *filterMapView[K, V, V2]) GetGT(k K) (rk K, v2 V2, ok bool, err error) {
	for e, ferr := range fm.Range(Excl(k), Unbounded[K]()) {
		if ferr != nil {
			return rk, v2, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, v2, false, nil
}

func (fm *filterMapView[K, V, V2]) Watch() *Watcher[K, V2] {
	return translateWatch(fm.src.Watch(), filterMapEvent(fm.f))
}

func (fm *filterMapView[K, V, V2]) subscribe(ctx context.Context) (*subscription[K, V2], error) {
	return translateSubscribe(ctx, fm.src, filterMapEvent(fm.f))
}

func filterMapEvent[K, V, V2 any](f func(K, V) (V2, bool)) func(ChangeEvent[K, V]) (ChangeEvent[K, V2], bool) {
	return func(ev ChangeEvent[K, V]) (ChangeEvent[K, V2], bool) {
		if ev.Kind == ChangeClear {
			return ChangeEvent[K, V2]{Kind: ChangeClear}, true
		}
		var newV2 V2
		newMatch := false
		if ev.HasNew {
			newV2, newMatch = f(ev.Key, ev.New)
		}
		var oldV2 V2
		oldMatch := false
		if ev.HasOld {
			oldV2, oldMatch = f(ev.Key, ev.Old)
		}
		switch {
		case ev.Kind == ChangeRemove:
			if oldMatch {
				return removeEvent[K, V2](ev.Key, oldV2), true
			}
			return ChangeEvent[K, V2]{}, false
		case newMatch:
			out := ChangeEvent[K, V2]{Kind: ChangeInsert, Key: ev.Key, New: newV2, HasNew: true}
			if oldMatch {
				out.Old, out.HasOld = oldV2, true
			}
			return out, true
		case oldMatch:
			return removeEvent[K, V2](ev.Key, oldV2), true
		default:
			return ChangeEvent[K, V2]{}, false
		}
	}
}
