package flux

import (
	"context"
	"iter"
	"sync"
)

// Zipped is the value type produced by Zip: the corresponding entry from
// each side, when present.
type Zipped[V, U any] struct {
	A    V
	HasA bool
	B    U
	HasB bool
}

// Zip pairs up two views by key: for every key present in either source,
// the result holds whichever halves exist. Like Chain, the result
// implements View[K, Zipped[V,U]] directly for reads, but has two sources
// and so must be Store'd or Load'ed before being chained further.
func Zip[K, V, U any](a View[K, V], b View[K, U]) (View[K, Zipped[V, U]], error) {
	if a.diverged() || b.diverged() {
		return nil, compositionErrf("zip: both sources must be stored or loaded before zipping")
	}
	return &zipView[K, V, U]{a: a, b: b}, nil
}

type zipView[K, V, U any] struct {
	a View[K, V]
	b View[K, U]
}

func (z *zipView[K, V, U]) DB() *Database       { return z.a.DB() }
func (z *zipView[K, V, U]) diverged() bool      { return true }
func (z *zipView[K, V, U]) keyLess(a, b K) bool { return z.a.keyLess(a, b) }
func (z *zipView[K, V, U]) keyEqual(a, b K) bool {
	return !z.keyLess(a, b) && !z.keyLess(b, a)
}

func (z *zipView[K, V, U]) Get(k K) (zv Zipped[V, U], ok bool, err error) {
	av, aok, err := z.a.Get(k)
	if err != nil {
		return zv, false, err
	}
	bv, bok, err := z.b.Get(k)
	if err != nil {
		return zv, false, err
	}
	if !aok && !bok {
		return zv, false, nil
	}
	return Zipped[V, U]{A: av, HasA: aok, B: bv, HasB: bok}, true, nil
}

func (z *zipView[K, V, U]) ContainsKey(k K) (bool, error) {
	_, ok, err := z.Get(k)
	return ok, err
}

func (z *zipView[K, V, U]) IsEmpty() (bool, error) {
	_, _, ok, err := z.First()
	return !ok, err
}

func (z *zipView[K, V, U]) scan(lo, hi Bound[K], reverse bool) iter.Seq2[Entry[K, Zipped[V, U]], error] {
	return func(yield func(Entry[K, Zipped[V, U]], error) bool) {
		var seqA iter.Seq2[Entry[K, V], error]
		var seqB iter.Seq2[Entry[K, U], error]
		if reverse {
			seqA, seqB = z.a.RangeReverse(lo, hi), z.b.RangeReverse(lo, hi)
		} else {
			seqA, seqB = z.a.Range(lo, hi), z.b.Range(lo, hi)
		}
		nextA, stopA := iter.Pull2(seqA)
		defer stopA()
		nextB, stopB := iter.Pull2(seqB)
		defer stopB()

		ea, erra, oka := nextA()
		eb, errb, okb := nextB()
		for oka || okb {
			if erra != nil {
				yield(Entry[K, Zipped[V, U]]{}, erra)
				return
			}
			if errb != nil {
				yield(Entry[K, Zipped[V, U]]{}, errb)
				return
			}
			switch {
			case oka && okb && z.keyEqual(ea.Key, eb.Key):
				if !yield(Entry[K, Zipped[V, U]]{Key: ea.Key, Val: Zipped[V, U]{A: ea.Val, HasA: true, B: eb.Val, HasB: true}}, nil) {
					return
				}
				ea, erra, oka = nextA()
				eb, errb, okb = nextB()
			case oka && (!okb || (reverse && z.keyLess(eb.Key, ea.Key)) || (!reverse && z.keyLess(ea.Key, eb.Key))):
				if !yield(Entry[K, Zipped[V, U]]{Key: ea.Key, Val: Zipped[V, U]{A: ea.Val, HasA: true}}, nil) {
					return
				}
				ea, erra, oka = nextA()
			default:
				if !yield(Entry[K, Zipped[V, U]]{Key: eb.Key, Val: Zipped[V, U]{B: eb.Val, HasB: true}}, nil) {
					return
				}
				eb, errb, okb = nextB()
			}
		}
	}
}

func (z *zipView[K, V, U]) Iter() iter.Seq2[Entry[K, Zipped[V, U]], error] {
	return z.scan(Unbounded[K](), Unbounded[K](), false)
}

func (z *zipView[K, V, U]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, Zipped[V, U]], error] {
	return z.scan(lo, hi, false)
}

func (z *zipView[K, V, U]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, Zipped[V, U]], error] {
	return z.scan(lo, hi, true)
}

func (z *zipView[K, V, U]) First() (k K, v Zipped[V, U], ok bool, err error) {
	for e, ferr := range z.Iter() {
		if ferr != nil {
			return k, v, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v, false, nil
}

func (z *zipView[K, V, U]) Last() (k K, v Zipped[V, U], ok bool, err error) {
	for e, ferr := range z.RangeReverse(Unbounded[K](), Unbounded[K]()) {
		if ferr != nil {
			return k, v, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v, false, nil
}

func (z *zipView[K, V, U]) GetLT(k K) (rk K, rv Zipped[V, U], ok bool, err error) {
	for e, ferr := range z.RangeReverse(Unbounded[K](), Excl(k)) {
		if ferr != nil {
			return rk, rv, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, rv, false, nil
}

func (z *zipView[K, V, U]) GetGT(k K) (rk K, rv Zipped[V, U], ok bool, err error) {
	for e, ferr := range z.Range(Excl(k), Unbounded[K]()) {
		if ferr != nil {
			return rk, rv, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, rv, false, nil
}

func (z *zipView[K, V, U]) currentA(k K) (V, bool, error) { return z.a.Get(k) }
func (z *zipView[K, V, U]) currentB(k K) (U, bool, error) { return z.b.Get(k) }

func (z *zipView[K, V, U]) translateAEvent(ev ChangeEvent[K, V]) (ChangeEvent[K, Zipped[V, U]], bool) {
	if ev.Kind == ChangeClear {
		return ChangeEvent[K, Zipped[V, U]]{Kind: ChangeClear}, true
	}
	bv, bok, err := z.currentB(ev.Key)
	if err != nil {
		return ChangeEvent[K, Zipped[V, U]]{}, false
	}
	if ev.Kind == ChangeRemove && !bok {
		return removeEvent[K, Zipped[V, U]](ev.Key, Zipped[V, U]{}), true
	}
	newZ := Zipped[V, U]{B: bv, HasB: bok}
	if ev.Kind != ChangeRemove {
		newZ.A, newZ.HasA = ev.New, true
	}
	return insertEvent[K, Zipped[V, U]](ev.Key, newZ, Zipped[V, U]{}, false), true
}

func (z *zipView[K, V, U]) translateBEvent(ev ChangeEvent[K, U]) (ChangeEvent[K, Zipped[V, U]], bool) {
	if ev.Kind == ChangeClear {
		return ChangeEvent[K, Zipped[V, U]]{Kind: ChangeClear}, true
	}
	av, aok, err := z.currentA(ev.Key)
	if err != nil {
		return ChangeEvent[K, Zipped[V, U]]{}, false
	}
	if ev.Kind == ChangeRemove && !aok {
		return removeEvent[K, Zipped[V, U]](ev.Key, Zipped[V, U]{}), true
	}
	newZ := Zipped[V, U]{A: av, HasA: aok}
	if ev.Kind != ChangeRemove {
		newZ.B, newZ.HasB = ev.New, true
	}
	return insertEvent[K, Zipped[V, U]](ev.Key, newZ, Zipped[V, U]{}, false), true
}

func (z *zipView[K, V, U]) Watch() *Watcher[K, Zipped[V, U]] {
	w := &Watcher[K, Zipped[V, U]]{events: make(chan ChangeEvent[K, Zipped[V, U]], defaultWatchBuffer)}
	ctx, cancel := context.WithCancel(context.Background())
	upA, upB := z.a.Watch(), z.b.Watch()
	var wg sync.WaitGroup
	wg.Add(2)
	w.closeFn = func() {
		cancel()
		wg.Wait()
		close(w.events)
		upA.Close()
		upB.Close()
	}
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-upA.Events():
				if !ok {
					return
				}
				if out, keep := z.translateAEvent(ev); keep {
					select {
					case w.events <- out:
					default:
						w.lagged.Add(1)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-upB.Events():
				if !ok {
					return
				}
				if out, keep := z.translateBEvent(ev); keep {
					select {
					case w.events <- out:
					default:
						w.lagged.Add(1)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return w
}

func (z *zipView[K, V, U]) subscribe(ctx context.Context) (*subscription[K, Zipped[V, U]], error) {
	subA, err := z.a.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	subB, err := z.b.subscribe(ctx)
	if err != nil {
		subA.Close()
		return nil, err
	}
	s := newTranslatedSubscription[K, Zipped[V, U]]()
	go func() {
		for {
			ev, err := subA.Next(ctx)
			if err != nil {
				return
			}
			if out, keep := z.translateAEvent(ev); keep {
				if err := s.q.Add(ctx, out); err != nil {
					return
				}
			}
		}
	}()
	go func() {
		for {
			ev, err := subB.Next(ctx)
			if err != nil {
				return
			}
			if out, keep := z.translateBEvent(ev); keep {
				if err := s.q.Add(ctx, out); err != nil {
					return
				}
			}
		}
	}()
	closeFn := s.closeFn
	s.closeFn = func() {
		closeFn()
		subA.Close()
		subB.Close()
	}
	return s, nil
}
