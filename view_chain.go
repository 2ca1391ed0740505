package flux

import (
	"context"
	"iter"
	"sync"
)

// Chain merges several views of the same key and value type in key order.
// Where key spaces overlap, the earliest source in the argument list wins.
// The result implements View[K,V] directly, so it can be read without
// materializing it first — but because it has more than one source, it
// must be Store'd or Load'ed before being used as the source of a further
// combinator.
func Chain[K, V any](sources ...View[K, V]) (View[K, V], error) {
	if len(sources) == 0 {
		return nil, compositionErrf("chain: at least one source is required")
	}
	for _, src := range sources {
		if src.diverged() {
			return nil, compositionErrf("chain: source must be stored or loaded before chaining")
		}
	}
	return &chainView[K, V]{sources: sources}, nil
}

type chainView[K, V any] struct {
	sources []View[K, V]
}

func (c *chainView[K, V]) DB() *Database         { return c.sources[0].DB() }
func (c *chainView[K, V]) diverged() bool        { return true }
func (c *chainView[K, V]) keyLess(a, b K) bool   { return c.sources[0].keyLess(a, b) }

func (c *chainView[K, V]) Get(k K) (v V, ok bool, err error) {
	for _, src := range c.sources {
		v, ok, err = src.Get(k)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return v, false, nil
}

func (c *chainView[K, V]) ContainsKey(k K) (bool, error) {
	for _, src := range c.sources {
		ok, err := src.ContainsKey(k)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (c *chainView[K, V]) IsEmpty() (bool, error) {
	_, _, ok, err := c.First()
	return !ok, err
}

func (c *chainView[K, V]) keyEqual(a, b K) bool { return !c.keyLess(a, b) && !c.keyLess(b, a) }

func (c *chainView[K, V]) scan(lo, hi Bound[K], reverse bool) iter.Seq2[Entry[K, V], error] {
	return func(yield func(Entry[K, V], error) bool) {
		n := len(c.sources)
		nexts := make([]func() (Entry[K, V], error, bool), n)
		curK := make([]K, n)
		curV := make([]V, n)
		curErr := make([]error, n)
		curOk := make([]bool, n)
		for i, src := range c.sources {
			var seq iter.Seq2[Entry[K, V], error]
			if reverse {
				seq = src.RangeReverse(lo, hi)
			} else {
				seq = src.Range(lo, hi)
			}
			next, stop := iter.Pull2(seq)
			defer stop()
			nexts[i] = next
			curK[i], curV[i], curErr[i], curOk[i] = pull2Entry(next())
		}

		for {
			haveAny := false
			var target K
			for i := 0; i < n; i++ {
				if !curOk[i] {
					continue
				}
				if curErr[i] != nil {
					yield(Entry[K, V]{}, curErr[i])
					return
				}
				switch {
				case !haveAny:
					target, haveAny = curK[i], true
				case reverse && c.keyLess(target, curK[i]):
					target = curK[i]
				case !reverse && c.keyLess(curK[i], target):
					target = curK[i]
				}
			}
			if !haveAny {
				return
			}

			winner := -1
			for i := 0; i < n; i++ {
				if curOk[i] && c.keyEqual(curK[i], target) {
					winner = i
					break
				}
			}
			if !yield(Entry[K, V]{Key: target, Val: curV[winner]}, nil) {
				return
			}
			for i := 0; i < n; i++ {
				if curOk[i] && c.keyEqual(curK[i], target) {
					curK[i], curV[i], curErr[i], curOk[i] = pull2Entry(nexts[i]())
				}
			}
		}
	}
}

func pull2Entry[K, V any](e Entry[K, V], err error, ok bool) (K, V, error, bool) {
	return e.Key, e.Val, err, ok
}

func (c *chainView[K, V]) Iter() iter.Seq2[Entry[K, V], error] {
	return c.scan(Unbounded[K](), Unbounded[K](), false)
}

func (c *chainView[K, V]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	return c.scan(lo, hi, false)
}

func (c *chainView[K, V]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	return c.scan(lo, hi, true)
}

func (c *chainView[K, V]) First() (k K, v V, ok bool, err error) {
	for e, ferr := range c.Iter() {
		if ferr != nil {
			return k, v, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v, false, nil
}

func (c *chainView[K, V]) Last() (k K, v V, ok bool, err error) {
	for e, ferr := range c.RangeReverse(Unbounded[K](), Unbounded[K]()) {
		if ferr != nil {
			return k, v, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return k, v, false, nil
}

func (c *chainView[K, V]) GetLT(k K) (rk K, rv V, ok bool, err error) {
	for e, ferr := range c.RangeReverse(Unbounded[K](), Excl(k)) {
		if ferr != nil {
			return rk, rv, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, rv, false, nil
}

func (c *chainView[K, V]) GetGT(k K) (rk K, rv V, ok bool, err error) {
	for e, ferr := range c.Range(Excl(k), Unbounded[K]()) {
		if ferr != nil {
			return rk, rv, false, ferr
		}
		return e.Key, e.Val, true, nil
	}
	return rk, rv, false, nil
}

// winningValue recomputes the current winner for k, using srcIdx's fresh
// (event-carried) value in place of a live Get against srcIdx itself;
// sources earlier in the list still take precedence over it. Used to
// translate a single source's event into a chain-level event without
// rescanning everything.
func (c *chainView[K, V]) winningValue(k K, srcIdx int, fresh V, hasFresh bool) (v V, ok bool, err error) {
	for i, src := range c.sources {
		if i == srcIdx {
			if hasFresh {
				return fresh, true, nil
			}
			continue
		}
		v, ok, err = src.Get(k)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return v, false, nil
}

func (c *chainView[K, V]) Watch() *Watcher[K, V] {
	w := &Watcher[K, V]{events: make(chan ChangeEvent[K, V], defaultWatchBuffer)}
	ctx, cancel := context.WithCancel(context.Background())
	upstreams := make([]*Watcher[K, V], len(c.sources))
	for i, src := range c.sources {
		upstreams[i] = src.Watch()
	}
	var wg sync.WaitGroup
	wg.Add(len(upstreams))
	w.closeFn = func() {
		cancel()
		wg.Wait()
		close(w.events)
		for _, up := range upstreams {
			up.Close()
		}
	}
	for i, up := range upstreams {
		go c.pumpChainWatch(ctx, &wg, i, up, w)
	}
	return w
}

func (c *chainView[K, V]) pumpChainWatch(ctx context.Context, wg *sync.WaitGroup, idx int, up *Watcher[K, V], w *Watcher[K, V]) {
	defer wg.Done()
	for {
		select {
		case ev, ok := <-up.Events():
			if !ok {
				return
			}
			out, keep := c.translateChainEvent(idx, ev)
			if !keep {
				continue
			}
			select {
			case w.events <- out:
			default:
				w.lagged.Add(1)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *chainView[K, V]) translateChainEvent(idx int, ev ChangeEvent[K, V]) (ChangeEvent[K, V], bool) {
	if ev.Kind == ChangeClear {
		return ev, true
	}
	v, ok, err := c.winningValue(ev.Key, idx, ev.New, ev.HasNew)
	if err != nil || !ok {
		return removeEvent[K, V](ev.Key, ev.Old), true
	}
	return insertEvent[K, V](ev.Key, v, ev.Old, ev.HasOld), true
}

func (c *chainView[K, V]) subscribe(ctx context.Context) (*subscription[K, V], error) {
	s := newTranslatedSubscription[K, V]()
	subs := make([]*subscription[K, V], len(c.sources))
	for i, src := range c.sources {
		sub, err := src.subscribe(ctx)
		if err != nil {
			for _, opened := range subs[:i] {
				opened.Close()
			}
			return nil, err
		}
		subs[i] = sub
	}
	for i, sub := range subs {
		go c.pumpChainSubscribe(ctx, i, sub, s)
	}
	closeFn := s.closeFn
	s.closeFn = func() {
		closeFn()
		for _, sub := range subs {
			sub.Close()
		}
	}
	return s, nil
}

func (c *chainView[K, V]) pumpChainSubscribe(ctx context.Context, idx int, up *subscription[K, V], s *subscription[K, V]) {
	for {
		ev, err := up.Next(ctx)
		if err != nil {
			return
		}
		out, keep := c.translateChainEvent(idx, ev)
		if !keep {
			continue
		}
		if err := s.q.Add(ctx, out); err != nil {
			return
		}
	}
}
