package flux

import "context"

// translateWatch wraps an upstream Watcher, translating (and optionally
// dropping) each event as it arrives. It is how every lazy, key-preserving
// combinator (map, filter, filter_map) implements Watch without needing a
// materialized sink of its own.
func translateWatch[K, V, V2 any](up *Watcher[K, V], tr func(ChangeEvent[K, V]) (ChangeEvent[K, V2], bool)) *Watcher[K, V2] {
	w := &Watcher[K, V2]{events: make(chan ChangeEvent[K, V2], defaultWatchBuffer)}
	done := make(chan struct{})
	pumpDone := make(chan struct{})
	w.closeFn = func() {
		close(done)
		<-pumpDone
		close(w.events)
		up.Close()
	}
	go func() {
		defer close(pumpDone)
		for {
			select {
			case ev, ok := <-up.Events():
				if !ok {
					return
				}
				out, keep := tr(ev)
				if !keep {
					continue
				}
				select {
				case w.events <- out:
				default:
					w.lagged.Add(1)
				}
			case <-done:
				return
			}
		}
	}()
	return w
}

// translateSubscribe is the reliable counterpart to translateWatch, used by
// propagation workers reading through a chain of lazy combinators.
func translateSubscribe[K, V, V2 any](ctx context.Context, src View[K, V], tr func(ChangeEvent[K, V]) (ChangeEvent[K, V2], bool)) (*subscription[K, V2], error) {
	up, err := src.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	s := newTranslatedSubscription[K, V2]()
	go func() {
		for {
			ev, err := up.Next(ctx)
			if err != nil {
				return
			}
			out, keep := tr(ev)
			if !keep {
				continue
			}
			if err := s.q.Add(ctx, out); err != nil {
				return
			}
		}
	}()
	closeFn := s.closeFn
	s.closeFn = func() {
		closeFn()
		up.Close()
	}
	return s, nil
}
