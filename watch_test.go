package flux

import (
	"errors"
	"testing"
)

func TestWatcherDeliversInsert(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	w := tr.Watch()
	defer w.Close()

	_, _, err := tr.Insert(1, 10)
	noerr(t, err)

	ev := <-w.Events()
	deepEqual(t, ev.Kind, ChangeInsert)
	deepEqual(t, ev.Key, 1)
	deepEqual(t, ev.New, 10)
	deepEqual(t, ev.HasOld, false)
}

func TestWatcherDeliversRemoveAndClear(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	_, _, err := tr.Insert(1, 10)
	noerr(t, err)

	w := tr.Watch()
	defer w.Close()

	_, _, err = tr.Remove(1)
	noerr(t, err)
	ev := <-w.Events()
	deepEqual(t, ev.Kind, ChangeRemove)
	deepEqual(t, ev.Old, 10)

	_, _, err = tr.Insert(2, 20)
	noerr(t, err)
	<-w.Events()

	noerr(t, tr.Clear())
	ev = <-w.Events()
	deepEqual(t, ev.Kind, ChangeClear)
}

// A Watcher never blocks the writer: once its buffer is full, further
// events are dropped and counted by Lagged instead of being queued.
func TestWatcherLaggedDropsAndResets(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	w := tr.Watch()
	defer w.Close()

	total := defaultWatchBuffer + 25
	for i := 0; i < total; i++ {
		_, _, err := tr.Insert(i, i)
		noerr(t, err)
	}

	if got := w.Lagged(); got != 25 {
		t.Fatalf("** Lagged() = %d, wanted 25", got)
	}
	if got := w.Lagged(); got != 0 {
		t.Fatalf("** Lagged() after read = %d, wanted 0 (should reset)", got)
	}

	drained := 0
	for {
		select {
		case <-w.Events():
			drained++
		default:
			deepEqual(t, drained, defaultWatchBuffer)
			return
		}
	}
}

func TestWatcherLaggedErrWrapsCount(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	w := tr.Watch()
	defer w.Close()

	if err := w.LaggedErr(); err != nil {
		t.Fatalf("** LaggedErr() = %v, wanted nil before any drops", err)
	}

	total := defaultWatchBuffer + 7
	for i := 0; i < total; i++ {
		_, _, err := tr.Insert(i, i)
		noerr(t, err)
	}

	err := w.LaggedErr()
	var lagErr *SubscriptionLaggedError
	if err == nil {
		t.Fatalf("** LaggedErr() = nil, wanted *SubscriptionLaggedError")
	}
	if !errors.As(err, &lagErr) {
		t.Fatalf("** LaggedErr() = %v, wanted *SubscriptionLaggedError", err)
	}
	deepEqual(t, lagErr.Missed, 7)

	if err := w.LaggedErr(); err != nil {
		t.Fatalf("** LaggedErr() after read = %v, wanted nil (should reset)", err)
	}
}

func TestWatcherCloseStopsDelivery(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	w := tr.Watch()
	w.Close()

	_, _, err := tr.Insert(1, 1)
	noerr(t, err)

	assertWatcherClosed(t, w)
}

func assertWatcherClosed[K, V any](t testing.TB, w *Watcher[K, V]) {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if ok {
			t.Fatalf("** got event %v after Close, wanted closed channel", ev)
		}
	default:
		t.Fatalf("** Events() channel not closed after Close")
	}
}

// translateWatch (used by Map/Filter/FilterMap) must close its own
// channel once its pump goroutine has actually stopped, not just tear
// down its upstream subscription.
func TestMapWatcherCloseStopsDelivery(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	mapped, err := Map[int, int, int](tr, func(k, v int) int { return v * 2 })
	noerr(t, err)

	w := mapped.Watch()
	w.Close()

	_, _, err = tr.Insert(1, 1)
	noerr(t, err)

	assertWatcherClosed(t, w)
}

// Chain's Watch fans out over every source's own Watcher; Close must wait
// for all of its pump goroutines to exit before closing its own channel.
func TestChainWatcherCloseStopsDelivery(t *testing.T) {
	db := setup(t)
	a := openIntTree(t, db, "a")
	b := openIntTree(t, db, "b")
	chained, err := Chain[int, int](a, b)
	noerr(t, err)

	w := chained.Watch()
	w.Close()

	_, _, err = a.Insert(1, 1)
	noerr(t, err)
	_, _, err = b.Insert(2, 2)
	noerr(t, err)

	assertWatcherClosed(t, w)
}

func TestZipWatcherCloseStopsDelivery(t *testing.T) {
	db := setup(t)
	a := openIntTree(t, db, "a")
	b := openIntTree(t, db, "b")
	zipped, err := Zip[int, int, int](a, b)
	noerr(t, err)

	w := zipped.Watch()
	w.Close()

	_, _, err = a.Insert(1, 1)
	noerr(t, err)

	assertWatcherClosed(t, w)
}
