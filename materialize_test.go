package flux

import "testing"

// A propagation worker that hits a StorageError marks its view degraded
// and stops for good; every subsequent read returns that error instead of
// silently serving a sink that has stopped tracking its source.
func TestStoreDegradesOnStorageError(t *testing.T) {
	db := setup(t)
	src := openIntTree(t, db, "src")
	_, _, err := src.Insert(1, 10)
	noerr(t, err)

	// Load, not Store: its sink lives in its own anonymous Database, so
	// closing just that storage leaves src free to keep publishing events
	// for the worker to fail on, instead of the write into src itself
	// failing for the same reason.
	mv, err := Load[int, int](src)
	noerr(t, err)
	defer mv.Close()

	v, ok, err := mv.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 10)

	noerr(t, mv.ownDB.st.Close())

	_, _, err = src.Insert(2, 20)
	noerr(t, err)

	mv.Sync().Wait()

	if _, _, err := mv.Get(1); err == nil {
		t.Fatalf("** Get on degraded view returned nil error")
	}
	if _, err := mv.IsEmpty(); err == nil {
		t.Fatalf("** IsEmpty on degraded view returned nil error")
	}
	for e, err := range mv.Iter() {
		if err == nil {
			t.Fatalf("** Iter on degraded view yielded %v with nil error", e)
		}
		break
	}
}

// Re-Storeing onto an already-populated named sink (the durability
// scenario Store exists for, e.g. a process restart reopening the same
// bucket) rebuilds it from the source instead of doubling its contents.
func TestStoreReopenDoesNotDoubleContents(t *testing.T) {
	db := setup(t)
	src := openIntTree(t, db, "src")
	for i := 0; i < 3; i++ {
		_, _, err := src.Insert(i, i*10)
		noerr(t, err)
	}

	mv1, err := Store[int, int](src, "sink")
	noerr(t, err)
	mv1.Close()

	mv2, err := Store[int, int](src, "sink")
	noerr(t, err)
	defer mv2.Close()

	entries := collect(t, mv2)
	deepEqual(t, len(entries), 3)
	for _, e := range entries {
		deepEqual(t, e.Val, e.Key*10)
	}
}

// Same guarantee for Transform/Index's multiset sink: re-Storeing must not
// double every fan-out entry.
func TestTransformStoreReopenDoesNotDoubleContents(t *testing.T) {
	db := setup(t)
	src := openIntTree(t, db, "src")
	_, _, err := src.Insert(1, 100)
	noerr(t, err)

	tr, err := Transform[int, int, int, int](src, func(k, v int) []Pair[int, int] {
		return []Pair[int, int]{{Key: k, Val: v}}
	})
	noerr(t, err)

	mv1, err := tr.Store("xform")
	noerr(t, err)
	mv1.Close()

	mv2, err := tr.Store("xform")
	noerr(t, err)
	defer mv2.Close()

	v, ok, err := mv2.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, []int{100})
}

func TestWaitAllWaitsOnEveryRegisteredSync(t *testing.T) {
	db := setup(t)
	a := openIntTree(t, db, "a")
	b := openIntTree(t, db, "b")

	mvA, err := Store[int, int](a, "sinkA")
	noerr(t, err)
	defer mvA.Close()
	mvB, err := Store[int, int](b, "sinkB")
	noerr(t, err)
	defer mvB.Close()

	_, _, err = a.Insert(1, 1)
	noerr(t, err)
	_, _, err = b.Insert(2, 2)
	noerr(t, err)

	WaitAll()

	va, ok, err := mvA.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, va, 1)

	vb, ok, err := mvB.Get(2)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, vb, 2)
}
