package flux

import (
	"context"
	"strconv"
	"testing"
)

// S1: Map doubles every value.
func TestScenarioMapDoubles(t *testing.T) {
	db := setup(t)
	tree := openIntTree(t, db, "nums")
	for i := 0; i <= 100; i++ {
		_, _, err := tree.Insert(i, i)
		noerr(t, err)
	}

	doubled, err := Map[int, int, int](tree, func(_ int, v int) int { return v * 2 })
	noerr(t, err)

	for i := 0; i <= 100; i++ {
		v, ok, err := doubled.Get(i)
		noerr(t, err)
		isnonnil(t, ok)
		deepEqual(t, v, i*2)
	}
}

// S2: Index by string(k), Load it, then Map the loaded multiset down to
// its single element, and confirm the round trip recovers k.
func TestScenarioIndexLoadMap(t *testing.T) {
	db := setup(t)
	tree := openIntTree(t, db, "nums")
	for i := 0; i <= 100; i++ {
		_, _, err := tree.Insert(i, i)
		noerr(t, err)
	}

	idx, err := Index[int, int, string](tree, func(k int, _ int) []string { return []string{strconv.Itoa(k)} })
	noerr(t, err)

	loaded, err := idx.Load()
	noerr(t, err)
	defer loaded.Close()

	firstOf, err := Map[string, []int, int](loaded, func(_ string, v []int) int { return v[0] })
	noerr(t, err)

	for i := 0; i <= 100; i++ {
		v, ok, err := firstOf.Get(strconv.Itoa(i))
		noerr(t, err)
		isnonnil(t, ok)
		deepEqual(t, v, i)
	}
}

// S3: Zip a tree with its own doubled map, reading the result directly
// without Store/Load.
func TestScenarioZipDirect(t *testing.T) {
	db := setup(t)
	tree := openIntTree(t, db, "nums")
	for i := 0; i < 20; i++ {
		_, _, err := tree.Insert(i, i)
		noerr(t, err)
	}

	doubled, err := Map[int, int, int](tree, func(_ int, v int) int { return v * 2 })
	noerr(t, err)

	zipped, err := Zip[int, int, int](tree, doubled)
	noerr(t, err)

	count := 0
	for e, ferr := range zipped.Iter() {
		noerr(t, ferr)
		isnonnil(t, e.Val.HasA)
		isnonnil(t, e.Val.HasB)
		deepEqual(t, e.Val.A, e.Key)
		deepEqual(t, e.Val.B, e.Key*2)
		count++
	}
	deepEqual(t, count, 20)
}

// S4: Reducer sums repeated inserts at the same key.
func TestScenarioReducerSums(t *testing.T) {
	db := setup(t)
	tree := openIntTree(t, db, "sums")

	summed := Reducer[int, int](tree, func(old int, hasOld bool, add int) int {
		if hasOld {
			return old + add
		}
		return add
	})

	_, _, err := summed.Insert(1, 5)
	noerr(t, err)
	_, _, err = summed.Insert(1, 7)
	noerr(t, err)

	v, ok, err := tree.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 12)
}

// S5: Push assigns strictly increasing keys in insertion order.
func TestScenarioAutoIncrement(t *testing.T) {
	db := setup(t)
	tr, err := OpenTree[uint32, string](db, "log", WithAutoInc[uint32, string](UintAutoInc[uint32]{}))
	noerr(t, err)

	for i, s := range []string{"a", "b", "c"} {
		k, err := tr.Push(s)
		noerr(t, err)
		deepEqual(t, k, uint32(i))
	}

	var got []string
	for e, ferr := range tr.Iter() {
		noerr(t, ferr)
		got = append(got, e.Val)
	}
	deepEqual(t, got, []string{"a", "b", "c"})
}

// S6: Pipe propagates inserts from A into B, observable on B's Watcher
// once the pipe's Sync reports quiescent.
func TestScenarioPipeAndWatch(t *testing.T) {
	db := setup(t)
	a := openIntTree(t, db, "a")
	b := openIntTree(t, db, "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipe, err := NewPipe[int, int](ctx, a, b)
	noerr(t, err)
	defer pipe.Close()

	w := b.Watch()
	defer w.Close()

	_, _, err = a.Insert(1, 1)
	noerr(t, err)
	pipe.Sync().Wait()

	select {
	case ev := <-w.Events():
		deepEqual(t, ev.Kind, ChangeInsert)
		deepEqual(t, ev.Key, 1)
		deepEqual(t, ev.New, 1)
	default:
		t.Fatalf("** watcher delivered no event after pipe sync")
	}
}
