package flux

import (
	"sort"
	"testing"
)

// Chain prefers the earliest source on key collision and otherwise merges
// by key order across all sources.
func TestChainLeftWins(t *testing.T) {
	db := setup(t)
	a := openIntTree(t, db, "a")
	b := openIntTree(t, db, "b")

	for _, k := range []int{1, 3, 5} {
		_, _, err := a.Insert(k, k*100)
		noerr(t, err)
	}
	for _, k := range []int{3, 4, 5} {
		_, _, err := b.Insert(k, k*1000)
		noerr(t, err)
	}

	chained, err := Chain[int, int](a, b)
	noerr(t, err)

	var got []Entry[int, int]
	for e, ferr := range chained.Iter() {
		noerr(t, ferr)
		got = append(got, e)
	}
	want := []Entry[int, int]{
		{Key: 1, Val: 100},
		{Key: 3, Val: 300},
		{Key: 4, Val: 4000},
		{Key: 5, Val: 500},
	}
	deepEqual(t, got, want)

	v, ok, err := chained.Get(3)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 300)
}

// Zip includes every key from either side, with HasA/HasB reflecting
// which side actually contributed it.
func TestZipCompleteness(t *testing.T) {
	db := setup(t)
	a := openIntTree(t, db, "a")
	b := openIntTree(t, db, "b")

	_, _, err := a.Insert(1, 10)
	noerr(t, err)
	_, _, err = a.Insert(2, 20)
	noerr(t, err)
	_, _, err = b.Insert(2, 200)
	noerr(t, err)
	_, _, err = b.Insert(3, 300)
	noerr(t, err)

	zipped, err := Zip[int, int, int](a, b)
	noerr(t, err)

	v1, ok, err := zipped.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v1, Zipped[int, int]{A: 10, HasA: true})

	v2, ok, err := zipped.Get(2)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v2, Zipped[int, int]{A: 20, HasA: true, B: 200, HasB: true})

	v3, ok, err := zipped.Get(3)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v3, Zipped[int, int]{B: 300, HasB: true})
}

// FilterReducer can reject an update (dropping to a Remove) as well as
// accept it, and leaves entries at other keys untouched.
func TestFilterReducerOtherKeysUnchanged(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	_, _, err := tr.Insert(9, 999)
	noerr(t, err)

	positives := FilterReducer[int, int](tr, func(old int, hasOld bool, add int) (int, bool) {
		if add < 0 {
			return 0, false
		}
		if hasOld {
			return old + add, true
		}
		return add, true
	})

	_, _, err = positives.Insert(1, 5)
	noerr(t, err)
	v, ok, err := tr.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 5)

	_, _, err = positives.Insert(1, -5)
	noerr(t, err)
	_, ok, err = tr.Get(1)
	noerr(t, err)
	isnil(t, ok)

	v, ok, err = tr.Get(9)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 999)
}

// Transform fans a source row out to several derived keys, and retracts
// the old fan-out when the source row changes.
func TestTransformMultisetAndRetraction(t *testing.T) {
	db := setup(t)
	tree, err := OpenTree[int, string](db, "words", WithAutoInc[int, string](IntAutoInc[int]{}))
	noerr(t, err)

	_, _, err = tree.Insert(1, "red green")
	noerr(t, err)
	_, _, err = tree.Insert(2, "green blue")
	noerr(t, err)

	tr, err := Transform[int, string, string, int](tree, func(k int, v string) []Pair[string, int] {
		var pairs []Pair[string, int]
		word := ""
		flush := func() {
			if word != "" {
				pairs = append(pairs, Pair[string, int]{Key: word, Val: k})
				word = ""
			}
		}
		for _, r := range v {
			if r == ' ' {
				flush()
				continue
			}
			word += string(r)
		}
		flush()
		return pairs
	})
	noerr(t, err)

	mv, err := tr.Load()
	noerr(t, err)
	defer mv.Close()

	green, ok, err := mv.Get("green")
	noerr(t, err)
	isnonnil(t, ok)
	sort.Ints(green)
	deepEqual(t, green, []int{1, 2})

	_, _, err = tree.Insert(1, "yellow")
	noerr(t, err)
	mv.Sync().Wait()

	_, ok, err = mv.Get("red")
	noerr(t, err)
	isnil(t, ok)

	green, ok, err = mv.Get("green")
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, green, []int{2})

	yellow, ok, err := mv.Get("yellow")
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, yellow, []int{1})
}

// Store keeps a sink current with its source, including across Clear.
func TestStorePropagatesClear(t *testing.T) {
	db := setup(t)
	src := openIntTree(t, db, "src")
	for i := 0; i < 5; i++ {
		_, _, err := src.Insert(i, i)
		noerr(t, err)
	}

	mv, err := Store[int, int](src, "sink")
	noerr(t, err)
	defer mv.Close()

	empty, err := mv.IsEmpty()
	noerr(t, err)
	isnil(t, empty)

	noerr(t, src.Clear())
	mv.Sync().Wait()

	empty, err = mv.IsEmpty()
	noerr(t, err)
	isnonnil(t, empty)
}
