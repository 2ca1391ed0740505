package flux

import "testing"

func TestTreeRoundTrip(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	_, hadOld, err := tr.Insert(1, 100)
	noerr(t, err)
	isnil(t, hadOld)

	v, ok, err := tr.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 100)

	ok, err = tr.ContainsKey(1)
	noerr(t, err)
	isnonnil(t, ok)

	old, hadOld, err := tr.Remove(1)
	noerr(t, err)
	isnonnil(t, hadOld)
	deepEqual(t, old, 100)

	_, ok, err = tr.Get(1)
	noerr(t, err)
	isnil(t, ok)
}

func TestTreeOrdering(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	for _, k := range []int{5, 1, 9, 3, 7} {
		_, _, err := tr.Insert(k, k*10)
		noerr(t, err)
	}

	k, _, ok, err := tr.GetLT(7)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, k, 5)

	k, _, ok, err = tr.GetGT(5)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, k, 7)

	var keys []int
	for e, err := range tr.Iter() {
		noerr(t, err)
		keys = append(keys, e.Key)
	}
	deepEqual(t, keys, []int{1, 3, 5, 7, 9})
}

func TestTreeGetLTGTAtEdges(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	for _, k := range []int{10, 20, 30} {
		_, _, err := tr.Insert(k, k)
		noerr(t, err)
	}

	_, _, ok, err := tr.GetLT(10)
	noerr(t, err)
	isnil(t, ok)

	_, _, ok, err = tr.GetGT(30)
	noerr(t, err)
	isnil(t, ok)

	k, _, ok, err := tr.GetLT(25)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, k, 20)

	k, _, ok, err = tr.GetGT(25)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, k, 30)
}

func TestTreeClear(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	for i := 0; i < 5; i++ {
		_, _, err := tr.Insert(i, i)
		noerr(t, err)
	}
	noerr(t, tr.Clear())
	empty, err := tr.IsEmpty()
	noerr(t, err)
	isnonnil(t, empty)
}

func TestTreePush(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "queue")

	for i, want := range []int{0, 1, 2} {
		k, err := tr.Push(i * 100)
		noerr(t, err)
		deepEqual(t, k, want)
	}

	var keys []int
	for e, err := range tr.Iter() {
		noerr(t, err)
		keys = append(keys, e.Key)
	}
	deepEqual(t, keys, []int{0, 1, 2})
}

func TestTreePushStrictlyIncreasing(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "queue")

	_, _, err := tr.Insert(5, 0)
	noerr(t, err)
	k, err := tr.Push(0)
	noerr(t, err)
	if k <= 5 {
		t.Fatalf("Push returned %d, wanted strictly greater than 5", k)
	}
}

func TestAutoIncOverflow(t *testing.T) {
	db := setup(t)
	tr, err := OpenTree[uint8, int](db, "tiny", WithAutoInc[uint8, int](UintAutoInc[uint8]{}))
	noerr(t, err)

	_, _, err = tr.Insert(255, 0)
	noerr(t, err)
	_, err = tr.Push(0)
	if err == nil {
		t.Fatalf("Push at max key: expected AutoIncOverflowError, got nil")
	}
	var overflow *AutoIncOverflowError
	if _, ok := err.(*AutoIncOverflowError); !ok {
		t.Fatalf("Push at max key: got %T, wanted *AutoIncOverflowError", err)
	}
	_ = overflow
}
