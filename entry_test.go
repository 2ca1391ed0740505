package flux

import "testing"

func TestTreeEntryOrInsertWith(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	e, err := tr.Entry(1)
	noerr(t, err)

	calls := 0
	v, err := e.OrInsertWith(func() int { calls++; return 42 })
	noerr(t, err)
	deepEqual(t, v, 42)
	deepEqual(t, calls, 1)

	stored, ok, err := tr.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, stored, 42)

	// A second OrInsertWith on a freshly looked-up entry sees the stored
	// value and must not call f again.
	e2, err := tr.Entry(1)
	noerr(t, err)
	v2, err := e2.OrInsertWith(func() int { calls++; return 99 })
	noerr(t, err)
	deepEqual(t, v2, 42)
	deepEqual(t, calls, 1)
}

func TestTreeEntryGetAndRemove(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	_, _, err := tr.Insert(1, 7)
	noerr(t, err)

	e, err := tr.Entry(1)
	noerr(t, err)
	v, ok := e.Get()
	isnonnil(t, ok)
	deepEqual(t, v, 7)

	old, had, err := e.Remove()
	noerr(t, err)
	isnonnil(t, had)
	deepEqual(t, old, 7)

	_, ok = e.Get()
	isnil(t, ok)

	_, ok, err = tr.Get(1)
	noerr(t, err)
	isnil(t, ok)
}

func TestTreeEntryAbsentGet(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	e, err := tr.Entry(5)
	noerr(t, err)
	_, ok := e.Get()
	isnil(t, ok)
}
