package flux

import (
	"reflect"
	"testing"
)

func setup(t testing.TB) *Database {
	t.Helper()
	db := OpenMemory(Options{})
	t.Cleanup(func() { db.Close() })
	return db
}

func openIntTree(t testing.TB, db *Database, name string) *Tree[int, int] {
	t.Helper()
	tr, err := OpenTree[int, int](db, name, WithAutoInc[int, int](IntAutoInc[int]{}))
	if err != nil {
		t.Fatalf("OpenTree(%s) failed: %v", name, err)
	}
	return tr
}

func deepEqual[T any](t testing.TB, a, e T) {
	t.Helper()
	if !reflect.DeepEqual(a, e) {
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil(t testing.TB, ok bool) {
	t.Helper()
	if ok {
		t.Errorf("** got ok=true, wanted ok=false")
	}
}

func isnonnil(t testing.TB, ok bool) {
	t.Helper()
	if !ok {
		t.Errorf("** got ok=false, wanted ok=true")
	}
}

func noerr(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func collect[K, V any](t testing.TB, src View[K, V]) []Entry[K, V] {
	t.Helper()
	var out []Entry[K, V]
	for e, err := range src.Iter() {
		noerr(t, err)
		out = append(out, e)
	}
	return out
}
