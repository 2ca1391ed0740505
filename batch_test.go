package flux

import "testing"

func TestBatchAppliesAtomicallyAndPublishesEvents(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")

	_, _, err := tr.Insert(1, 100)
	noerr(t, err)

	w := tr.Watch()
	defer w.Close()

	var b Batch[int, int]
	b.Insert(1, 111)
	b.Insert(2, 200)
	b.Remove(3) // absent key: no-op, no event
	deepEqual(t, b.Len(), 3)

	noerr(t, tr.ApplyBatch(&b))

	v, ok, err := tr.Get(1)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 111)

	v, ok, err = tr.Get(2)
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, 200)

	ev := <-w.Events()
	deepEqual(t, ev.Kind, ChangeInsert)
	deepEqual(t, ev.Key, 1)
	deepEqual(t, ev.New, 111)
	deepEqual(t, ev.HasOld, true)
	deepEqual(t, ev.Old, 100)

	ev = <-w.Events()
	deepEqual(t, ev.Kind, ChangeInsert)
	deepEqual(t, ev.Key, 2)
	deepEqual(t, ev.New, 200)
	deepEqual(t, ev.HasOld, false)

	select {
	case ev := <-w.Events():
		t.Fatalf("** unexpected extra event %v", ev)
	default:
	}
}

func TestBatchRemove(t *testing.T) {
	db := setup(t)
	tr := openIntTree(t, db, "nums")
	_, _, err := tr.Insert(1, 10)
	noerr(t, err)
	_, _, err = tr.Insert(2, 20)
	noerr(t, err)

	var b Batch[int, int]
	b.Remove(1)
	b.Remove(2)
	noerr(t, tr.ApplyBatch(&b))

	_, ok, err := tr.Get(1)
	noerr(t, err)
	isnil(t, ok)
	_, ok, err = tr.Get(2)
	noerr(t, err)
	isnil(t, ok)
}
