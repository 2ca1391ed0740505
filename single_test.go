package flux

import "testing"

func TestSingleGetSetClear(t *testing.T) {
	db := setup(t)
	cfg, err := OpenSingle[string](db, "config")
	noerr(t, err)

	_, ok, err := cfg.Get()
	noerr(t, err)
	isnil(t, ok)

	old, hadOld, err := cfg.Set("v1")
	noerr(t, err)
	isnil(t, hadOld)
	deepEqual(t, old, "")

	v, ok, err := cfg.Get()
	noerr(t, err)
	isnonnil(t, ok)
	deepEqual(t, v, "v1")

	old, hadOld, err = cfg.Set("v2")
	noerr(t, err)
	isnonnil(t, hadOld)
	deepEqual(t, old, "v1")

	noerr(t, cfg.Clear())
	_, ok, err = cfg.Get()
	noerr(t, err)
	isnil(t, ok)
}

func TestSingleWatch(t *testing.T) {
	db := setup(t)
	cfg, err := OpenSingle[int](db, "counter")
	noerr(t, err)

	w := cfg.Watch()
	defer w.Close()

	_, _, err = cfg.Set(42)
	noerr(t, err)

	ev := <-w.Events()
	deepEqual(t, ev.Kind, ChangeInsert)
	deepEqual(t, ev.New, 42)
}
