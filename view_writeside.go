package flux

// Reducer wraps a Writable so every Insert is combined with any existing
// value via r instead of overwriting it outright.
func Reducer[K, V any](w Writable[K, V], r func(old V, hasOld bool, add V) V) Writable[K, V] {
	return &reducerWritable[K, V]{Writable: w, r: r}
}

type reducerWritable[K, V any] struct {
	Writable[K, V]
	r func(old V, hasOld bool, add V) V
}

func (rw *reducerWritable[K, V]) Insert(k K, v V) (old V, hadOld bool, err error) {
	old, hadOld, err = rw.Writable.Get(k)
	if err != nil {
		return old, hadOld, err
	}
	merged := rw.r(old, hadOld, v)
	_, _, err = rw.Writable.Insert(k, merged)
	return old, hadOld, err
}

// FilterReducer is Reducer with a predicate-bearing reduction: r may report
// keep=false to have the combined value removed instead of stored, letting
// a reduction retract a key once it no longer has useful content.
func FilterReducer[K, V any](w Writable[K, V], r func(old V, hasOld bool, add V) (V, bool)) Writable[K, V] {
	return &filterReducerWritable[K, V]{Writable: w, r: r}
}

type filterReducerWritable[K, V any] struct {
	Writable[K, V]
	r func(old V, hasOld bool, add V) (V, bool)
}

func (rw *filterReducerWritable[K, V]) Insert(k K, v V) (old V, hadOld bool, err error) {
	old, hadOld, err = rw.Writable.Get(k)
	if err != nil {
		return old, hadOld, err
	}
	merged, keep := rw.r(old, hadOld, v)
	if keep {
		_, _, err = rw.Writable.Insert(k, merged)
	} else if hadOld {
		_, _, err = rw.Writable.Remove(k)
	}
	return old, hadOld, err
}

// Inserter adapts a sink of a different value type V2 to accept inserts of
// V, via f. Because f cannot in general be inverted, Inserter cannot report
// a meaningful "previous value of type V" and therefore does not implement
// Writable[K, V]: it offers only Insert, Remove and Clear.
type Inserter[K, V, V2 any] struct {
	sink Writable[K, V2]
	f    func(K, V) V2
}

func NewInserter[K, V, V2 any](sink Writable[K, V2], f func(K, V) V2) *Inserter[K, V, V2] {
	return &Inserter[K, V, V2]{sink: sink, f: f}
}

func (in *Inserter[K, V, V2]) Insert(k K, v V) error {
	_, _, err := in.sink.Insert(k, in.f(k, v))
	return err
}

func (in *Inserter[K, V, V2]) Remove(k K) (V2, bool, error) {
	return in.sink.Remove(k)
}

func (in *Inserter[K, V, V2]) Clear() error { return in.sink.Clear() }

// FilterInserter is Inserter with a predicate-bearing transform: f may
// report keep=false to drop the write entirely.
type FilterInserter[K, V, V2 any] struct {
	sink Writable[K, V2]
	f    func(K, V) (V2, bool)
}

func NewFilterInserter[K, V, V2 any](sink Writable[K, V2], f func(K, V) (V2, bool)) *FilterInserter[K, V, V2] {
	return &FilterInserter[K, V, V2]{sink: sink, f: f}
}

func (fi *FilterInserter[K, V, V2]) Insert(k K, v V) error {
	v2, keep := fi.f(k, v)
	if !keep {
		return nil
	}
	_, _, err := fi.sink.Insert(k, v2)
	return err
}

func (fi *FilterInserter[K, V, V2]) Remove(k K) (V2, bool, error) {
	return fi.sink.Remove(k)
}

func (fi *FilterInserter[K, V, V2]) Clear() error { return fi.sink.Clear() }
