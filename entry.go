package flux

// TreeEntry is a get-or-insert handle on one key of a Tree, for callers
// that want to read-then-maybe-write a key without a separate round trip.
type TreeEntry[K, V any] struct {
	tree *Tree[K, V]
	key  K
	val  V
	has  bool
}

// Entry looks up k once and returns a handle for acting on it further.
func (t *Tree[K, V]) Entry(k K) (*TreeEntry[K, V], error) {
	v, ok, err := t.Get(k)
	if err != nil {
		return nil, err
	}
	return &TreeEntry[K, V]{tree: t, key: k, val: v, has: ok}, nil
}

// OrInsertWith returns the entry's current value, first inserting f()'s
// result if the key was absent.
func (e *TreeEntry[K, V]) OrInsertWith(f func() V) (V, error) {
	if e.has {
		return e.val, nil
	}
	v := f()
	if _, _, err := e.tree.Insert(e.key, v); err != nil {
		return v, err
	}
	e.val, e.has = v, true
	return v, nil
}

// Get returns the entry's value as it stood when Entry was called, without
// re-reading the tree.
func (e *TreeEntry[K, V]) Get() (V, bool) { return e.val, e.has }

// Remove deletes the entry's key from its tree, returning whatever was
// stored there.
func (e *TreeEntry[K, V]) Remove() (V, bool, error) {
	old, had, err := e.tree.Remove(e.key)
	if err != nil {
		return old, had, err
	}
	e.has = false
	return old, had, nil
}
