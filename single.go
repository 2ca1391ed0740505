package flux

import "context"

// Single is a Tree specialized to hold exactly one value, with no key of
// its own. It mirrors the teacher's singleton-key tables.
type Single[T any] struct {
	tree *Tree[struct{}, T]
}

func (s *Single[T]) DB() *Database { return s.tree.DB() }

// Get returns the current value, or ok=false if none has been set.
func (s *Single[T]) Get() (T, bool, error) {
	return s.tree.Get(struct{}{})
}

// Set stores v, returning the previous value if any.
func (s *Single[T]) Set(v T) (T, bool, error) {
	return s.tree.Insert(struct{}{}, v)
}

// Clear removes the stored value, if any.
func (s *Single[T]) Clear() error {
	return s.tree.Clear()
}

// Watch streams changes to this Single's one value.
func (s *Single[T]) Watch() *Watcher[struct{}, T] { return s.tree.Watch() }

func (s *Single[T]) subscribe(ctx context.Context) (*subscription[struct{}, T], error) {
	return s.tree.subscribe(ctx)
}
