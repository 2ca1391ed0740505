package flux

import (
	"context"
	"iter"
)

// Entry is one key-value pair yielded by View.Iter/Range.
type Entry[K, V any] struct {
	Key K
	Val V
}

// View is the read-only capability set shared by every tree and every
// combinator result. Iter/Range yield (Entry, error) pairs rather than
// plain Entry values so that a failure (such as a decode error on one key)
// is reported in-band. A sequence ends right after yielding its first
// non-nil error: entries after the failing one are not visited.
//
// View is intentionally unimplementable outside this package (subscribe is
// unexported): every concrete View is either a Tree, a MaterializedView,
// or a combinator result built by this package's own constructors.
type View[K, V any] interface {
	DB() *Database

	IsEmpty() (bool, error)
	ContainsKey(k K) (bool, error)
	Get(k K) (V, bool, error)
	GetLT(k K) (K, V, bool, error)
	GetGT(k K) (K, V, bool, error)
	First() (K, V, bool, error)
	Last() (K, V, bool, error)

	Iter() iter.Seq2[Entry[K, V], error]
	Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error]
	RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error]

	Watch() *Watcher[K, V]

	// diverged reports whether this view's key space differs from its
	// source(s) (transform, index) or has more than one source (chain,
	// zip). Such views may still be read directly, but passing one as the
	// source argument to another combinator is a CompositionError: it must
	// be Store'd or Load'ed first.
	diverged() bool

	// subscribe returns a reliable feed of this view's own change events,
	// translating from its source(s) as needed. Diverged views (chain, zip)
	// return a feed too: that is what Store/Load consume to materialize
	// them.
	subscribe(ctx context.Context) (*subscription[K, V], error)

	// keyLess reports the view's key order, the same order its Iter/Range
	// walk in. Every View in this package ultimately derives it from a
	// KeyCodec, directly or by delegating to a source.
	keyLess(a, b K) bool
}

// Writable is a View that can also be mutated directly. Materialized views
// are deliberately not Writable: they are kept current only by their
// propagation worker.
type Writable[K, V any] interface {
	View[K, V]
	Insert(k K, v V) (V, bool, error)
	Remove(k K) (V, bool, error)
	Clear() error
}
