package flux

import "bytes"

// Bound is one endpoint of a Range. The mnemonic constructors follow the
// teacher's own convention: O means open (unbounded), I means inclusive, E
// means exclusive.
type Bound[K any] struct {
	key K
	has bool
	inc bool
}

// Unbounded returns an open endpoint.
func Unbounded[K any]() Bound[K] { return Bound[K]{} }

// Incl returns an inclusive endpoint at k.
func Incl[K any](k K) Bound[K] { return Bound[K]{key: k, has: true, inc: true} }

// Excl returns an exclusive endpoint at k.
func Excl[K any](k K) Bound[K] { return Bound[K]{key: k, has: true, inc: false} }

// rawRange is the byte-level range primitive, ported from the teacher's
// RawRange: it knows nothing about K, only about comparing and seeking
// encoded key bytes.
type rawRange struct {
	lower    []byte
	upper    []byte
	lowerInc bool
	upperInc bool
	reverse  bool
}

func (r *rawRange) start(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	var skipInitial bool
	if r.reverse {
		if r.upper != nil {
			skipInitial = !r.upperInc
			k, v = bcur.SeekLast(r.upper)
		} else {
			k, v = bcur.Last()
		}
	} else {
		if r.lower != nil {
			skipInitial = !r.lowerInc
			k, v = bcur.Seek(r.lower)
		} else {
			k, v = bcur.First()
		}
	}
	if k != nil && r.match(k) {
		if skipInitial && bytes.Equal(k, pick(r.reverse, r.upper, r.lower)) {
			return r.next(bcur)
		}
		return k, v
	}
	return nil, nil
}

func (r *rawRange) next(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	if r.reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	if k != nil && r.match(k) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) match(k []byte) bool {
	if r.reverse {
		if lower := r.lower; lower != nil {
			cmp := bytes.Compare(k, lower)
			if cmp < 0 || (cmp == 0 && !r.lowerInc) {
				return false
			}
		}
	} else {
		if upper := r.upper; upper != nil {
			cmp := bytes.Compare(k, upper)
			if cmp > 0 || (cmp == 0 && !r.upperInc) {
				return false
			}
		}
	}
	return true
}

func pick(reverse bool, a, b []byte) []byte {
	if reverse {
		return a
	}
	return b
}

type rawRangeCursor struct {
	rang rawRange
	bcur storageCursor
	k, v []byte
	init bool
}

func (c *rawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur)
	}
	return c.k != nil
}

func (c *rawRangeCursor) Key() []byte   { return c.k }
func (c *rawRangeCursor) Value() []byte { return c.v }
