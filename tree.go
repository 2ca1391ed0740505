package flux

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"sync"
)

// Tree is a typed, ordered mapping K -> V backed by one bucket in a
// Database. All reads and writes go through the tree's KeyCodec and Codec;
// every successful mutation publishes exactly one ChangeEvent to the
// tree's watchers and propagation subscribers.
type Tree[K, V any] struct {
	db       *Database
	name     string
	keyCodec KeyCodec[K]
	codec    Codec[V]
	autoInc  AutoInc[K]

	bus *broadcaster[K, V]

	pushMu sync.Mutex
}

var _ Writable[int, int] = (*Tree[int, int])(nil)

func (t *Tree[K, V]) DB() *Database  { return t.db }
func (t *Tree[K, V]) Name() string   { return t.name }
func (t *Tree[K, V]) diverged() bool { return false }

func (t *Tree[K, V]) keyLess(a, b K) bool { return bytes.Compare(t.encodeKey(a), t.encodeKey(b)) < 0 }

func (t *Tree[K, V]) encodeKey(k K) []byte { return t.keyCodec.Encode(nil, k) }
func (t *Tree[K, V]) decodeKey(b []byte) (K, error) { return t.keyCodec.Decode(b) }
func (t *Tree[K, V]) encodeVal(v V) []byte { return t.codec.Encode(nil, v) }
func (t *Tree[K, V]) decodeVal(b []byte) (V, error) { return t.codec.Decode(b) }

func (t *Tree[K, V]) withBucket(writable bool, f func(storageBucket) error) error {
	tx, err := t.db.st.BeginTx(writable)
	if err != nil {
		return storageErrf("begin", err)
	}
	defer tx.Rollback()
	buck := tx.Bucket(t.name, "")
	if buck == nil {
		return storageErrf("bucket "+t.name, ErrBucketNotFound)
	}
	if err := f(buck); err != nil {
		return err
	}
	if writable {
		if err := tx.Commit(); err != nil {
			return storageErrf("commit", err)
		}
	}
	return nil
}

func (t *Tree[K, V]) Get(k K) (v V, ok bool, err error) {
	kb := t.encodeKey(k)
	err = t.withBucket(false, func(b storageBucket) error {
		raw := b.Get(kb)
		if raw == nil {
			return nil
		}
		ok = true
		var derr error
		v, derr = t.decodeVal(raw)
		if derr != nil {
			return decodeErrf(t.name, raw, derr)
		}
		return nil
	})
	return
}

func (t *Tree[K, V]) ContainsKey(k K) (ok bool, err error) {
	kb := t.encodeKey(k)
	err = t.withBucket(false, func(b storageBucket) error {
		ok = b.Get(kb) != nil
		return nil
	})
	return
}

func (t *Tree[K, V]) IsEmpty() (empty bool, err error) {
	err = t.withBucket(false, func(b storageBucket) error {
		empty = b.KeyCount() == 0
		return nil
	})
	return
}

func (t *Tree[K, V]) decodeEntry(kb, vb []byte) (k K, v V, err error) {
	k, err = t.decodeKey(kb)
	if err != nil {
		return k, v, decodeErrf(t.name, kb, err)
	}
	v, err = t.decodeVal(vb)
	if err != nil {
		return k, v, decodeErrf(t.name, vb, err)
	}
	return k, v, nil
}

func (t *Tree[K, V]) First() (k K, v V, ok bool, err error) {
	err = t.withBucket(false, func(b storageBucket) error {
		kb, vb := b.Cursor().First()
		if kb == nil {
			return nil
		}
		ok = true
		k, v, err = t.decodeEntry(kb, vb)
		return err
	})
	return
}

func (t *Tree[K, V]) Last() (k K, v V, ok bool, err error) {
	err = t.withBucket(false, func(b storageBucket) error {
		kb, vb := b.Cursor().Last()
		if kb == nil {
			return nil
		}
		ok = true
		k, v, err = t.decodeEntry(kb, vb)
		return err
	})
	return
}

func (t *Tree[K, V]) GetLT(k K) (rk K, rv V, ok bool, err error) {
	kb := t.encodeKey(k)
	err = t.withBucket(false, func(b storageBucket) error {
		c := b.Cursor()
		fk, _ := c.Seek(kb)
		var kb2, vb2 []byte
		if fk == nil {
			kb2, vb2 = c.Last()
		} else {
			kb2, vb2 = c.Prev()
		}
		if kb2 == nil {
			return nil
		}
		ok = true
		rk, rv, err = t.decodeEntry(kb2, vb2)
		return err
	})
	return
}

func (t *Tree[K, V]) GetGT(k K) (rk K, rv V, ok bool, err error) {
	kb := t.encodeKey(k)
	err = t.withBucket(false, func(b storageBucket) error {
		c := b.Cursor()
		kb2, vb2 := c.Seek(kb)
		if kb2 == nil {
			return nil
		}
		if bytes.Equal(kb2, kb) {
			kb2, vb2 = c.Next()
			if kb2 == nil {
				return nil
			}
		}
		ok = true
		rk, rv, err = t.decodeEntry(kb2, vb2)
		return err
	})
	return
}

func (t *Tree[K, V]) Insert(k K, v V) (old V, hadOld bool, err error) {
	kb := t.encodeKey(k)
	vb := t.encodeVal(v)
	err = t.withBucket(true, func(b storageBucket) error {
		if raw := b.Get(kb); raw != nil {
			hadOld = true
			var derr error
			old, derr = t.decodeVal(raw)
			if derr != nil {
				return decodeErrf(t.name, raw, derr)
			}
		}
		if err := b.Put(kb, vb); err != nil {
			return storageErrf("put", err)
		}
		return nil
	})
	if err != nil {
		return old, hadOld, err
	}
	t.bus.publish(t.db.ctx, insertEvent[K, V](k, v, old, hadOld))
	return old, hadOld, nil
}

func (t *Tree[K, V]) Remove(k K) (old V, hadOld bool, err error) {
	kb := t.encodeKey(k)
	err = t.withBucket(true, func(b storageBucket) error {
		raw := b.Get(kb)
		if raw == nil {
			return nil
		}
		hadOld = true
		var derr error
		old, derr = t.decodeVal(raw)
		if derr != nil {
			return decodeErrf(t.name, raw, derr)
		}
		if err := b.Delete(kb); err != nil {
			return storageErrf("delete", err)
		}
		return nil
	})
	if err != nil {
		return old, hadOld, err
	}
	if hadOld {
		t.bus.publish(t.db.ctx, removeEvent[K, V](k, old))
	}
	return old, hadOld, nil
}

func (t *Tree[K, V]) Clear() error {
	err := t.withBucket(true, func(b storageBucket) error {
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return storageErrf("delete", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.bus.publish(t.db.ctx, clearEvent[K, V]())
	return nil
}

// Push inserts v under the next key produced by the tree's AutoInc and
// returns that key. It requires the tree to have been opened with
// WithAutoInc.
func (t *Tree[K, V]) Push(v V) (key K, err error) {
	if t.autoInc == nil {
		return key, fmt.Errorf("flux: %s: push requires WithAutoInc", t.name)
	}
	t.pushMu.Lock()
	defer t.pushMu.Unlock()

	lastKey, _, hasLast, err := t.Last()
	if err != nil {
		return key, err
	}
	if !hasLast {
		key = t.autoInc.First()
	} else {
		var ok bool
		key, ok = t.autoInc.Next(lastKey)
		if !ok {
			return key, &AutoIncOverflowError{Tree: t.name}
		}
	}
	_, _, err = t.Insert(key, v)
	return key, err
}

func (t *Tree[K, V]) Iter() iter.Seq2[Entry[K, V], error] {
	return t.Range(Unbounded[K](), Unbounded[K]())
}

func (t *Tree[K, V]) Range(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	return t.scan(lo, hi, false)
}

func (t *Tree[K, V]) RangeReverse(lo, hi Bound[K]) iter.Seq2[Entry[K, V], error] {
	return t.scan(lo, hi, true)
}

func (t *Tree[K, V]) scan(lo, hi Bound[K], reverse bool) iter.Seq2[Entry[K, V], error] {
	return func(yield func(Entry[K, V], error) bool) {
		tx, err := t.db.st.BeginTx(false)
		if err != nil {
			yield(Entry[K, V]{}, storageErrf("begin", err))
			return
		}
		defer tx.Rollback()
		buck := tx.Bucket(t.name, "")
		if buck == nil {
			yield(Entry[K, V]{}, storageErrf("bucket "+t.name, ErrBucketNotFound))
			return
		}

		rr := rawRange{reverse: reverse}
		if lo.has {
			rr.lower = t.encodeKey(lo.key)
			rr.lowerInc = lo.inc
		}
		if hi.has {
			rr.upper = t.encodeKey(hi.key)
			rr.upperInc = hi.inc
		}

		cur := rawRangeCursor{rang: rr, bcur: buck.Cursor()}
		for cur.Next() {
			k, v, err := t.decodeEntry(cur.Key(), cur.Value())
			if err != nil {
				yield(Entry[K, V]{}, err)
				return
			}
			if !yield(Entry[K, V]{Key: k, Val: v}, nil) {
				return
			}
		}
	}
}

func (t *Tree[K, V]) Watch() *Watcher[K, V] { return t.bus.watch() }

func (t *Tree[K, V]) subscribe(ctx context.Context) (*subscription[K, V], error) {
	return t.bus.subscribe(ctx), nil
}
