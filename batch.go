package flux

// Batch collects a set of inserts and removals to be applied to a Tree in
// one storage transaction: either all of them land, or none do, and each
// still produces its own ChangeEvent once committed.
type Batch[K, V any] struct {
	ops []batchOp[K, V]
}

type batchOp[K, V any] struct {
	kind ChangeKind
	key  K
	val  V
}

// Insert queues an insert of k->v into the batch.
func (b *Batch[K, V]) Insert(k K, v V) {
	b.ops = append(b.ops, batchOp[K, V]{kind: ChangeInsert, key: k, val: v})
}

// Remove queues a removal of k from the batch.
func (b *Batch[K, V]) Remove(k K) {
	b.ops = append(b.ops, batchOp[K, V]{kind: ChangeRemove, key: k})
}

// Len reports how many operations are queued in the batch.
func (b *Batch[K, V]) Len() int { return len(b.ops) }

// ApplyBatch applies every queued operation to t inside one storage
// transaction: a failure partway through rolls the whole batch back, same
// as a single Insert/Remove failing. On success, one ChangeEvent per
// operation is published, in the order the operations were queued.
func (t *Tree[K, V]) ApplyBatch(b *Batch[K, V]) error {
	events := make([]ChangeEvent[K, V], 0, len(b.ops))
	err := t.withBucket(true, func(buck storageBucket) error {
		for _, op := range b.ops {
			kb := t.encodeKey(op.key)
			switch op.kind {
			case ChangeInsert:
				var old V
				var hadOld bool
				if raw := buck.Get(kb); raw != nil {
					hadOld = true
					v, derr := t.decodeVal(raw)
					if derr != nil {
						return decodeErrf(t.name, raw, derr)
					}
					old = v
				}
				if err := buck.Put(kb, t.encodeVal(op.val)); err != nil {
					return storageErrf("put", err)
				}
				events = append(events, insertEvent[K, V](op.key, op.val, old, hadOld))
			case ChangeRemove:
				raw := buck.Get(kb)
				if raw == nil {
					continue
				}
				old, derr := t.decodeVal(raw)
				if derr != nil {
					return decodeErrf(t.name, raw, derr)
				}
				if err := buck.Delete(kb); err != nil {
					return storageErrf("delete", err)
				}
				events = append(events, removeEvent[K, V](op.key, old))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		t.bus.publish(t.db.ctx, ev)
	}
	return nil
}
