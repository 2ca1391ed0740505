/*
Package flux implements a typed, composable view layer on top of an
embedded ordered key-value store (bbolt).

We implement:

 1. Trees, typed ordered mappings K -> V persisted in one KV namespace,
    with optional auto-incrementing keys.

 2. A view algebra: lazy combinators (map, filter, filter_map, transform,
    index, chain, zip) plus write-side adapters (reducer, filter_reducer,
    inserter, filter_inserter, pipe) that compose into new views.

 3. Materialization: Store (persist a view to a named tree) and Load (hold
    a view in a private in-memory tree), both kept current by a background
    propagation worker that translates source change events into sink
    writes.

 4. Watch, a broadcast reader over any view's change events.

# Technical details

**Buckets.** Every Tree/Single/MaterializedView owns one top-level
bucket in its Database's storage (a bbolt bucket for Open/OpenTemp, an
in-memory one for OpenMemory). Nested buckets are supported by the
storage layer but not used by trees.

**Key encoding.** Keys are encoded with an order-preserving flat/tuple
encoding (see keycodec.go): the byte-lexicographic order of encoded keys
must equal the logical order of K, which is the one thing every KeyCodec
implementation is required to get right.

**Contribution maps.** transform/index sinks carry a second bucket,
`<name>.__keys`, mapping a derived key back to the set of source keys that
produced it, so that a source update or removal can correctly update or
remove the right derived rows.

**Propagation.** Every materialized view owns a bounded, blocking queue
fed by a subscription to its source(s)' change streams, and one worker
goroutine draining that queue into the sink. A Sync object on the view
counts outstanding deltas so callers can wait for quiescence.
*/
package flux
