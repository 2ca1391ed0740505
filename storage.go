package flux

import "errors"

// ErrBucketNotFound is returned by storageTx.DeleteBucket when the bucket doesn't exist.
var ErrBucketNotFound = errors.New("flux: bucket not found")

// storage represents a key-value storage backend (bbolt, in-memory, ...).
type storage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns a bucket. Use sub="" for a root bucket, non-empty for a nested bucket.
	// Returns nil if the bucket doesn't exist.
	Bucket(name, sub string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	// For sub != "", it must also ensure the root bucket exists.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket deletes a nested bucket (sub must be non-empty).
	DeleteBucket(name, sub string) error

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error
}

// storageBucket represents a bucket (sorted key-value collection).
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found.
	Get(key []byte) []byte

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key.
	Delete(key []byte) error

	// Cursor returns a cursor for iteration.
	Cursor() storageCursor

	// KeyCount returns the number of keys in the bucket (best effort).
	KeyCount() int
}

// storageCursor iterates over a sorted bucket.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key with the given prefix (or the overall
	// last key if prefix is empty).
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)

	// Delete deletes the current key-value pair.
	Delete() error
}
