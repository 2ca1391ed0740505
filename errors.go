package flux

import (
	"fmt"
)

// StorageError wraps a failure from the underlying storage engine (bbolt or
// the in-memory backend), tagged with the operation that triggered it.
type StorageError struct {
	Op  string
	Err error
}

func storageErrf(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Error() string {
	return fmt.Sprintf("flux: storage: %s: %v", e.Op, e.Err)
}

// DecodeError is returned when a stored key or value fails to decode under
// the tree's KeyCodec/Codec.
type DecodeError struct {
	Bucket string
	Raw    []byte
	Err    error
}

func decodeErrf(bucket string, raw []byte, err error) error {
	return &DecodeError{Bucket: bucket, Raw: raw, Err: err}
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Error() string {
	return fmt.Sprintf("flux: decode %s/%s: %v", e.Bucket, hexstr(e.Raw), e.Err)
}

// EncodeError is returned when a key or value cannot be encoded.
type EncodeError struct {
	Bucket string
	Err    error
}

func encodeErrf(bucket string, err error) error {
	return &EncodeError{Bucket: bucket, Err: err}
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Error() string {
	return fmt.Sprintf("flux: encode %s: %v", e.Bucket, e.Err)
}

// AutoIncOverflowError is returned by Push when a tree's AutoInc generator
// has exhausted the key type's range.
type AutoIncOverflowError struct {
	Tree string
}

func (e *AutoIncOverflowError) Error() string {
	return fmt.Sprintf("flux: %s: autoinc overflow", e.Tree)
}

// CompositionError is returned when an operation that requires a
// materialized view is attempted anyway: passing a chain or zip view as
// the source of a further combinator or of NewPipe before storing or
// loading it, or calling Chain with no sources. (Transform/Index results
// are not Views at all, so misusing them fails at compile time instead.)
type CompositionError struct {
	Msg string
}

func compositionErrf(format string, args ...any) error {
	return &CompositionError{Msg: fmt.Sprintf(format, args...)}
}

func (e *CompositionError) Error() string { return "flux: composition: " + e.Msg }

// SubscriptionLaggedError is reported by a Watcher when its buffer overflowed
// and one or more change events were dropped.
type SubscriptionLaggedError struct {
	Missed int
}

func (e *SubscriptionLaggedError) Error() string {
	return fmt.Sprintf("flux: subscription lagged by %d event(s)", e.Missed)
}
