package flux

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes values of type T to and from opaque byte slices.
// Implementations need not preserve any ordering relationship between T and
// the encoded bytes; that obligation belongs to KeyCodec alone.
type Codec[T any] interface {
	Encode(buf []byte, v T) []byte
	Decode(b []byte) (T, error)
}

// MsgpackCodec is the default Codec, used for every Tree/Single value type
// unless a caller supplies their own.
type MsgpackCodec[T any] struct{}

func (MsgpackCodec[T]) Encode(buf []byte, v T) []byte {
	bb := bytesBuilder{Buf: buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		panic(fmt.Errorf("flux: failed to encode %T using msgpack: %w", v, err))
	}
	msgpack.PutEncoder(enc)
	return bb.Buf
}

func (MsgpackCodec[T]) Decode(b []byte) (T, error) {
	var v T
	var r bytes.Reader
	r.Reset(b)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(&v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return v, fmt.Errorf("failed to decode msgpack into %T: %w", v, err)
	}
	return v, nil
}

// JSONCodec is a convenience Codec for values that prefer a human-readable
// on-disk representation; most callers want MsgpackCodec instead.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(buf []byte, v T) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("flux: failed to encode %T to JSON: %w", v, err))
	}
	return appendRaw(buf, raw)
}

func (JSONCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("failed to decode JSON into %T: %w", v, err)
	}
	return v, nil
}

type bytesBuilder struct {
	Buf []byte
}

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}
