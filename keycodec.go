package flux

import (
	"fmt"
	"reflect"
	"sync"
	"unicode/utf8"
)

// KeyCodec encodes and decodes keys of type K to and from opaque byte
// slices. Unlike Codec, a KeyCodec carries one extra obligation: the
// byte-lexicographic order of encoded keys must equal the logical order of
// K, because every range scan, GetLT/GetGT and push() depends on it.
type KeyCodec[K any] interface {
	Codec[K]
}

// FlatKeyCodec is the default KeyCodec. It reflects over K once (the result
// is cached) and builds an order-preserving tuple encoding: one component
// per struct field (recursively), in declaration order, each individually
// order-preserving, concatenated with the reverse-length tuple format so
// that multi-field keys compare field by field.
type FlatKeyCodec[K any] struct{}

func (FlatKeyCodec[K]) Encode(buf []byte, k K) []byte {
	enc := flatEncodingOf(reflect.TypeOf((*K)(nil)).Elem())
	return enc.encode(buf, reflect.ValueOf(k))
}

func (FlatKeyCodec[K]) Decode(b []byte) (K, error) {
	var k K
	enc := flatEncodingOf(reflect.TypeOf((*K)(nil)).Elem())
	err := enc.decode(b, reflect.ValueOf(&k))
	return k, err
}

var flatEncodings sync.Map // reflect.Type -> *flatEncoding

type flatEncoding struct {
	typ        reflect.Type
	components []*flatComponent
}

type flatComponent struct {
	Path   string
	Getter func(v reflect.Value) reflect.Value
	Encode func(fe *flatEncoder, v reflect.Value)
	Decode func(b []byte, v reflect.Value) error
}

type flatEncoder struct {
	buf []byte
	tupleEncoder
}

func (fe *flatEncoder) begin()          { fe.tupleEncoder.begin(fe.buf) }
func (fe *flatEncoder) append(b []byte) { fe.buf = appendRaw(fe.buf, b) }
func (fe *flatEncoder) finalize() []byte {
	return fe.tupleEncoder.finalize(fe.buf)
}

func flatEncodingOf(typ reflect.Type) *flatEncoding {
	if e, ok := flatEncodings.Load(typ); ok {
		return e.(*flatEncoding)
	}
	enc := &flatEncoding{typ: typ}
	enumerateFlatComponents(typ, "", func(fc *flatComponent) {
		enc.components = append(enc.components, fc)
	})
	actual, _ := flatEncodings.LoadOrStore(typ, enc)
	return actual.(*flatEncoding)
}

func (enc *flatEncoding) encode(buf []byte, val reflect.Value) []byte {
	fe := flatEncoder{buf: buf}
	for _, fc := range enc.components {
		fe.begin()
		cval := val
		if fc.Getter != nil {
			cval = fc.Getter(val)
		}
		fc.Encode(&fe, cval)
	}
	return fe.finalize()
}

func (enc *flatEncoding) decode(buf []byte, val reflect.Value) error {
	tup, err := decodeTuple(buf)
	if err != nil {
		return err
	}
	if len(tup) != len(enc.components) {
		return fmt.Errorf("flux: wrong number of key components: got %d, wanted %d", len(tup), len(enc.components))
	}
	val = val.Elem()
	for i, fc := range enc.components {
		cval := val
		if fc.Getter != nil {
			cval = fc.Getter(val)
		}
		if err := fc.Decode(tup[i], cval); err != nil {
			return fmt.Errorf("%s%w", pathPrefix(fc.Path), err)
		}
	}
	return nil
}

func pathPrefix(p string) string {
	if p == "" {
		return ""
	}
	return p + ": "
}

func enumerateFlatComponents(typ reflect.Type, path string, f func(fc *flatComponent)) {
	switch typ.Kind() {
	case reflect.String:
		f(&flatComponent{
			Path: path,
			Encode: func(fe *flatEncoder, v reflect.Value) {
				fe.buf = appendRaw(fe.buf, []byte(v.String()))
			},
			Decode: func(b []byte, v reflect.Value) error {
				if !utf8.Valid(b) {
					return fmt.Errorf("not a valid utf8 string")
				}
				v.SetString(string(b))
				return nil
			},
		})
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uintptr:
		f(&flatComponent{
			Path: path,
			Encode: func(fe *flatEncoder, v reflect.Value) {
				fe.buf = appendUint64(fe.buf, v.Uint())
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != 8 {
					return fmt.Errorf("invalid uint key length: got %d bytes, wanted 8", len(b))
				}
				v.Set(reflect.ValueOf(decodeUint64(b)).Convert(typ))
				return nil
			},
		})
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		// Flip the sign bit before the big-endian encoding: this makes the
		// unsigned representation of a negative number sort below that of a
		// non-negative one, which plain two's complement big-endian bytes
		// do not (a negative number's top bit set makes it compare as
		// "larger" byte-lexicographically than a positive one).
		f(&flatComponent{
			Path: path,
			Encode: func(fe *flatEncoder, v reflect.Value) {
				fe.buf = appendUint64(fe.buf, uint64(v.Int())^signBit)
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != 8 {
					return fmt.Errorf("invalid int key length: got %d bytes, wanted 8", len(b))
				}
				value := int64(decodeUint64(b) ^ signBit)
				v.Set(reflect.ValueOf(value).Convert(typ))
				return nil
			},
		})
	case reflect.Slice:
		if typ.Elem().Kind() != reflect.Uint8 {
			panic(fmt.Errorf("flux: FlatKeyCodec does not know how to encode %v", typ))
		}
		f(&flatComponent{
			Path: path,
			Encode: func(fe *flatEncoder, v reflect.Value) {
				fe.buf = appendRaw(fe.buf, v.Bytes())
			},
			Decode: func(b []byte, v reflect.Value) error {
				v.SetBytes(append([]byte(nil), b...))
				return nil
			},
		})
	case reflect.Array:
		if typ.Elem().Kind() != reflect.Uint8 {
			panic(fmt.Errorf("flux: FlatKeyCodec does not know how to encode %v", typ))
		}
		f(&flatComponent{
			Path: path,
			Encode: func(fe *flatEncoder, v reflect.Value) {
				b := make([]byte, v.Len())
				reflect.Copy(reflect.ValueOf(b), v)
				fe.buf = appendRaw(fe.buf, b)
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != v.Len() {
					return fmt.Errorf("invalid array key length: got %d bytes, wanted %d", len(b), v.Len())
				}
				reflect.Copy(v, reflect.ValueOf(b))
				return nil
			},
		})
	case reflect.Struct:
		n := typ.NumField()
		for i := 0; i < n; i++ {
			i := i
			field := typ.Field(i)
			getter := func(v reflect.Value) reflect.Value { return v.Field(i) }
			enumerateFlatComponents(field.Type, path+"."+field.Name, func(fc *flatComponent) {
				inner := fc.Getter
				if inner == nil {
					fc.Getter = getter
				} else {
					fc.Getter = func(v reflect.Value) reflect.Value { return inner(getter(v)) }
				}
				f(fc)
			})
		}
	default:
		panic(fmt.Errorf("flux: FlatKeyCodec does not know how to encode %v", typ))
	}
}

const signBit = uint64(1) << 63
