package flux

import (
	"encoding/binary"
	"fmt"
)

// tuple format: el1 el2 ... elN len1 len2 ... lenN-1 n
//
// Elements are stored left to right so that byte-lexicographic comparison of
// two encoded tuples agrees with comparing their elements field by field;
// the lengths needed to split the blob back into elements are appended
// after the data instead, in reverse-varint form, so they never perturb the
// ordering of the payload itself.
type tuple [][]byte

func decodeTuple(raw []byte) (tuple, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	c, raw := decodeRuvarint(raw)
	if c == 0 {
		return nil, nil
	}

	lens := make([]uint32, c)
	for i := int(c) - 2; i >= 0; i-- {
		lens[i], raw = decodeRuvarint(raw)
	}

	var explicitLen uint64
	for i := uint32(0); i < c-1; i++ {
		explicitLen += uint64(lens[i])
	}
	if explicitLen > uint64(len(raw)) {
		return nil, fmt.Errorf("invalid tuple: sum of explicit lens %d is greater than total data len %d", explicitLen, len(raw))
	}

	starts := make([]uint32, c+1)
	for i := uint32(0); i < c-1; i++ {
		starts[i+1] = starts[i] + lens[i]
	}
	starts[c] = uint32(len(raw))

	tup := make(tuple, c)
	for i := uint32(0); i < c; i++ {
		tup[i] = raw[starts[i]:starts[i+1]]
	}
	return tup, nil
}

type tupleEncoder struct {
	startOffPlus1 int
	lens          []int
}

func (tb *tupleEncoder) count() int {
	return len(tb.lens) + 1
}

func (tb *tupleEncoder) begin(buf []byte) {
	off := tb.startOffPlus1
	if off < 0 {
		panic("flux: tupleEncoder finalized")
	} else if off != 0 {
		itemLen := len(buf) + 1 - off
		tb.lens = append(tb.lens, itemLen)
	}
	tb.startOffPlus1 = len(buf) + 1
}

func (tb *tupleEncoder) finalize(buf []byte) []byte {
	for _, v := range tb.lens {
		buf = appendRuvarint(buf, uint32(v))
	}
	buf = appendRuvarint(buf, uint32(tb.count()))
	return buf
}

// Reverse Uvarint is just byte-reversed Uvarint, for right-to-left reading.
func appendRuvarint(buf []byte, v uint32) []byte {
	var vb [binary.MaxVarintLen32]byte
	vn := binary.PutUvarint(vb[:], uint64(v))
	off, buf := grow(buf, vn)
	for i, b := range vb[:vn] {
		buf[off+vn-i-1] = b
	}
	return buf
}

func decodeRuvarint(buf []byte) (uint32, []byte) {
	var vb [binary.MaxVarintLen32]byte
	n := len(buf)
	if n == 0 {
		panic("flux: decodeRuvarint: empty buf")
	}
	c := binary.MaxVarintLen32
	if n < c {
		c = n
	}
	for i := 0; i < c; i++ {
		vb[i] = buf[n-i-1]
	}
	v, vn := binary.Uvarint(vb[:])
	if vn < 0 {
		panic(fmt.Errorf("flux: invalid ruvarint in %x", buf))
	}
	return uint32(v), buf[:n-vn]
}
