// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import mbits "math/bits"

// Writer writes bits MSB first, the inverse of Reader.
type Writer struct {
	buf    []byte
	offset int // bit base
}

// NewWriter retruns a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteBit write a bit.
func (w *Writer) WriteBit(b uint8) {
	if w.offset>>3 >= len(w.buf) {
		w.buf = append(w.buf, 0)
	}
	if b&1 != 0 {
		w.buf[w.offset>>3] |= 0x80 >> uint(w.offset&0x7)
	}
	w.offset++
}

// WriteBool write one bit bool.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// Write write the low n bits of v.
func (w *Writer) Write(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(uint8(v >> uint(i)))
	}
}

// WriteUe write v as UE GolombCode.
func (w *Writer) WriteUe(v uint32) {
	x := uint64(v) + 1
	n := mbits.Len64(x)
	w.Write(n-1, 0)
	w.Write(n, x)
}

// WriteSe write v as SE GolombCode.
func (w *Writer) WriteSe(v int32) {
	if v > 0 {
		w.WriteUe(uint32(2*int64(v) - 1))
	} else {
		w.WriteUe(uint32(-2 * int64(v)))
	}
}

// WriteTrailingBits write rbsp_trailing_bits.
func (w *Writer) WriteTrailingBits() {
	w.WriteBit(1)
	for w.offset&0x7 != 0 {
		w.WriteBit(0)
	}
}

// Offset returns the offset of bits.
func (w *Writer) Offset() int {
	return w.offset
}

// Bytes returns the written bytes, the last byte zero padded.
func (w *Writer) Bytes() []byte {
	return w.buf
}
