// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import "encoding/binary"

// bufEncoder and bufDecoder are little cursors over a []byte that
// advance as fields are written or read. They exist so the on-disk
// layout of TraceFlags and PerCoreHistory is defined by the order of
// these calls, not by Go's struct layout, which the format helpers
// must not depend on (see doc.go).
type bufEncoder struct {
	buf []byte
}

func (b *bufEncoder) u16(x uint16) {
	binary.LittleEndian.PutUint16(b.buf, x)
	b.buf = b.buf[2:]
}

func (b *bufEncoder) u32(x uint32) {
	binary.LittleEndian.PutUint32(b.buf, x)
	b.buf = b.buf[4:]
}

func (b *bufEncoder) u64(x uint64) {
	binary.LittleEndian.PutUint64(b.buf, x)
	b.buf = b.buf[8:]
}

func (b *bufEncoder) u64s(xs []uint64) {
	for _, x := range xs {
		b.u64(x)
	}
}

func (b *bufEncoder) skip(n int) {
	b.buf = b.buf[n:]
}

type bufDecoder struct {
	buf []byte
}

func (b *bufDecoder) u16() uint16 {
	x := binary.LittleEndian.Uint16(b.buf)
	b.buf = b.buf[2:]
	return x
}

func (b *bufDecoder) u32() uint32 {
	x := binary.LittleEndian.Uint32(b.buf)
	b.buf = b.buf[4:]
	return x
}

func (b *bufDecoder) u64() uint64 {
	x := binary.LittleEndian.Uint64(b.buf)
	b.buf = b.buf[8:]
	return x
}

func (b *bufDecoder) u64s(xs []uint64) {
	for i := range xs {
		xs[i] = binary.LittleEndian.Uint64(b.buf)
		b.buf = b.buf[8:]
	}
}

func (b *bufDecoder) skip(n int) {
	b.buf = b.buf[n:]
}
