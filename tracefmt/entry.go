// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

// An Entry is a fixed-size record describing one traced event. It is
// self-contained; there is no variable-length payload (spec §3).
type Entry struct {
	TSC      uint64 // producer-observed timestamp counter at record time
	TpointID uint16 // opaque event type; 0 is reserved "no entry"
	PollerID uint16 // opaque context id
	Size     uint32 // producer-assigned opaque size field
	ObjectID uint64 // opaque correlation id
	Arg1     uint64 // opaque event argument
}

// Encode writes e into buf, which must be at least EntrySize bytes.
func (e Entry) Encode(buf []byte) {
	enc := bufEncoder{buf: buf}
	enc.u64(e.TSC)
	enc.u16(e.TpointID)
	enc.u16(e.PollerID)
	enc.u32(e.Size)
	enc.u64(e.ObjectID)
	enc.u64(e.Arg1)
}

// DecodeEntry reads an Entry from buf, which must be at least
// EntrySize bytes.
func DecodeEntry(buf []byte) Entry {
	dec := bufDecoder{buf: buf}
	var e Entry
	e.TSC = dec.u64()
	e.TpointID = dec.u16()
	e.PollerID = dec.u16()
	e.Size = dec.u32()
	e.ObjectID = dec.u64()
	e.Arg1 = dec.u64()
	return e
}
