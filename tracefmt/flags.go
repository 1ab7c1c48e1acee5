// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

// Flags is the single global header record at the start of a trace
// file (spec §3, TraceFlags).
type Flags struct {
	TSCRate uint64 // producer-calibrated ticks/second

	// TpointMask and OwnerMask are opaque producer-enabled tpoint
	// group configuration. The core never interprets their bits;
	// it only persists and round-trips them.
	TpointMask [maxTpointGroups]uint64
	OwnerMask  [maxTpointGroups]uint64

	// LcoreOffsets holds the byte offset, relative to the file
	// start, of each PerCoreHistory. LcoreOffsets[MaxCores]
	// encodes the total file size. This MUST remain the trailing
	// field of the encoded layout (see doc.go).
	LcoreOffsets [MaxCores + 1]uint64
}

// Encode writes f into buf, which must be at least flagsSize bytes.
func (f *Flags) Encode(buf []byte) {
	enc := bufEncoder{buf: buf}
	enc.u64(f.TSCRate)
	enc.u64s(f.TpointMask[:])
	enc.u64s(f.OwnerMask[:])
	enc.u64s(f.LcoreOffsets[:])
}

// EncodePrefix writes everything in f except LcoreOffsets into buf,
// which must be at least flagsOffsetsOffset bytes. This is the "flags
// except offsets" prefix the exporter copies verbatim from the live
// source file during aggregation, before writing a freshly computed
// LcoreOffsets array (spec §4.C step 2; see doc.go for why this is
// serialized field-by-field instead of as a struct slice).
func (f *Flags) EncodePrefix(buf []byte) {
	enc := bufEncoder{buf: buf}
	enc.u64(f.TSCRate)
	enc.u64s(f.TpointMask[:])
	enc.u64s(f.OwnerMask[:])
}

// EncodeOffsets writes only f.LcoreOffsets into buf, which must be at
// least (MaxCores+1)*8 bytes. Paired with EncodePrefix, this lets a
// writer emit "flags except offsets" once and a freshly computed
// offsets array separately, without re-encoding the fields in between.
func (f *Flags) EncodeOffsets(buf []byte) {
	enc := bufEncoder{buf: buf}
	enc.u64s(f.LcoreOffsets[:])
}

// DecodeFlags reads a Flags from buf, which must be at least
// flagsSize bytes.
func DecodeFlags(buf []byte) Flags {
	dec := bufDecoder{buf: buf}
	var f Flags
	f.TSCRate = dec.u64()
	dec.u64s(f.TpointMask[:])
	dec.u64s(f.OwnerMask[:])
	dec.u64s(f.LcoreOffsets[:])
	return f
}

// FlagsSize is the encoded size, in bytes, of a Flags header.
func FlagsSize() int64 { return flagsSize }

// FlagsPrefixSize is the encoded size, in bytes, of a Flags header
// excluding LcoreOffsets.
func FlagsPrefixSize() int64 { return flagsOffsetsOffset }
