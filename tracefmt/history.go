// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import "fmt"

// HistoryHeader is the fixed-size prefix of a PerCoreHistory: every
// field except the Entries array (spec §3, PerCoreHistory).
type HistoryHeader struct {
	OwnerCore   uint16 // redundant core identifier; equals the core's index
	NumEntries  uint64 // ring capacity (power of two while live); on an aggregated file, total entries recorded for this core
	TpointCount [MaxTpoints]uint64
	NextEntry   uint64 // monotonically increasing publish sequence
}

// Encode writes h into buf, which must be at least historyHeaderSize
// bytes.
func (h *HistoryHeader) Encode(buf []byte) {
	enc := bufEncoder{buf: buf}
	enc.u16(h.OwnerCore)
	enc.skip(2) // pad
	enc.u64(h.NumEntries)
	enc.u64s(h.TpointCount[:])
	enc.u64(h.NextEntry)
	enc.skip(historyHeaderTailPad) // align Entries to an 8-byte boundary
}

// DecodeHistoryHeader reads a HistoryHeader from buf, which must be
// at least historyHeaderSize bytes.
func DecodeHistoryHeader(buf []byte) HistoryHeader {
	dec := bufDecoder{buf: buf}
	var h HistoryHeader
	h.OwnerCore = dec.u16()
	dec.skip(2)
	h.NumEntries = dec.u64()
	dec.u64s(h.TpointCount[:])
	h.NextEntry = dec.u64()
	dec.skip(historyHeaderTailPad)
	return h
}

// IsPowerOfTwo reports whether n is a nonzero power of two, the
// required shape for a core's ring capacity (spec §3 invariant 1).
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// HistoryHeaderSize returns the encoded size, in bytes, of a
// PerCoreHistory's fixed header, i.e. the byte offset of its Entries
// array.
func HistoryHeaderSize() int64 {
	return historyHeaderSize
}

// HistorySize returns the encoded size, in bytes, of one
// PerCoreHistory with the given ring capacity: the fixed header plus
// numEntries Entry records (spec §4.A).
func HistorySize(numEntries uint64) uint64 {
	return historyHeaderSize + numEntries*EntrySize
}

// BuildOffsets computes the lcore_offsets array for MaxCores regions,
// each sized for numEntries entries, following a TraceFlags header.
// lcoreOffsets[i+1]-lcoreOffsets[i] == HistorySize(numEntries) for all
// i, and lcoreOffsets[MaxCores] is the total file size (spec §3
// invariant 5, uniform case).
func BuildOffsets(numEntries uint64) [MaxCores + 1]uint64 {
	var offs [MaxCores + 1]uint64
	offs[0] = flagsSize
	sz := HistorySize(numEntries)
	for i := 1; i <= MaxCores; i++ {
		offs[i] = offs[i-1] + sz
	}
	return offs
}

// BuildOffsetsVarying computes lcore_offsets for regions with a
// per-core entry count, as used when persisting the exporter's
// aggregated file where each core may have recorded a different
// number of entries (spec §4.C step 3, §3 invariant 5).
func BuildOffsetsVarying(numEntries [MaxCores]uint64) [MaxCores + 1]uint64 {
	var offs [MaxCores + 1]uint64
	offs[0] = flagsSize
	for i := 0; i < MaxCores; i++ {
		offs[i+1] = offs[i] + HistorySize(numEntries[i])
	}
	return offs
}

// ValidateEntrySize returns an error if entrySize does not match the
// compile-time EntrySize constant. A producer and a reader that
// disagree on entry size is a fatal configuration error (spec §4.A).
func ValidateEntrySize(entrySize int) error {
	if entrySize != EntrySize {
		return fmt.Errorf("tracefmt: entry size mismatch: got %d, want %d", entrySize, EntrySize)
	}
	return nil
}
