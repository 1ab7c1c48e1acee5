// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

// MaxCores is the fixed compile-time maximum number of producer
// cores a trace file can describe.
const MaxCores = 128

// MaxTpoints bounds the per-core tpoint_count table. Tpoint group
// registration is out of scope (see spec §1). Only tpoint IDs below
// MaxTpoints have a counter; the recorder does not count events whose
// 16-bit tpoint ID is MaxTpoints or larger.
const MaxTpoints = 1024

// EntrySize is the fixed on-disk/in-shm size of one Entry, in bytes.
// It is a compile-time constant and MUST match between a producer and
// any reader of its trace file; mismatches are a fatal configuration
// error (spec §4.A).
const EntrySize = 32

// maxTpointGroups sizes the opaque tpoint/owner mask arrays persisted
// in TraceFlags. The core never interprets their bits; it only
// round-trips them (spec §3, TraceFlags).
const maxTpointGroups = 64

// historyHeaderFieldsSize is the encoded size, in bytes, of a
// PerCoreHistory's named header fields, before any trailing alignment
// pad: OwnerCore(2) + pad(2) + NumEntries(8) + TpointCount(MaxTpoints*8)
// + NextEntry(8).
const historyHeaderFieldsSize = 2 + 2 + 8 + MaxTpoints*8 + 8

// historyHeaderTailPad rounds historyHeaderFieldsSize up to the next
// multiple of 8, the same way the original C compiler pads
// sizeof(struct spdk_trace_history) to natural alignment. Without it,
// every odd-indexed PerCoreHistory would land at a 4-mod-8 file
// offset, breaking the "PerCoreHistory begins at an 8-byte-aligned
// offset" guarantee (spec §4.A). The header fields themselves are
// packed, so within each region NumEntries (offset 4) and NextEntry
// (offset 8204) sit at 4 mod 8.
const historyHeaderTailPad = (8 - historyHeaderFieldsSize%8) % 8

// historyHeaderSize is the encoded size, in bytes, of a
// PerCoreHistory's fixed-size header, including the trailing
// alignment pad: the byte offset at which the Entries array begins.
const historyHeaderSize = historyHeaderFieldsSize + historyHeaderTailPad

// flagsSize is the encoded size, in bytes, of TraceFlags: TSCRate(8) +
// TpointMask(maxTpointGroups*8) + OwnerMask(maxTpointGroups*8) +
// LcoreOffsets((MaxCores+1)*8).
const flagsSize = 8 + maxTpointGroups*8 + maxTpointGroups*8 + (MaxCores+1)*8

// flagsOffsetsOffset is the byte offset of LcoreOffsets within the
// encoded TraceFlags, i.e. the length of "TraceFlags except
// LcoreOffsets" (see the aggregation step that writes this prefix
// verbatim from the live file).
const flagsOffsetsOffset = flagsSize - (MaxCores+1)*8
