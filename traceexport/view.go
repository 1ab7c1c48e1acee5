// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traceexport

import (
	"sync/atomic"
	"unsafe"

	"github.com/tracewatch/tracewatch/tracefmt"
)

// Byte offsets of the fixed-size PerCoreHistory header fields, as
// encoded by tracefmt.HistoryHeader.Encode.
const (
	numEntriesOff  = 4
	tpointCountOff = numEntriesOff + 8
	nextEntryOff   = tpointCountOff + tracefmt.MaxTpoints*8
)

// entriesOff is the byte offset of the Entries array: the encoded
// header size, including the tail alignment pad tracefmt inserts
// after NextEntry so PerCoreHistory regions stay 8-byte aligned (see
// tracefmt.HistoryHeaderSize).
var entriesOff = int(tracefmt.HistoryHeaderSize())

// sourceView is a read-only view over one core's live PerCoreHistory
// region, mapped read-only from the producer's shared memory. It is
// the exporter-side counterpart of tracerecorder's historyView. The
// ring capacity is read from the region's header once at construction
// and is not checked against the region's length; reads index the
// region directly without re-validating per call.
type sourceView struct {
	region     []byte
	numEntries uint64
}

func newSourceView(region []byte) *sourceView {
	h := tracefmt.DecodeHistoryHeader(region[:entriesOff])
	return &sourceView{region: region, numEntries: h.NumEntries}
}

// NextEntry loads the producer's published sequence counter. Spec §5
// requires an acquire fence before trusting entry contents; Go's
// atomic load of an aligned word is sequentially consistent, which
// subsumes acquire ordering.
func (v *sourceView) NextEntry() uint64 {
	p := (*uint64)(unsafe.Pointer(&v.region[nextEntryOff]))
	return atomic.LoadUint64(p)
}

func (v *sourceView) ReadEntry(slot uint64) tracefmt.Entry {
	off := entriesOff + int(slot)*tracefmt.EntrySize
	return tracefmt.DecodeEntry(v.region[off : off+tracefmt.EntrySize])
}

// EntryBytes returns the raw bytes of entries [from, from+count),
// wrapping is the caller's responsibility (it never wraps itself).
func (v *sourceView) EntryBytes(from, count uint64) []byte {
	off := entriesOff + int(from)*tracefmt.EntrySize
	n := int(count) * tracefmt.EntrySize
	return v.region[off : off+n]
}

// Header snapshots the fixed-size header, including tpoint counts,
// for copying into the exporter's out_history buffer (spec §4.C step
// 7).
func (v *sourceView) Header() tracefmt.HistoryHeader {
	return tracefmt.DecodeHistoryHeader(v.region[:entriesOff])
}

func (v *sourceView) NumEntries() uint64 { return v.numEntries }
