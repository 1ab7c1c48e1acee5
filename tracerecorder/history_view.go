// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracerecorder

import (
	"sync/atomic"
	"unsafe"

	"github.com/tracewatch/tracewatch/tracefmt"
)

// historyOffsets are the byte offsets of the fixed-size
// PerCoreHistory header fields (see tracefmt.HistoryHeader.Encode for
// the canonical field order).
const (
	ownerCoreOff   = 0
	numEntriesOff  = 4
	tpointCountOff = numEntriesOff + 8
	nextEntryOff   = tpointCountOff + tracefmt.MaxTpoints*8
)

// entriesOff is the byte offset of the Entries array: the encoded
// header size, including the tail alignment pad tracefmt inserts
// after NextEntry so PerCoreHistory regions stay 8-byte aligned (see
// tracefmt.HistoryHeaderSize).
var entriesOff = int(tracefmt.HistoryHeaderSize())

// historyView is "a view object (base, length, core_offset) that
// safely indexes into a shared byte region" (design note §9): it
// bounds-checks once at construction against numEntries, then does
// raw offset arithmetic on every record/read instead of re-validating
// per call.
type historyView struct {
	region     []byte // this core's PerCoreHistory byte range
	numEntries uint64 // ring capacity; power of two
}

func newHistoryView(region []byte, numEntries uint64) *historyView {
	if uint64(len(region)) < tracefmt.HistorySize(numEntries) {
		panic("tracerecorder: history region too small for ring capacity")
	}
	return &historyView{region: region, numEntries: numEntries}
}

func (h *historyView) u64At(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&h.region[off]))
}

// initHeader writes the owner core id and ring capacity for a freshly
// zeroed region (spec §4.B init).
func (h *historyView) initHeader(ownerCore uint16) {
	*(*uint16)(unsafe.Pointer(&h.region[ownerCoreOff])) = ownerCore
	atomic.StoreUint64(h.u64At(numEntriesOff), h.numEntries)
}

// NextEntry loads the published sequence counter. External readers
// must pair this load with an acquire fence before trusting entry
// contents; Go's sync/atomic loads of aligned words are sequentially
// consistent, which is at least as strong as the acquire ordering
// spec §5 requires.
func (h *historyView) NextEntry() uint64 {
	return atomic.LoadUint64(h.u64At(nextEntryOff))
}

// PublishNextEntry stores the new sequence counter with release
// ordering: this MUST only be called after the entry at the
// corresponding slot has been fully written (spec §5).
func (h *historyView) PublishNextEntry(v uint64) {
	atomic.StoreUint64(h.u64At(nextEntryOff), v)
}

// IncrementTpointCount bumps the per-tpoint counter. The counter is
// producer-maintained and only ever incremented by that core's single
// writer; it uses an atomic add purely so a concurrent exporter
// snapshot (a plain read) never observes a torn 8-byte value, not for
// cross-writer coordination (spec §3, PerCoreHistory.tpoint_count).
func (h *historyView) IncrementTpointCount(tpointID uint16) {
	if int(tpointID) >= tracefmt.MaxTpoints {
		return
	}
	atomic.AddUint64(h.u64At(tpointCountOff+int(tpointID)*8), 1)
}

// WriteEntry encodes e into ring slot `slot`. The caller is
// responsible for calling PublishNextEntry only after this returns,
// per the release-before-publish ordering in spec §5.
func (h *historyView) WriteEntry(slot uint64, e tracefmt.Entry) {
	off := entriesOff + int(slot)*tracefmt.EntrySize
	e.Encode(h.region[off : off+tracefmt.EntrySize])
}

// ReadEntry decodes the entry at ring slot `slot`.
func (h *historyView) ReadEntry(slot uint64) tracefmt.Entry {
	off := entriesOff + int(slot)*tracefmt.EntrySize
	return tracefmt.DecodeEntry(h.region[off : off+tracefmt.EntrySize])
}

// Header decodes the full fixed-size header, including tpoint counts,
// for a point-in-time snapshot of this core's metadata. The exporter
// does not use it; it reads headers through its own read-only view.
func (h *historyView) Header() tracefmt.HistoryHeader {
	return tracefmt.DecodeHistoryHeader(h.region[:entriesOff])
}
