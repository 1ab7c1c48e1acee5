// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traceexport

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/tracewatch/tracewatch/tracefmt"
)

// fakeProducer is a minimal, independent stand-in for a
// tracerecorder.Recorder: it builds a raw buffer in the same on-disk
// layout and lets tests publish entries on a chosen core without
// depending on tracerecorder's unexported internals.
type fakeProducer struct {
	buf        []byte
	numEntries uint64
	offsets    [tracefmt.MaxCores + 1]uint64
}

func newFakeProducer(numEntries uint64) *fakeProducer {
	offsets := tracefmt.BuildOffsets(numEntries)
	buf := make([]byte, offsets[tracefmt.MaxCores])

	var flags tracefmt.Flags
	flags.TSCRate = 1_000_000_000
	flags.LcoreOffsets = offsets
	flags.Encode(buf[:tracefmt.FlagsSize()])

	for i := 0; i < tracefmt.MaxCores; i++ {
		region, _ := tracefmt.HistoryRegion(buf, offsets, i)
		h := tracefmt.HistoryHeader{OwnerCore: uint16(i), NumEntries: numEntries}
		h.Encode(region[:entriesOff])
	}
	return &fakeProducer{buf: buf, numEntries: numEntries, offsets: offsets}
}

func (p *fakeProducer) region(core int) []byte {
	r, _ := tracefmt.HistoryRegion(p.buf, p.offsets, core)
	return r
}

// publish appends one entry to core following the same
// write-then-release-publish order a real Recorder uses.
func (p *fakeProducer) publish(core int, tsc uint64, tpointID uint16) {
	region := p.region(core)
	h := tracefmt.DecodeHistoryHeader(region[:entriesOff])
	next := h.NextEntry
	slot := next & (p.numEntries - 1)

	e := tracefmt.Entry{TSC: tsc, TpointID: tpointID}
	off := entriesOff + int(slot)*tracefmt.EntrySize
	e.Encode(region[off : off+tracefmt.EntrySize])

	h.TpointCount[tpointID]++
	h.Encode(region[:entriesOff])

	ptr := (*uint64)(unsafe.Pointer(&region[nextEntryOff]))
	atomic.StoreUint64(ptr, next+1)
}

func TestExporterCapturesEntriesBelowCapacity(t *testing.T) {
	p := newFakeProducer(8)
	for i := uint64(1); i <= 5; i++ {
		p.publish(0, i, 1)
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "trace.out")
	e, err := OpenBytes(p.buf, out)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	summaries, err := e.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if summaries[0].Captured != 5 {
		t.Fatalf("core 0 captured = %d, want 5", summaries[0].Captured)
	}
	if summaries[0].Lossy {
		t.Fatal("expected no loss below capacity")
	}
	for i, s := range summaries {
		if i == 0 {
			continue
		}
		if s.Captured != 0 {
			t.Fatalf("core %d captured = %d, want 0", i, s.Captured)
		}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	flags := tracefmt.DecodeFlags(data)
	region, err := tracefmt.HistoryRegion(data, flags.LcoreOffsets, 0)
	if err != nil {
		t.Fatalf("HistoryRegion: %v", err)
	}
	h := tracefmt.DecodeHistoryHeader(region[:entriesOff])
	if h.NumEntries != 5 || h.NextEntry != 5 {
		t.Fatalf("aggregated header = %+v, want NumEntries=NextEntry=5", h)
	}
	for i := uint64(0); i < 5; i++ {
		off := entriesOff + int(i)*tracefmt.EntrySize
		ent := tracefmt.DecodeEntry(region[off : off+tracefmt.EntrySize])
		if ent.TSC != i+1 {
			t.Fatalf("entry %d tsc = %d, want %d", i, ent.TSC, i+1)
		}
	}

	for i := 0; i < tracefmt.MaxCores; i++ {
		if _, err := os.Stat(scratchPath(out, i)); !os.IsNotExist(err) {
			t.Fatalf("scratch file for core %d still exists after Aggregate", i)
		}
	}
}

func TestExporterBoundsLossOnOverflow(t *testing.T) {
	p := newFakeProducer(4)

	dir := t.TempDir()
	out := filepath.Join(dir, "trace.out")
	e, err := OpenBytes(p.buf, out)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	// First poll observes nothing yet.
	if err := e.PollOnce(); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	// Publish more than the ring capacity before the next poll: the
	// earliest entries are overwritten before capture.
	for i := uint64(1); i <= 10; i++ {
		p.publish(1, i, 2)
	}

	summaries, err := e.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	s := summaries[1]
	if !s.Lossy {
		t.Fatal("expected overflow to be flagged lossy")
	}
	if s.Captured != 4 {
		t.Fatalf("captured = %d, want 4 (ring capacity)", s.Captured)
	}
	if s.Dropped != 6 {
		t.Fatalf("dropped = %d, want 6", s.Dropped)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	flags := tracefmt.DecodeFlags(data)
	region, _ := tracefmt.HistoryRegion(data, flags.LcoreOffsets, 1)
	for i := uint64(0); i < 4; i++ {
		off := entriesOff + int(i)*tracefmt.EntrySize
		ent := tracefmt.DecodeEntry(region[off : off+tracefmt.EntrySize])
		if want := i + 7; ent.TSC != want {
			t.Fatalf("entry %d tsc = %d, want %d (last 4 of 10)", i, ent.TSC, want)
		}
	}
}

func TestExporterPollOnceIsIncremental(t *testing.T) {
	p := newFakeProducer(16)
	dir := t.TempDir()
	out := filepath.Join(dir, "trace.out")
	e, err := OpenBytes(p.buf, out)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	p.publish(2, 1, 9)
	p.publish(2, 2, 9)
	if err := e.PollOnce(); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if e.cores[2].captured != 2 {
		t.Fatalf("captured after first poll = %d, want 2", e.cores[2].captured)
	}

	p.publish(2, 3, 9)
	if err := e.PollOnce(); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if e.cores[2].captured != 3 {
		t.Fatalf("captured after second poll = %d, want 3", e.cores[2].captured)
	}

	if _, err := e.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
}

func TestOpenRejectsZeroTscRate(t *testing.T) {
	buf := make([]byte, tracefmt.FlagsSize())
	dir := t.TempDir()
	if _, err := OpenBytes(buf, filepath.Join(dir, "trace.out")); err == nil {
		t.Fatal("expected InvalidSource error for tsc_rate == 0")
	}
}

func TestOpenRemovesStaleOutputAndScratch(t *testing.T) {
	p := newFakeProducer(4)
	dir := t.TempDir()
	out := filepath.Join(dir, "trace.out")
	if err := os.WriteFile(out, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(scratchPath(out, 3), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	e, err := OpenBytes(p.buf, out)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if _, err := e.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
}
