// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracerecorder is the producer side of the trace subsystem:
// a wait-free, single-writer-per-core path that appends entries into
// per-core circular buffers backed by shared memory (spec §4.B).
package tracerecorder

import (
	"github.com/tracewatch/tracewatch/tracefmt"
	"github.com/tracewatch/tracewatch/traceerr"
)

// Recorder is the producer-side handle for one trace file. Unlike the
// original's process-wide globals, Recorder is an explicit value: a
// process normally keeps exactly one, but tests can construct many
// independent ones side by side (design note §9).
type Recorder struct {
	shmName    string
	numEntries uint64
	m          mapping
	histories  [tracefmt.MaxCores]*historyView
	clk        clock
}

// Init creates (or truncates) shmName as a POSIX shared-memory
// segment sized for MaxCores histories of numEntriesPerCore entries
// each, maps it read-write, best-effort locks it into RAM, zeroes it,
// and writes the initial TraceFlags and PerCoreHistory headers (spec
// §4.B).
//
// numEntriesPerCore == 0 disables tracing: Init returns a Recorder
// whose Record calls are no-ops and no mapping is created.
func Init(shmName string, numEntriesPerCore uint64) (*Recorder, error) {
	if numEntriesPerCore == 0 {
		return &Recorder{shmName: shmName}, nil
	}
	if !tracefmt.IsPowerOfTwo(numEntriesPerCore) {
		return nil, traceerr.New(traceerr.ConfigError, "num_entries must be a nonzero power of two")
	}

	offsets := tracefmt.BuildOffsets(numEntriesPerCore)
	total := int64(offsets[tracefmt.MaxCores])

	m, err := createShmMapping(shmName, total)
	if err != nil {
		return nil, err
	}
	if err := m.Lock(); err != nil {
		m.Close()
		unlinkShm(shmName)
		return nil, err
	}

	buf := m.Bytes()
	for i := range buf {
		buf[i] = 0
	}

	clk := newMonotonicClock()
	var flags tracefmt.Flags
	flags.TSCRate = clk.rateHz()
	flags.LcoreOffsets = offsets
	flags.Encode(buf[:tracefmt.FlagsSize()])

	r := &Recorder{
		shmName:    shmName,
		numEntries: numEntriesPerCore,
		m:          m,
		clk:        clk,
	}
	for i := 0; i < tracefmt.MaxCores; i++ {
		region, err := tracefmt.HistoryRegion(buf, offsets, i)
		if err != nil {
			m.Close()
			unlinkShm(shmName)
			return nil, traceerr.Wrap(traceerr.AttachError, "layout", err)
		}
		hv := newHistoryView(region, numEntriesPerCore)
		hv.initHeader(uint16(i))
		r.histories[i] = hv
	}

	return r, nil
}

// initLocal builds a Recorder over an in-process mapping instead of
// real shared memory, for tests that exercise the producer/exporter
// protocol without OS shm permissions.
func initLocal(numEntriesPerCore uint64) (*Recorder, error) {
	if !tracefmt.IsPowerOfTwo(numEntriesPerCore) {
		return nil, traceerr.New(traceerr.ConfigError, "num_entries must be a nonzero power of two")
	}
	offsets := tracefmt.BuildOffsets(numEntriesPerCore)
	total := int64(offsets[tracefmt.MaxCores])
	m := newLocalMapping(total)
	buf := m.Bytes()

	clk := newMonotonicClock()
	var flags tracefmt.Flags
	flags.TSCRate = clk.rateHz()
	flags.LcoreOffsets = offsets
	flags.Encode(buf[:tracefmt.FlagsSize()])

	r := &Recorder{numEntries: numEntriesPerCore, m: m, clk: clk}
	for i := 0; i < tracefmt.MaxCores; i++ {
		region, _ := tracefmt.HistoryRegion(buf, offsets, i)
		hv := newHistoryView(region, numEntriesPerCore)
		hv.initHeader(uint16(i))
		r.histories[i] = hv
	}
	return r, nil
}

// Bytes exposes the raw mapped region, e.g. so an exporter under test
// can attach to the same in-process mapping a Recorder just built
// rather than going through a real shm_open.
func (r *Recorder) Bytes() []byte {
	if r.m == nil {
		return nil
	}
	return r.m.Bytes()
}

// Record appends one entry to core_id's ring and publishes it (spec
// §4.B). It never blocks and never returns an error: an invalid
// core_id is silently ignored, matching the original's infallible
// record() contract (spec §7).
func (r *Recorder) Record(coreID uint16, tsc uint64, tpointID uint16, pollerID uint16, size uint32, objectID uint64, arg1 uint64) {
	if r.numEntries == 0 || int(coreID) >= tracefmt.MaxCores {
		return
	}
	hv := r.histories[coreID]
	if tsc == 0 {
		tsc = r.clk.now()
	}

	next := hv.NextEntry()
	slot := next & (r.numEntries - 1)

	hv.WriteEntry(slot, tracefmt.Entry{
		TSC:      tsc,
		TpointID: tpointID,
		PollerID: pollerID,
		Size:     size,
		ObjectID: objectID,
		Arg1:     arg1,
	})
	hv.IncrementTpointCount(tpointID)

	// Release: entry bytes above must be visible before next_entry
	// advances (spec §5).
	hv.PublishNextEntry(next + 1)
}

// Cleanup unmaps the trace file. If no entry was ever recorded on any
// core, the backing shared-memory object is unlinked; otherwise it is
// retained for post-mortem inspection (spec §4.B).
func (r *Recorder) Cleanup() error {
	if r.m == nil {
		return nil
	}
	unlink := true
	for i := 0; i < tracefmt.MaxCores; i++ {
		if r.histories[i].ReadEntry(0).TSC != 0 {
			unlink = false
			break
		}
	}
	err := r.m.Close()
	if unlink && r.shmName != "" {
		if uerr := unlinkShm(r.shmName); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}
