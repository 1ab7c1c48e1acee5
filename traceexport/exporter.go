// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traceexport

import (
	"fmt"
	"os"

	"go.uber.org/multierr"

	"github.com/tracewatch/tracewatch/tracefmt"
	"github.com/tracewatch/tracewatch/traceerr"
)

// coreState tracks one core's capture progress across polls.
type coreState struct {
	scratchPath string
	scratch     *os.File
	lastNext    uint64 // sequence number last captured up to
	captured    uint64 // total entries appended to the scratch file
	lossy       bool   // at least one poll dropped entries to overflow
	firstTSC    uint64 // tsc of the first entry ever captured
	lastTSC     uint64 // tsc of the most recent entry captured
}

// Exporter implements trace_record's poll/aggregate lifecycle: attach
// to a producer's live trace file, repeatedly append newly published
// entries to per-core scratch files, then converge the scratch files
// and the live headers into one canonical trace file (spec §4.C).
type Exporter struct {
	src     *source
	outPath string
	cores   [tracefmt.MaxCores]*coreState

	// Logf, if set, is called once per core on every poll that
	// appends at least one entry, formatted like the original's
	// g_verbose progress line ("Append N trace_entry for lcore K").
	// Left nil by default; a caller wanting quiet operation simply
	// never sets it.
	Logf func(format string, args ...interface{})

	// Warnf, if set, is called whenever a poll detects overflow on a
	// core (spec §7 OverflowNotice: "NOT fatal — logged with k").
	// Unlike Logf this is not gated by the exporter's quiet mode; it
	// is a correctness-relevant warning, not progress chatter.
	Warnf func(format string, args ...interface{})
}

// Open attaches to shmName and prepares scratch files alongside
// outPath. If outPath (or one of its scratch companions) already
// exists, it is removed first, matching the original's refusal to
// append to a stale trace file.
func Open(shmName, outPath string) (*Exporter, error) {
	src, err := attachSource(shmName)
	if err != nil {
		return nil, err
	}
	return open(src, outPath)
}

// OpenBytes attaches directly to an already-mapped trace buffer (a
// tracerecorder.Recorder's in-process mapping, in tests) instead of a
// named shared-memory segment.
func OpenBytes(full []byte, outPath string) (*Exporter, error) {
	src, err := attachSourceBytes(full)
	if err != nil {
		return nil, err
	}
	return open(src, outPath)
}

func open(src *source, outPath string) (*Exporter, error) {
	removeIfExists(outPath)
	for i := 0; i < tracefmt.MaxCores; i++ {
		removeIfExists(scratchPath(outPath, i))
	}

	e := &Exporter{src: src, outPath: outPath}
	for i := 0; i < tracefmt.MaxCores; i++ {
		sp := scratchPath(outPath, i)
		f, err := createScratch(sp)
		if err != nil {
			e.abort()
			return nil, err
		}
		e.cores[i] = &coreState{scratchPath: sp, scratch: f}
	}
	return e, nil
}

func removeIfExists(path string) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
}

// abort tears down partially-opened scratch state after a failed
// Open, best-effort.
func (e *Exporter) abort() {
	for _, cs := range e.cores {
		if cs == nil {
			continue
		}
		cs.scratch.Close()
		os.Remove(cs.scratchPath)
	}
	e.src.close()
}

// Abort deletes all scratch files and detaches from the source
// without writing an output file. Callers use this after a fatal poll
// error (e.g. TraceRollback, spec §8 S6) to leave no partial trace
// file behind.
func (e *Exporter) Abort() {
	e.abort()
}

// PollOnce captures every core's newly published entries since the
// previous poll (for the first call, every entry the producer has
// published that is still in the ring) into its scratch file. It never returns an error for a single core's
// overflow: overflow is bounded data loss (spec §8), not a failure,
// and is recorded on the core's state for the final summary.
func (e *Exporter) PollOnce() error {
	var errs error
	for i := 0; i < tracefmt.MaxCores; i++ {
		if err := e.pollOneCore(i); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("core %d: %w", i, err))
		}
	}
	return errs
}

// pollOneCore ports lcore_trace_record's capture step: compute how
// many entries the producer has published since our last observation,
// clamp to the ring's capacity when the producer has lapped us
// (overflow), and append that many entries to the scratch file,
// splitting the read in two when the capture range wraps past the end
// of the ring.
func (e *Exporter) pollOneCore(i int) error {
	cs := e.cores[i]
	v := e.src.history[i]
	numEntries := v.NumEntries()
	if numEntries == 0 {
		return nil
	}

	next := v.NextEntry()
	if next < cs.lastNext {
		return traceerr.New(traceerr.TraceRollback, fmt.Sprintf("next_entry went from %d to %d", cs.lastNext, next))
	}
	delta := next - cs.lastNext
	if delta == 0 {
		return nil
	}

	start := cs.lastNext
	count := delta
	if delta > numEntries {
		cs.lossy = true
		missed := delta - numEntries
		start = next - numEntries
		count = numEntries
		if e.Warnf != nil {
			e.Warnf("%s", traceerr.New(traceerr.OverflowNotice,
				fmt.Sprintf("lcore %d missed %d entries", i, missed)).Error())
		}
	}

	wasEmpty := cs.captured == 0
	slot := start & (numEntries - 1)
	firstSlot, lastSlot := slot, (start+count-1)&(numEntries-1)
	remaining := count
	for remaining > 0 {
		run := numEntries - slot
		if run > remaining {
			run = remaining
		}
		if _, err := contWrite(cs.scratch, v.EntryBytes(slot, run)); err != nil {
			return traceerr.Wrap(traceerr.IoError, "scratch write", err)
		}
		cs.captured += run
		slot = (slot + run) & (numEntries - 1)
		remaining -= run
	}
	if wasEmpty {
		cs.firstTSC = v.ReadEntry(firstSlot).TSC
	}
	cs.lastTSC = v.ReadEntry(lastSlot).TSC
	cs.lastNext = next
	if e.Logf != nil {
		e.Logf("Append %d trace_entry for lcore %d", count, i)
	}
	return nil
}

// Summary is one core's final capture statistics, printed after
// Aggregate (spec's supplemented per-core summary report).
type Summary struct {
	Core         int
	Captured     uint64
	Dropped      uint64
	Lossy        bool
	DurationUSec uint64 // (lastTSC-firstTSC) / (tsc_rate/1e6); 0 if fewer than 2 entries
}

// Aggregate performs one last poll, then streams every core's scratch
// file and live tpoint counters into a single canonical trace file at
// outPath, in the on-disk format tracefmt describes. Scratch files are
// removed on success. It returns one Summary per core plus any errors
// encountered, aggregated via multierr so one core's failure doesn't
// hide another's.
func (e *Exporter) Aggregate() ([]Summary, error) {
	if err := e.PollOnce(); err != nil {
		return nil, err
	}

	var counts [tracefmt.MaxCores]uint64
	for i, cs := range e.cores {
		counts[i] = cs.captured
	}
	offsets := tracefmt.BuildOffsetsVarying(counts)

	out, err := os.OpenFile(e.outPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.IoError, "create "+e.outPath, err)
	}

	// Write the unchanged portion of the flags header verbatim from
	// the live source, then the freshly computed offsets, rather than
	// re-encoding the whole struct (spec §4.C step 2, §9).
	prefix := make([]byte, tracefmt.FlagsPrefixSize())
	e.src.flags.EncodePrefix(prefix)
	if _, err := contWrite(out, prefix); err != nil {
		out.Close()
		return nil, traceerr.Wrap(traceerr.IoError, "write flags prefix", err)
	}
	offsetsBuf := make([]byte, tracefmt.FlagsSize()-tracefmt.FlagsPrefixSize())
	(&tracefmt.Flags{LcoreOffsets: offsets}).EncodeOffsets(offsetsBuf)
	if _, err := contWrite(out, offsetsBuf); err != nil {
		out.Close()
		return nil, traceerr.Wrap(traceerr.IoError, "write lcore offsets", err)
	}

	summaries := make([]Summary, tracefmt.MaxCores)
	var errs error
	for i := 0; i < tracefmt.MaxCores; i++ {
		cs := e.cores[i]
		v := e.src.history[i]
		srcHeader := v.Header()

		outHeader := tracefmt.HistoryHeader{
			OwnerCore:   uint16(i),
			NumEntries:  cs.captured,
			TpointCount: srcHeader.TpointCount,
			NextEntry:   cs.captured,
		}
		hdr := make([]byte, entriesOff)
		outHeader.Encode(hdr)
		if _, err := contWrite(out, hdr); err != nil {
			errs = multierr.Append(errs, traceerr.Wrap(traceerr.IoError, "write header", err))
			continue
		}

		if _, err := cs.scratch.Seek(0, 0); err != nil {
			errs = multierr.Append(errs, traceerr.Wrap(traceerr.IoError, "seek scratch", err))
			continue
		}
		n, err := contCopy(out, cs.scratch)
		if err != nil {
			errs = multierr.Append(errs, traceerr.Wrap(traceerr.IoError, "copy scratch", err))
			continue
		}
		if uint64(n) != cs.captured*tracefmt.EntrySize {
			errs = multierr.Append(errs, traceerr.New(traceerr.IoError,
				fmt.Sprintf("core %d: scratch has %d bytes, want %d", i, n, cs.captured*tracefmt.EntrySize)))
		}

		dropped := cs.lastNext - cs.captured
		var durUSec uint64
		if cs.captured >= 2 && e.src.flags.TSCRate >= 1_000_000 {
			durUSec = (cs.lastTSC - cs.firstTSC) / (e.src.flags.TSCRate / 1_000_000)
		}
		summaries[i] = Summary{
			Core:         i,
			Captured:     cs.captured,
			Dropped:      dropped,
			Lossy:        cs.lossy,
			DurationUSec: durUSec,
		}
	}

	if cerr := out.Close(); cerr != nil {
		errs = multierr.Append(errs, traceerr.Wrap(traceerr.IoError, "close "+e.outPath, cerr))
	}

	for _, cs := range e.cores {
		cs.scratch.Close()
		os.Remove(cs.scratchPath)
	}
	if cerr := e.src.close(); cerr != nil {
		errs = multierr.Append(errs, cerr)
	}

	return summaries, errs
}
