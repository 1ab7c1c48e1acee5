// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package traceexport implements the trace_record exporter: it polls
// a producer's live per-core circular buffers over shared memory,
// appends new entries to per-core scratch files, and on shutdown
// converges them into a single canonical trace file (spec §4.C).
package traceexport

import (
	"golang.org/x/sys/unix"

	"github.com/tracewatch/tracewatch/tracefmt"
	"github.com/tracewatch/tracewatch/tracerecorder"
	"github.com/tracewatch/tracewatch/traceerr"
)

// source is the read-only attachment to a producer's live trace file.
type source struct {
	fd      int
	full    []byte // the whole mapped region, PROT_READ
	flags   tracefmt.Flags
	history [tracefmt.MaxCores]*sourceView
}

// attachSource opens shmName read-only and maps it following the
// two-step dance in the original's input_trace_file_mmap: first map
// just the flags header to learn tsc_rate and the true file size,
// then remap the whole thing (spec §4.C step 3).
func attachSource(shmName string) (*source, error) {
	fd, err := unix.Open(tracerecorder.ShmPath(shmName), unix.O_RDONLY, 0)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.AttachError, "shm_open "+shmName, err)
	}

	hdrSize := int(tracefmt.FlagsSize())
	hdrMap, err := unix.Mmap(fd, 0, hdrSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, traceerr.Wrap(traceerr.AttachError, "mmap flags header", err)
	}
	flags := tracefmt.DecodeFlags(hdrMap)
	unix.Munmap(hdrMap)

	if flags.TSCRate == 0 {
		unix.Close(fd)
		return nil, traceerr.New(traceerr.InvalidSource, "tsc_rate is 0")
	}

	total := int(flags.LcoreOffsets[tracefmt.MaxCores])
	full, err := unix.Mmap(fd, 0, total, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, traceerr.Wrap(traceerr.AttachError, "mmap trace file", err)
	}

	s := &source{fd: fd, full: full, flags: flags}
	for i := 0; i < tracefmt.MaxCores; i++ {
		region, err := tracefmt.HistoryRegion(full, flags.LcoreOffsets, i)
		if err != nil {
			unix.Munmap(full)
			unix.Close(fd)
			return nil, traceerr.Wrap(traceerr.AttachError, "layout", err)
		}
		s.history[i] = newSourceView(region)
	}
	return s, nil
}

// attachSourceBytes builds a source directly over an already-mapped
// byte slice (e.g. a tracerecorder.Recorder's in-process mapping in
// tests), bypassing shm_open/mmap entirely.
func attachSourceBytes(full []byte) (*source, error) {
	flags := tracefmt.DecodeFlags(full[:tracefmt.FlagsSize()])
	if flags.TSCRate == 0 {
		return nil, traceerr.New(traceerr.InvalidSource, "tsc_rate is 0")
	}
	s := &source{fd: -1, full: full, flags: flags}
	for i := 0; i < tracefmt.MaxCores; i++ {
		region, err := tracefmt.HistoryRegion(full, flags.LcoreOffsets, i)
		if err != nil {
			return nil, traceerr.Wrap(traceerr.AttachError, "layout", err)
		}
		s.history[i] = newSourceView(region)
	}
	return s, nil
}

func (s *source) close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Munmap(s.full)
	if cerr := unix.Close(s.fd); err == nil {
		err = cerr
	}
	return err
}
