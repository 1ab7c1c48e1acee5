// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracerecorder

import (
	"testing"

	"github.com/tracewatch/tracewatch/tracefmt"
)

func TestInitRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := initLocal(3); err == nil {
		t.Fatal("expected error for non-power-of-two entry count")
	}
}

func TestInitZeroDisablesTracing(t *testing.T) {
	r, err := Init("/ignored", 0)
	if err != nil {
		t.Fatalf("Init(0): %v", err)
	}
	if r.Bytes() != nil {
		t.Fatal("expected no mapping when tracing disabled")
	}
	// Record must be a silent no-op.
	r.Record(0, 0, 1, 0, 0, 0, 0)
	if err := r.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestRecordIgnoresOutOfRangeCore(t *testing.T) {
	r, err := initLocal(16)
	if err != nil {
		t.Fatal(err)
	}
	r.Record(uint16(tracefmt.MaxCores), 1, 1, 0, 0, 0, 0)
	hv := r.histories[0]
	if hv.NextEntry() != 0 {
		t.Fatal("out-of-range core id must not affect core 0")
	}
}

func TestRecordAdvancesSequenceAndWrapsSlot(t *testing.T) {
	const n = 8
	r, err := initLocal(n)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(1); i <= 2*n+3; i++ {
		r.Record(0, i, 7, 0, 0, 0, 0)
		if got := r.histories[0].NextEntry(); got != i {
			t.Fatalf("after %d records, NextEntry() = %d, want %d", i, got, i)
		}
	}
	// The most recent write should be visible at slot
	// (next-1) mod n.
	next := r.histories[0].NextEntry()
	last := r.histories[0].ReadEntry((next - 1) & (n - 1))
	if last.TSC != next {
		t.Fatalf("last entry tsc = %d, want %d", last.TSC, next)
	}
}

func TestRecordSubstitutesClockWhenTSCZero(t *testing.T) {
	r, err := initLocal(8)
	if err != nil {
		t.Fatal(err)
	}
	r.Record(0, 0, 1, 0, 0, 0, 0)
	e := r.histories[0].ReadEntry(0)
	if e.TSC == 0 {
		t.Fatal("expected a nonzero substituted tsc")
	}
}

func TestRecordIncrementsTpointCount(t *testing.T) {
	r, err := initLocal(8)
	if err != nil {
		t.Fatal(err)
	}
	r.Record(0, 1, 5, 0, 0, 0, 0)
	r.Record(0, 2, 5, 0, 0, 0, 0)
	r.Record(0, 3, 9, 0, 0, 0, 0)
	h := r.histories[0].Header()
	if h.TpointCount[5] != 2 {
		t.Errorf("tpoint 5 count = %d, want 2", h.TpointCount[5])
	}
	if h.TpointCount[9] != 1 {
		t.Errorf("tpoint 9 count = %d, want 1", h.TpointCount[9])
	}
}

func TestCleanupWithoutShmNameSucceeds(t *testing.T) {
	r, err := initLocal(8)
	if err != nil {
		t.Fatal(err)
	}
	r.shmName = "" // local mapping has no real shm to unlink
	if err := r.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestEveryCoreHeaderMatchesOwner(t *testing.T) {
	r, err := initLocal(16)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < tracefmt.MaxCores; i++ {
		h := r.histories[i].Header()
		if h.OwnerCore != uint16(i) {
			t.Errorf("core %d: OwnerCore = %d", i, h.OwnerCore)
		}
		if h.NumEntries != 16 {
			t.Errorf("core %d: NumEntries = %d, want 16", i, h.NumEntries)
		}
	}
}
