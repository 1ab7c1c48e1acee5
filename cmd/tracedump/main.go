// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tracedump prints the contents of an aggregated trace file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tracewatch/tracewatch/tracefmt"
)

func main() {
	var (
		flagInput = flag.String("i", "trace.out", "input aggregated trace `file`")
		flagCore  = flag.Int("core", -1, "dump only this core (default: all cores with entries)")
	)
	flag.Parse()

	data, err := os.ReadFile(*flagInput)
	if err != nil {
		log.Fatal(err)
	}

	flags := tracefmt.DecodeFlags(data)
	fmt.Printf("tsc_rate: %d\n", flags.TSCRate)

	for i := 0; i < tracefmt.MaxCores; i++ {
		if *flagCore >= 0 && i != *flagCore {
			continue
		}
		region, err := tracefmt.HistoryRegion(data, flags.LcoreOffsets, i)
		if err != nil {
			log.Fatal(err)
		}
		dumpCore(i, region)
	}
}

func dumpCore(core int, region []byte) {
	headerSize := int(tracefmt.HistoryHeaderSize())
	h := tracefmt.DecodeHistoryHeader(region[:headerSize])
	if h.NumEntries == 0 {
		return
	}

	fmt.Printf("core %d: %d entries, next_entry=%d\n", core, h.NumEntries, h.NextEntry)
	for tp, count := range h.TpointCount {
		if count > 0 {
			fmt.Printf("  tpoint %4d: %d events\n", tp, count)
		}
	}
	for i := uint64(0); i < h.NumEntries; i++ {
		off := headerSize + int(i)*tracefmt.EntrySize
		e := tracefmt.DecodeEntry(region[off : off+tracefmt.EntrySize])
		fmt.Printf("  [%6d] tsc=%-12d tpoint=%-5d poller=%-5d size=%-6d object_id=%#x arg1=%#x\n",
			i, e.TSC, e.TpointID, e.PollerID, e.Size, e.ObjectID, e.Arg1)
	}
}
