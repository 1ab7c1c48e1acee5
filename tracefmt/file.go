// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import "fmt"

// HistoryRegion returns the byte range of the i-th PerCoreHistory
// within base, given the lcore_offsets array (spec §4.A). It bounds-
// checks against len(base) and against the offsets themselves; it
// does not interpret the region's contents.
func HistoryRegion(base []byte, offsets [MaxCores + 1]uint64, i int) ([]byte, error) {
	if i < 0 || i >= MaxCores {
		return nil, fmt.Errorf("tracefmt: core index %d out of range [0,%d)", i, MaxCores)
	}
	start, end := offsets[i], offsets[i+1]
	if end < start {
		return nil, fmt.Errorf("tracefmt: lcore_offsets[%d]=%d > lcore_offsets[%d]=%d", i, start, i+1, end)
	}
	if end > uint64(len(base)) {
		return nil, fmt.Errorf("tracefmt: lcore_offsets[%d]=%d exceeds mapped length %d", i+1, end, len(base))
	}
	return base[start:end], nil
}
