// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracerecorder

import "time"

// clock supplies the producer's notion of "tsc" when a caller doesn't
// supply one (spec §4.B: "If tsc == 0, the producer MUST substitute
// the current clock value"). The original measures a hardware TSC
// and calibrates tsc_rate from it; Go has no portable equivalent, so
// the recorder uses a monotonic nanosecond clock and reports
// tsc_rate = 1e9 accordingly. Swappable so tests can drive record()
// with deterministic timestamps.
type clock interface {
	now() uint64
	rateHz() uint64
}

type monotonicClock struct{ start time.Time }

func newMonotonicClock() monotonicClock {
	return monotonicClock{start: time.Now()}
}

func (c monotonicClock) now() uint64 {
	return uint64(time.Since(c.start).Nanoseconds()) + 1 // never 0; 0 is reserved
}

func (monotonicClock) rateHz() uint64 { return 1_000_000_000 }
