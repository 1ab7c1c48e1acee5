// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracefmt defines the on-disk/in-shm binary layout shared by
// the trace recorder and the trace_record exporter: a TraceFlags
// header followed by one PerCoreHistory region per core, each holding
// a power-of-two circular buffer of fixed-size Entry records.
//
// All integers are little-endian. Structures are encoded and decoded
// field-by-field rather than via a single binary.Read/Write of the Go
// struct, because TraceFlags.LcoreOffsets must be the structure's
// trailing field for the "flags without offsets" prefix used during
// aggregation (see Flags.EncodePrefix) to be well defined; a whole-
// struct copy would not guarantee that placement survives compiler
// layout decisions.
package tracefmt // import "github.com/tracewatch/tracewatch/tracefmt"
