// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package traceerr defines the error taxonomy shared by the trace
// recorder and the trace_record exporter (spec §7). Errors carry a
// Kind so callers can distinguish fatal setup failures from the
// non-fatal OverflowNotice, without string-matching messages.
package traceerr

import "fmt"

// Kind classifies a trace subsystem error.
type Kind string

const (
	// ConfigError is an invalid flag combination, a non-power-of-
	// two entry count, or a missing required argument.
	ConfigError Kind = "ConfigError"
	// AttachError is a shm_open/mmap/ftruncate/mlock failure.
	// Fatal at init.
	AttachError Kind = "AttachError"
	// InvalidSource is a tsc_rate of 0 in an attached trace
	// source.
	InvalidSource Kind = "InvalidSource"
	// TraceRollback is an observed next_entry that decreased.
	TraceRollback Kind = "TraceRollback"
	// IoError is a scratch/aggregate file create, read, write, or
	// seek failure.
	IoError Kind = "IoError"
	// OverflowNotice reports that the exporter missed entries
	// because a producer outran it. It is never fatal.
	OverflowNotice Kind = "OverflowNotice"
)

// Error is a Kind paired with a human-readable detail. Its Error
// string matches the user-visible "<kind>: <detail>" format required
// by spec §7.
type Error struct {
	Kind   Kind
	Detail string
	Err    error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error of the given kind that wraps err.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if te, ok := err.(*Error); ok {
			e = te
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
