// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traceexport

import (
	"fmt"
	"io"
	"os"

	"github.com/tracewatch/tracewatch/traceerr"
)

// scratchPath returns the per-core scratch file companion to outPath,
// matching the original's "<path>-<core>" naming.
func scratchPath(outPath string, core int) string {
	return fmt.Sprintf("%s-%d", outPath, core)
}

// createScratch creates a fresh scratch file, failing if one already
// exists under this name (O_EXCL mirrors the original's refusal to
// silently append to stale scratch data).
func createScratch(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.IoError, "create scratch "+path, err)
	}
	return f, nil
}

// contWrite writes the full buffer, retrying on short writes the way
// the original's cont_write retries on EINTR.
func contWrite(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// contCopy streams all of r into w through a fixed-size buffer,
// matching the original's 32 KiB aggregation copy buffer.
func contCopy(w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	return io.CopyBuffer(w, r, buf)
}
