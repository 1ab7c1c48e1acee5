// Copyright 2024 The go-tracewatch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracerecorder

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tracewatch/tracewatch/traceerr"
)

// ShmPath resolves a POSIX shared-memory object name (spec §6: "/<app>
// _trace.<shm_id>" or "/<app>_trace.pid<pid>") to the backing file
// path. Go has no direct shm_open wrapper; on Linux (and other
// platforms that implement POSIX shm as a tmpfs-backed regular file)
// shm_open(name, ...) is equivalent to opening /dev/shm/name with the
// leading slash stripped, which is what glibc's shm_open itself does.
// Exported so the exporter (a separate process/package) resolves the
// same name to the same path.
func ShmPath(name string) string {
	return filepath.Join("/dev/shm", strings.TrimPrefix(name, "/"))
}

// shmMapping is a mapping backed by a real POSIX shared-memory
// segment: shm_open(O_RDWR|O_CREAT, 0600), ftruncate to size, then
// mmap(PROT_READ|PROT_WRITE, MAP_SHARED) (spec §4.B init).
type shmMapping struct {
	fd  int
	buf []byte
}

func createShmMapping(name string, size int64) (*shmMapping, error) {
	fd, err := unix.Open(ShmPath(name), unix.O_RDWR|unix.O_CREAT, 0600)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.AttachError, "shm_open "+name, err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, traceerr.Wrap(traceerr.AttachError, "ftruncate", err)
	}
	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, traceerr.Wrap(traceerr.AttachError, "mmap", err)
	}
	return &shmMapping{fd: fd, buf: buf}, nil
}

func (m *shmMapping) Bytes() []byte { return m.buf }

// Lock best-effort pins the mapping in RAM via mlock. The original
// source treats mlock as Linux-only and non-fatal on other platforms;
// on Linux itself, only ENOMEM (the kernel explicitly refusing due to
// memory pressure) should fail initialization (spec §4.B, §9).
func (m *shmMapping) Lock() error {
	if err := unix.Mlock(m.buf); err != nil {
		if err == unix.ENOMEM {
			return traceerr.Wrap(traceerr.AttachError, "mlock", err)
		}
		// Best effort: log-worthy, not fatal.
		return nil
	}
	return nil
}

func (m *shmMapping) Close() error {
	err := unix.Munmap(m.buf)
	if cerr := unix.Close(m.fd); err == nil {
		err = cerr
	}
	return err
}

// unlinkShm removes the named shared-memory object.
func unlinkShm(name string) error {
	return unix.Unlink(ShmPath(name))
}
