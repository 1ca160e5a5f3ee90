// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package dpm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapWindow is the production Window backend: a PCI BAR resource file
// memory-mapped with golang.org/x/sys/unix, the way other boards in this
// codebase's lineage map /dev/mem or /dev/gpiomem.
type mmapWindow struct {
	*memWindow
	f *os.File
}

// OpenBAR maps size bytes of the PCI BAR resource file at path (typically
// /sys/bus/pci/devices/<id>/resource2 or similar, supplied by the
// surrounding driver shell that owns PCI enumeration).
//
// This function is the seam where the out-of-scope "PCI/platform device
// enumeration and BAR mapping" collaborator attaches: it is handed a
// resource file path and a length, and knows nothing else about PCI.
func OpenBAR(path string, size int) (Window, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("dpm: opening BAR resource %s: %w", path, err)
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("dpm: mmap of %s (%d bytes) failed: %w", path, size, err)
	}
	return &mmapWindow{memWindow: newMemWindow(buf), f: f}, nil
}

func (w *mmapWindow) Close() error {
	err := unix.Munmap(w.buf)
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
