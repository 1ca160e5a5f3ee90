// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/golang/glog"
)

// controlResetter drives the adapter's reset and firmware-update-enable
// pins through a one-byte PCI control resource file, the same kind of
// seam dpm.OpenBAR attaches to for the DPM window itself: PCI/platform
// enumeration owns the resource path, this struct only knows the bit
// layout of whatever register it's handed.
//
//	bit 0: board reset, active high
//	bit 1: firmware-update-enable pin, active high
type controlResetter struct {
	f *os.File
}

const (
	ctrlResetBit    = 1 << 0
	ctrlFWUpdateBit = 1 << 1
)

func openControlResetter(path string) (*controlResetter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	return &controlResetter{f: f}, nil
}

func (r *controlResetter) readBit() byte {
	var b [1]byte
	if _, err := r.f.ReadAt(b[:], 0); err != nil {
		glog.Errorf("hcanctl: reading control register: %v", err)
	}
	return b[0]
}

func (r *controlResetter) writeBit(mask byte, set bool) {
	v := r.readBit()
	if set {
		v |= mask
	} else {
		v &^= mask
	}
	if _, err := r.f.WriteAt([]byte{v}, 0); err != nil {
		glog.Errorf("hcanctl: writing control register: %v", err)
	}
}

func (r *controlResetter) AssertReset()        { r.writeBit(ctrlResetBit, true) }
func (r *controlResetter) DeassertReset()      { r.writeBit(ctrlResetBit, false) }
func (r *controlResetter) EnableFWUpdate(on bool) { r.writeBit(ctrlFWUpdateBit, on) }

func (r *controlResetter) Close() error { return r.f.Close() }
