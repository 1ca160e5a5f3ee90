// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package dpm

// BufferDescriptor is a typed view over one buffer_vars record (base, wptr,
// rptr, size) living at a fixed offset in the control area. It does not
// itself enforce ring semantics — that is ring.Ring's job — it is only the
// raw field accessor, kept here because it touches the window directly.
type BufferDescriptor struct {
	Win Window
	Off int
}

// Base returns the byte offset within the message area of the first frame
// slot.
func (d BufferDescriptor) Base() uint16 { return d.Win.Uint16(d.Off + bdBase) }

// SetBase and SetSize are written once, at boot, by the firmware side of
// the link; dpmtest.Peer is their only caller in this module.
func (d BufferDescriptor) SetBase(v uint16) { d.Win.SetUint16(d.Off+bdBase, v) }
func (d BufferDescriptor) SetSize(v uint16) { d.Win.SetUint16(d.Off+bdSize, v) }

// Wptr returns the write-pointer slot index.
func (d BufferDescriptor) Wptr() uint16 { return d.Win.Uint16(d.Off + bdWptr) }

// SetWptr commits a new write-pointer slot index with a single 16 bit store.
func (d BufferDescriptor) SetWptr(v uint16) { d.Win.SetUint16(d.Off+bdWptr, v) }

// Rptr returns the read-pointer slot index.
func (d BufferDescriptor) Rptr() uint16 { return d.Win.Uint16(d.Off + bdRptr) }

// SetRptr commits a new read-pointer slot index with a single 16 bit store.
func (d BufferDescriptor) SetRptr(v uint16) { d.Win.SetUint16(d.Off+bdRptr, v) }

// Size returns the total slot count, one of which is always reserved so
// that full and empty remain distinguishable.
func (d BufferDescriptor) Size() uint16 { return d.Win.Uint16(d.Off + bdSize) }
