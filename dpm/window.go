// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// Package dpm describes the layout of the adapter's dual-ported memory
// control area and the volatile accessors used to reach it. It is the only
// package in this module allowed to touch the shared memory directly;
// every other package goes through a Window.
package dpm

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Window is a typed, bounds-checked view over the adapter's DPM region.
//
// All multi-byte fields are little-endian as seen by the host regardless of
// host byte order, matching the wire format the firmware was built against;
// implementations always decode/encode explicitly rather than relying on
// host endianness.
//
// Bit-set/clear helpers on 16 bit cells perform the read-modify-write under
// a lock: int_enable is written both by the interrupt demultiplexer
// (clearing bits) and by node I/O (setting bits), and per spec those writes
// must be atomic even though no additional synchronization is required
// between the two actors otherwise.
type Window interface {
	// Len returns the total mapped size in bytes.
	Len() int

	Uint8(off int) uint8
	SetUint8(off int, v uint8)
	Uint16(off int) uint16
	SetUint16(off int, v uint16)
	Uint32(off int) uint32
	SetUint32(off int, v uint32)

	// Bytes returns a copy of n bytes starting at off.
	Bytes(off, n int) []byte
	// SetBytes writes b starting at off.
	SetBytes(off int, b []byte)

	// SetBits16 ORs mask into the 16 bit cell at off, atomically with any
	// concurrent ClearBits16 on the same offset.
	SetBits16(off int, mask uint16)
	// ClearBits16 ANDs the complement of mask into the 16 bit cell at off.
	ClearBits16(off int, mask uint16)

	// Close releases the underlying mapping.
	Close() error
}

// memWindow is a Window backed by a plain byte slice. The mmap-backed
// production window embeds it and the in-memory test window is one; only
// the backing slice's origin differs.
type memWindow struct {
	mu  sync.Mutex
	buf []byte
}

func newMemWindow(buf []byte) *memWindow {
	return &memWindow{buf: buf}
}

// NewSimWindow returns an in-memory Window of the given size, with no real
// hardware behind it. It is the building block dpmtest.Peer uses to stand
// in for the firmware side of the link in tests.
func NewSimWindow(size int) Window {
	return newMemWindow(make([]byte, size))
}

func (w *memWindow) Len() int { return len(w.buf) }

func (w *memWindow) checkRange(off, n int) {
	if off < 0 || n < 0 || off+n > len(w.buf) {
		panic(fmt.Sprintf("dpm: access [%d:%d) out of range for window of size %d", off, off+n, len(w.buf)))
	}
}

func (w *memWindow) Uint8(off int) uint8 {
	w.checkRange(off, 1)
	return w.buf[off]
}

func (w *memWindow) SetUint8(off int, v uint8) {
	w.checkRange(off, 1)
	w.buf[off] = v
}

func (w *memWindow) Uint16(off int) uint16 {
	w.checkRange(off, 2)
	return binary.LittleEndian.Uint16(w.buf[off:])
}

func (w *memWindow) SetUint16(off int, v uint16) {
	w.checkRange(off, 2)
	binary.LittleEndian.PutUint16(w.buf[off:], v)
}

func (w *memWindow) Uint32(off int) uint32 {
	w.checkRange(off, 4)
	return binary.LittleEndian.Uint32(w.buf[off:])
}

func (w *memWindow) SetUint32(off int, v uint32) {
	w.checkRange(off, 4)
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *memWindow) Bytes(off, n int) []byte {
	w.checkRange(off, n)
	out := make([]byte, n)
	copy(out, w.buf[off:off+n])
	return out
}

func (w *memWindow) SetBytes(off int, b []byte) {
	w.checkRange(off, len(b))
	copy(w.buf[off:], b)
}

func (w *memWindow) SetBits16(off int, mask uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkRange(off, 2)
	v := binary.LittleEndian.Uint16(w.buf[off:])
	binary.LittleEndian.PutUint16(w.buf[off:], v|mask)
}

func (w *memWindow) ClearBits16(off int, mask uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkRange(off, 2)
	v := binary.LittleEndian.Uint16(w.buf[off:])
	binary.LittleEndian.PutUint16(w.buf[off:], v&^mask)
}

func (w *memWindow) Close() error { return nil }
