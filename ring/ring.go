// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// Package ring implements the single-producer/single-consumer frame ring
// buffer used for both the tx and rx directions of a CAN node, living
// entirely inside the DPM.
package ring

import (
	"fmt"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/frame"
)

// InvalidStateFunc is called when a ring observes wptr/rptr/size values
// outside their valid range, or an advance that violates the
// full/empty invariants it is supposed to maintain. It is a hook so callers
// can route the report through their own logging channel; the default,
// installed by New, is a no-op.
type InvalidStateFunc func(msg string)

// Ring is a bounded circular queue of frame.Frame slots inside DPM,
// described by a dpm.BufferDescriptor. All producer operations come from
// exactly one side (the host for tx, the firmware for rx) and all consumer
// operations from the other; Ring itself does not know which side it runs
// on, the caller does.
type Ring struct {
	Desc      dpm.BufferDescriptor
	SlotBase  int // offset of slot 0 within the message area
	onInvalid InvalidStateFunc
}

// New returns a Ring bound to desc, whose slots start at slotBase within
// the DPM message area.
func New(desc dpm.BufferDescriptor, slotBase int, onInvalid InvalidStateFunc) *Ring {
	if onInvalid == nil {
		onInvalid = func(string) {}
	}
	return &Ring{Desc: desc, SlotBase: slotBase, onInvalid: onInvalid}
}

// Capacity is the usable capacity of the ring: size-1, since one slot is
// always reserved to keep full and empty distinguishable.
func (r *Ring) Capacity() int {
	return int(r.Desc.Size()) - 1
}

// state re-reads wptr, rptr and size from DPM, since the peer may mutate
// them between calls, and validates them.
func (r *Ring) state() (wptr, rptr, size int, ok bool) {
	w, rp, s := int(r.Desc.Wptr()), int(r.Desc.Rptr()), int(r.Desc.Size())
	if s <= 0 || w < 0 || w >= s || rp < 0 || rp >= s {
		r.onInvalid(fmt.Sprintf("ring: invalid descriptor state wptr=%d rptr=%d size=%d", w, rp, s))
		return 0, 0, 0, false
	}
	return w, rp, s, true
}

func isFull(wptr, rptr, size int) bool {
	if rptr == 0 && wptr == size-1 {
		return true
	}
	return rptr-wptr == 1
}

// IsEmpty reports whether the ring currently holds no frames.
func (r *Ring) IsEmpty() bool {
	wptr, rptr, _, ok := r.state()
	if !ok {
		return true
	}
	return wptr == rptr
}

// IsFull reports whether the ring currently has no free slot.
func (r *Ring) IsFull() bool {
	wptr, rptr, size, ok := r.state()
	if !ok {
		return true
	}
	return isFull(wptr, rptr, size)
}

// Count returns the number of frames currently queued.
func (r *Ring) Count() int {
	wptr, rptr, size, ok := r.state()
	if !ok {
		return 0
	}
	switch {
	case isFull(wptr, rptr, size):
		return size - 1
	case wptr == rptr:
		return 0
	case rptr < wptr:
		return wptr - rptr
	default:
		return size - (rptr - wptr)
	}
}

// WritePtr returns the current write-slot index.
func (r *Ring) WritePtr() int { return int(r.Desc.Wptr()) }

// ReadPtr returns the current read-slot index.
func (r *Ring) ReadPtr() int { return int(r.Desc.Rptr()) }

func (r *Ring) slotOffset(idx int) int {
	return r.SlotBase + int(r.Desc.Base()) + idx*frame.Size
}

// Peek returns the frame at the current read pointer without advancing it.
// The caller must have already established the ring is not empty.
func (r *Ring) Peek() frame.Frame {
	_, rptr, _, _ := r.state()
	b := r.Desc.Win.Bytes(r.slotOffset(rptr), frame.Size)
	return frame.Decode(b)
}

// PutAtWrite writes f into the slot at the current write pointer without
// advancing it. The caller must have already established the ring is not
// full.
func (r *Ring) PutAtWrite(f frame.Frame) {
	wptr, _, _, _ := r.state()
	var b [frame.Size]byte
	frame.Encode(f, b[:])
	r.Desc.Win.SetBytes(r.slotOffset(wptr), b[:])
}

// AdvanceWrite moves the write pointer forward by one slot, with the
// producer-side precondition that the ring was not full. It returns an
// error if that precondition was violated or if the ring is empty
// immediately after the advance, either of which indicates DPM corruption.
func (r *Ring) AdvanceWrite() error {
	wptr, rptr, size, ok := r.state()
	if !ok {
		return fmt.Errorf("ring: cannot advance write, invalid descriptor state")
	}
	if isFull(wptr, rptr, size) {
		r.onInvalid("ring: advance_write called while full")
		return fmt.Errorf("ring: advance_write called while full")
	}
	if wptr == size-1 {
		wptr = 0
	} else {
		wptr++
	}
	if wptr == rptr {
		r.onInvalid("ring: buffer empty immediately after advance_write")
		return fmt.Errorf("ring: buffer empty after advance_write, corruption suspected")
	}
	r.Desc.SetWptr(uint16(wptr))
	return nil
}

// AdvanceRead is the consumer-side mirror of AdvanceWrite.
func (r *Ring) AdvanceRead() error {
	wptr, rptr, size, ok := r.state()
	if !ok {
		return fmt.Errorf("ring: cannot advance read, invalid descriptor state")
	}
	if wptr == rptr {
		r.onInvalid("ring: advance_read called while empty")
		return fmt.Errorf("ring: advance_read called while empty")
	}
	if rptr == size-1 {
		rptr = 0
	} else {
		rptr++
	}
	if isFull(wptr, rptr, size) {
		r.onInvalid("ring: buffer full immediately after advance_read")
		return fmt.Errorf("ring: buffer full after advance_read, corruption suspected")
	}
	r.Desc.SetRptr(uint16(rptr))
	return nil
}
