// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package ring

import (
	"math/rand"
	"testing"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/frame"
)

func newTestRing(t *testing.T, size uint16) *Ring {
	t.Helper()
	const slotBase = 0
	const descOff = 4096 // plenty of room for slots before the descriptor
	win := dpm.NewSimWindow(descOff + 64)
	desc := dpm.BufferDescriptor{Win: win, Off: descOff}
	win.SetUint16(descOff, 0)    // base
	win.SetUint16(descOff+2, 0)  // wptr
	win.SetUint16(descOff+4, 0)  // rptr
	win.SetUint16(descOff+6, size)
	var invalid string
	r := New(desc, slotBase, func(msg string) { invalid = msg; t.Log(msg) })
	t.Cleanup(func() {
		if invalid != "" {
			t.Errorf("ring reported an invalid state: %s", invalid)
		}
	})
	return r
}

func TestCapacity(t *testing.T) {
	for _, size := range []uint16{2, 4, 8, 64} {
		r := newTestRing(t, size)
		if got, want := r.Capacity(), int(size)-1; got != want {
			t.Errorf("size=%d: Capacity()=%d, want %d", size, got, want)
		}
	}
}

func TestEmptyFullInvariants(t *testing.T) {
	const size = 8
	r := newTestRing(t, size)
	rnd := rand.New(rand.NewSource(1))
	outstanding := 0

	for i := 0; i < 2000; i++ {
		if outstanding < r.Capacity() && (outstanding == 0 || rnd.Intn(2) == 0) {
			r.PutAtWrite(frame.Frame{ID: uint32(i)})
			if err := r.AdvanceWrite(); err != nil {
				t.Fatalf("AdvanceWrite: %v", err)
			}
			outstanding++
		} else if outstanding > 0 {
			if err := r.AdvanceRead(); err != nil {
				t.Fatalf("AdvanceRead: %v", err)
			}
			outstanding--
		}

		if got, want := r.Count(), outstanding; got != want {
			t.Fatalf("iter %d: Count()=%d, want %d", i, got, want)
		}
		if got, want := r.IsEmpty(), outstanding == 0; got != want {
			t.Fatalf("iter %d: IsEmpty()=%v, want %v", i, got, want)
		}
		if got, want := r.IsFull(), outstanding == r.Capacity(); got != want {
			t.Fatalf("iter %d: IsFull()=%v, want %v", i, got, want)
		}
	}
}

func TestFillDrainReturnsToOrigin(t *testing.T) {
	const size = 5
	r := newTestRing(t, size)
	for i := 0; i < r.Capacity(); i++ {
		r.PutAtWrite(frame.Frame{ID: uint32(i)})
		if err := r.AdvanceWrite(); err != nil {
			t.Fatalf("AdvanceWrite: %v", err)
		}
	}
	if !r.IsFull() {
		t.Fatalf("expected ring to be full after filling to capacity")
	}
	for i := 0; i < r.Capacity(); i++ {
		if err := r.AdvanceRead(); err != nil {
			t.Fatalf("AdvanceRead: %v", err)
		}
	}
	if !r.IsEmpty() {
		t.Fatalf("expected ring to be empty after draining")
	}
	// Filling to capacity moves each pointer size-1 slots; one more
	// write/read pair completes the lap around all size slots.
	r.PutAtWrite(frame.Frame{ID: uint32(r.Capacity())})
	if err := r.AdvanceWrite(); err != nil {
		t.Fatalf("AdvanceWrite: %v", err)
	}
	if err := r.AdvanceRead(); err != nil {
		t.Fatalf("AdvanceRead: %v", err)
	}
	if r.WritePtr() != 0 || r.ReadPtr() != 0 {
		t.Fatalf("expected pointers to return to (0,0), got (%d,%d)", r.WritePtr(), r.ReadPtr())
	}
}

func TestFIFOOrder(t *testing.T) {
	r := newTestRing(t, 8)
	for i := 0; i < 20; i++ {
		if r.IsFull() {
			got := r.Peek()
			if err := r.AdvanceRead(); err != nil {
				t.Fatalf("AdvanceRead: %v", err)
			}
			_ = got
		}
		r.PutAtWrite(frame.Frame{ID: uint32(i)})
		if err := r.AdvanceWrite(); err != nil {
			t.Fatalf("AdvanceWrite: %v", err)
		}
	}
	var got []uint32
	for !r.IsEmpty() {
		got = append(got, r.Peek().ID)
		if err := r.AdvanceRead(); err != nil {
			t.Fatalf("AdvanceRead: %v", err)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i] != got[i-1]+1 {
			t.Fatalf("frames out of FIFO order: %v", got)
		}
	}
}
