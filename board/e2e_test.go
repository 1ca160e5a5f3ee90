// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/frame"
)

// e2eScenario 1: reset, set 500kbps, start both; a frame written on A
// arrives unchanged on B, apart from the timestamp (ignored) and the node
// index, which the receiving side stamps with B's index.
func TestE2EBasicRoundTrip(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.peer.SetBus([][]int{{1}, {0}})
	a, b := rig.board.Node(0), rig.board.Node(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rig.board.ResetBoard(ctx); err != nil {
		t.Fatalf("ResetBoard: %v", err)
	}
	for _, n := range []*Node{a, b} {
		if err := n.SetBitrate(ctx, dpm.Bitrate500k); err != nil {
			t.Fatalf("SetBitrate: %v", err)
		}
		if err := n.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	sent := frame.Frame{ID: 0xab, Timestamp: 12345, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	sent.SetDLC(8)
	sent.SetExtended(false)
	if err := a.WriteFrame(ctx, sent); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer readCancel()
	got, err := b.ReadFrame(readCtx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	got.Timestamp = sent.Timestamp // timestamp is explicitly ignored by this scenario
	want := sent
	want.SetNode(b.Index())
	if got != want {
		t.Fatalf("ReadFrame() = %+v, want %+v", got, want)
	}
}

// e2eScenario 2: a range filter [0x0a, 0x0f] on B passes exactly the six
// frames whose ids fall in that range.
func TestE2ERangeFilter(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.peer.SetBus([][]int{{1}, {0}})
	a, b := rig.board.Node(0), rig.board.Node(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, n := range []*Node{a, b} {
		if err := n.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if err := b.SetFilter(ctx, Filter{Kind: FilterRange, Lo: 0x0a, Hi: 0x0f}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	for id := uint32(0); id < 0xff; id++ {
		if err := a.WriteFrame(ctx, frame.Frame{ID: id}); err != nil {
			t.Fatalf("WriteFrame(id=%#x): %v", id, err)
		}
	}

	var got []uint32
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		readCtx, readCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		f, err := b.ReadFrame(readCtx)
		readCancel()
		if err != nil {
			continue
		}
		got = append(got, f.ID)
		if len(got) == 6 {
			break
		}
	}
	if len(got) != 6 {
		t.Fatalf("got %d frames, want 6: %v", len(got), got)
	}
	for i, want := range []uint32{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f} {
		if got[i] != want {
			t.Fatalf("frame %d id = %#x, want %#x", i, got[i], want)
		}
	}
}

// e2eScenario 3: frames queued into A's tx ring while A is in reset mode
// sit there (reset doesn't transmit); once A goes active, B's rx ring
// receives exactly that many frames, in FIFO order.
func TestE2EQueuedFramesDrainOnStart(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.peer.SetBus([][]int{{1}, {0}})
	a, b := rig.board.Node(0), rig.board.Node(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start(b): %v", err)
	}

	var written int
	for {
		ok, err := a.TryWriteFrame(frame.Frame{ID: uint32(written)})
		if err != nil {
			t.Fatalf("TryWriteFrame: %v", err)
		}
		if !ok {
			break
		}
		written++
	}
	if written == 0 {
		t.Fatal("expected at least one frame to fit in the tx ring")
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start(a): %v", err)
	}

	var got []uint32
	deadline := time.Now().Add(time.Second)
	for len(got) < written && time.Now().Before(deadline) {
		readCtx, readCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		f, err := b.ReadFrame(readCtx)
		readCancel()
		if err != nil {
			continue
		}
		got = append(got, f.ID)
	}
	if len(got) != written {
		t.Fatalf("got %d frames, want %d", len(got), written)
	}
	for i, id := range got {
		if id != uint32(i) {
			t.Fatalf("frames out of FIFO order: %v", got)
		}
	}
}

// e2eScenario 4: a passive B never receives A's writes; switching B to
// active lets the next write through.
func TestE2EPassiveModeDoesNotReceive(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.peer.SetBus([][]int{{1}, {0}})
	a, b := rig.board.Node(0), rig.board.Node(1)

	// ctx must outlive the 1s silent window below, since B is switched
	// to active with it afterwards.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start(a): %v", err)
	}
	if err := b.StartPassive(ctx); err != nil {
		t.Fatalf("StartPassive(b): %v", err)
	}

	if err := a.WriteFrame(ctx, frame.Frame{ID: 1}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	silentCtx, silentCancel := context.WithTimeout(context.Background(), time.Second)
	defer silentCancel()
	if _, err := b.ReadFrame(silentCtx); err == nil {
		t.Fatal("ReadFrame: expected no frame to arrive while B is passive")
	}

	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start(b): %v", err)
	}
	if err := a.WriteFrame(ctx, frame.Frame{ID: 2}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	defer readCancel()
	f, err := b.ReadFrame(readCtx)
	if err != nil {
		t.Fatalf("ReadFrame after B went active: %v", err)
	}
	if f.ID != 2 {
		t.Fatalf("ReadFrame() id = %d, want 2", f.ID)
	}
}

// e2eScenario 5: concurrent command callers neither deadlock nor starve,
// and cmd_ack_cnt only ever increases.
func TestE2EConcurrentCommandsStayOrderedAndLive(t *testing.T) {
	rig := newTestRig(t, 1)
	node := rig.board.Node(0)

	var wg sync.WaitGroup
	var calls int64
	stop := make(chan struct{})
	time.AfterFunc(300*time.Millisecond, func() { close(stop) })
	worker := func(f func(context.Context) error) {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			err := f(ctx)
			cancel()
			if err != nil {
				t.Errorf("command failed: %v", err)
				return
			}
			atomic.AddInt64(&calls, 1)
		}
	}

	var lastAck uint16
	wg.Add(2)
	go worker(func(ctx context.Context) error {
		if err := node.ResetTimestamp(ctx); err != nil {
			return err
		}
		ack := rig.board.GetBoardStatus().CmdAckCount()
		if ack <= lastAck {
			return fmt.Errorf("cmd_ack_cnt went from %d to %d", lastAck, ack)
		}
		lastAck = ack
		return nil
	})
	go worker(func(ctx context.Context) error { _ = node.GetBitrate(); return nil })
	wg.Wait()

	if atomic.LoadInt64(&calls) == 0 {
		t.Fatal("no commands completed; workers may have deadlocked")
	}
}

// e2eScenario 6: a cancelled read returns restart-required and leaves the
// rx ring untouched.
func TestE2ECancelledReadLeavesRingUntouched(t *testing.T) {
	rig := newTestRig(t, 1)
	node := rig.board.Node(0)

	before := node.RxMsgCount()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := node.ReadFrame(ctx)
	berr, ok := err.(*Error)
	if !ok || berr.Kind != RestartRequired {
		t.Fatalf("ReadFrame: got err %v, want a RestartRequired *Error", err)
	}
	if after := node.RxMsgCount(); after != before {
		t.Fatalf("RxMsgCount() changed from %d to %d across a cancelled read", before, after)
	}
}
