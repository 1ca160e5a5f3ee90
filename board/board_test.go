// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/dpm/dpmtest"
	"github.com/emtrion/hcandrv/frame"
)

// testRig wires one Board to a dpmtest.Peer over a shared in-memory
// window, with the peer's IRQ channel pumped into the board's demux, the
// way a real interrupt line would be.
type testRig struct {
	board *Board
	peer  *dpmtest.Peer
}

func newTestRig(t *testing.T, nodeCount int) *testRig {
	t.Helper()
	layout, err := dpm.NewLayout(64*1024, nodeCount)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	win := dpm.NewSimWindow(layout.DPMSize)
	peer := dpmtest.NewPeer(win, layout)
	go peer.Run()
	t.Cleanup(peer.Close)

	cfg := DefaultConfig
	cfg.NodeCount = nodeCount
	cfg.ResetPollInterval = time.Millisecond
	cfg.ResetTimeout = 500 * time.Millisecond
	cfg.CommandTimeout = 500 * time.Millisecond

	b, err := Attach(win, cfg, peer)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	b.ServeInterrupts(peer.IRQ())
	t.Cleanup(func() { b.Close() })

	return &testRig{board: b, peer: peer}
}

func startNode(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestSetBitrateRoundTrip(t *testing.T) {
	rig := newTestRig(t, 2)
	node := rig.board.Node(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := node.SetBitrate(ctx, dpm.Bitrate500k); err != nil {
		t.Fatalf("SetBitrate: %v", err)
	}
	if got := node.GetCANStatus().BitrateIndex; got != uint16(dpm.Bitrate500k) {
		t.Fatalf("BitrateIndex = %d, want %d", got, dpm.Bitrate500k)
	}
}

func TestStartReachesActiveMode(t *testing.T) {
	rig := newTestRig(t, 2)
	node := rig.board.Node(0)
	startNode(t, node)
	if got := node.GetMode(); got != dpm.ModeActive {
		t.Fatalf("GetMode() = %s, want active", got)
	}
}

func TestFrameRoundTripAcrossBus(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.peer.SetBus([][]int{{1}, {0}})

	a, b := rig.board.Node(0), rig.board.Node(1)
	startNode(t, a)
	startNode(t, b)

	sent := frame.Frame{ID: 0xab, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	sent.SetDLC(8)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.WriteFrame(ctx, sent); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer readCancel()
	got, err := b.ReadFrame(readCtx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.ID != sent.ID || got.DLC() != sent.DLC() || got.Data != sent.Data {
		t.Fatalf("ReadFrame() = %+v, want %+v", got, sent)
	}
}

func TestTryWriteFrameReportsFullWithoutBlocking(t *testing.T) {
	rig := newTestRig(t, 1)
	node := rig.board.Node(0)
	// Leave the node in reset mode; fw_running is fw2 (set by NewPeer), and
	// TryWriteFrame does not require active mode, only a running board.
	for {
		ok, err := node.TryWriteFrame(frame.Frame{ID: 1})
		if err != nil {
			t.Fatalf("TryWriteFrame: %v", err)
		}
		if !ok {
			break
		}
	}
	if node.TxMsgCount() != node.TxBufSize() {
		t.Fatalf("TxMsgCount() = %d, want %d (full)", node.TxMsgCount(), node.TxBufSize())
	}
}

func TestReadFrameHonoursContextCancellation(t *testing.T) {
	rig := newTestRig(t, 1)
	node := rig.board.Node(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := node.ReadFrame(ctx)
	berr, ok := err.(*Error)
	if !ok || berr.Kind != RestartRequired {
		t.Fatalf("ReadFrame: got err %v, want a RestartRequired *Error", err)
	}
}

func TestSetModeFailsIfBoardNeverAcks(t *testing.T) {
	rig := newTestRig(t, 1)
	node := rig.board.Node(0)

	// Stop the simulated firmware so no ack ever arrives; SetMode must
	// surface this as an error, not a false "landed".
	rig.peer.Close()
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if err := node.SetMode(shortCtx, dpm.ModeActive); err == nil {
		t.Fatal("SetMode: expected an error when the board never acks")
	}
}

func TestWriteFrameForwardsToFirmwareUpdateWhenModeIsSet(t *testing.T) {
	rig := newTestRig(t, 1)
	rig.peer.Close()
	rig.peer = nil

	layout := rig.board.layout
	win := rig.board.win
	bs := dpm.BoardStatusView{Win: win, Off: layout.BoardStatusOffset()}

	go func() {
		// Stand in for the bootloader acking the one block this frame-sized
		// image fits in, then coming back up running fw2.
		for win.Uint16(layout.MBHost2BoardOffset()) == 0 {
			time.Sleep(time.Millisecond)
		}
		bs.SetCmdAckCount(bs.CmdAckCount() + 1)
		bs.SetFWRunning(dpm.FWRunning)
		// No interrupt line is pumped once the peer is closed, so deliver
		// the ack the way the demultiplexer would.
		rig.board.mbox.NotifyAck(bs.CmdAckCount())
	}()

	rig.board.SetFirmwareUpdateMode(true)
	node := rig.board.Node(0)

	sent := frame.Frame{ID: 0xab, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	sent.SetDLC(8)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := node.WriteFrame(ctx, sent); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	want := make([]byte, frame.Size)
	frame.Encode(sent, want)
	if got := win.Bytes(0, frame.Size); !bytes.Equal(got, want) {
		t.Fatalf("dpm[0:%d] = %x, want %x (encoded frame forwarded as a firmware-update block)", frame.Size, got, want)
	}
	if node.TxMsgCount() != 0 {
		t.Fatalf("TxMsgCount() = %d, want 0: the ring-buffer path must not run in firmware-update mode", node.TxMsgCount())
	}
}

func TestSetFilterAndClearFiltersToggleFiltersActiveFlag(t *testing.T) {
	rig := newTestRig(t, 1)
	node := rig.board.Node(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := node.SetFilter(ctx, Filter{Kind: FilterRange, Lo: 0, Hi: 0xf}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if got := node.canStatus().Flags2Board(); got&dpm.FlagFiltersActive == 0 {
		t.Fatalf("Flags2Board() = %#04x, want FlagFiltersActive set after SetFilter", got)
	}

	if err := node.ClearFilters(ctx); err != nil {
		t.Fatalf("ClearFilters: %v", err)
	}
	if got := node.canStatus().Flags2Board(); got&dpm.FlagFiltersActive != 0 {
		t.Fatalf("Flags2Board() = %#04x, want FlagFiltersActive cleared after ClearFilters", got)
	}
}
