// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// Package board implements node I/O and board lifecycle on top of the
// dpm, ring, mailbox and irq packages: the host-facing surface of the
// driver.
package board

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/irq"
	"github.com/emtrion/hcandrv/mailbox"
	"github.com/emtrion/hcandrv/ring"
)

// Resetter abstracts the out-of-band reset control that lives on a
// different register space than the DPM (PCI config-space offsets on the
// real hardware; a simulated peer in tests). Board never touches that
// register space directly.
type Resetter interface {
	AssertReset()
	DeassertReset()
	EnableFWUpdate(on bool)
}

// Board is the host-side aggregate for one adapter: the shared DPM
// window, the command transport, the interrupt demultiplexer and every
// node's ring handles.
type Board struct {
	win      dpm.Window
	layout   dpm.Layout
	mbox     *mailbox.Transport
	demux    *irq.Demux
	resetter Resetter
	cfg      Config

	lpcbcRev uint16 // cached once at attach, per spec.md's Board aggregate

	nodes []*Node

	// fwUpdateMode mirrors the reference driver's fw_update module
	// parameter: when set, WriteFrame forwards to the firmware-update path
	// instead of the ring-buffer path, per spec.md §4.E.
	fwUpdateMode atomic.Bool

	stop   chan struct{}
	stopWG sync.WaitGroup
}

// Node is the host-side aggregate for one CAN node: a back-reference to
// its Board, tx/rx ring handles, and the wait channels the interrupt
// demultiplexer wakes.
type Node struct {
	board *Board
	index int

	tx *ring.Ring
	rx *ring.Ring

	mu      sync.Mutex
	rxReady chan struct{}
	txReady chan struct{}
}

// Index returns the node's minor device index.
func (n *Node) Index() int { return n.index }

// Board returns the node's owning Board, for board-level operations a
// per-node handle needs to reach (reset, board status, diagnostics).
func (n *Node) Board() *Board { return n.board }

// Attach builds a Board over win using cfg, and wires it to resetter for
// reset/firmware-update control. It does not start interrupt processing;
// call ServeInterrupts for that once the caller's interrupt source is
// ready.
func Attach(win dpm.Window, cfg Config, resetter Resetter) (*Board, error) {
	layout, err := dpm.NewLayout(win.Len(), cfg.NodeCount)
	if err != nil {
		return nil, newErr("attach", IOError, err)
	}

	mbox := mailbox.New(win, layout)
	if cfg.CommandTimeout > 0 {
		mbox.Timeout = cfg.CommandTimeout
	}

	b := &Board{
		win:      win,
		layout:   layout,
		mbox:     mbox,
		resetter: resetter,
		cfg:      cfg,
		stop:     make(chan struct{}),
	}
	b.fwUpdateMode.Store(cfg.FirmwareUpdateMode)

	b.nodes = make([]*Node, cfg.NodeCount)
	hooks := make([]irq.NodeHooks, cfg.NodeCount)
	for i := 0; i < cfg.NodeCount; i++ {
		n := &Node{
			board:   b,
			index:   i,
			rxReady: make(chan struct{}),
			txReady: make(chan struct{}),
		}
		txDesc := dpm.BufferDescriptor{Win: win, Off: layout.TxBufferOffset(i)}
		rxDesc := dpm.BufferDescriptor{Win: win, Off: layout.RxBufferOffset(i)}
		n.tx = ring.New(txDesc, 0, b.logInvalid)
		n.rx = ring.New(rxDesc, 0, b.logInvalid)
		b.nodes[i] = n

		hooks[i] = irq.NodeHooks{
			RXNotEmpty: func() bool { return !n.rx.IsEmpty() },
			TXEmpty:    func() bool { return n.tx.IsEmpty() },
			WakeRX:     n.wakeRX,
			WakeTX:     n.wakeTX,
		}
	}
	b.demux = &irq.Demux{Win: win, Layout: layout, Ack: mbox, Nodes: hooks}

	bs := dpm.BoardStatusView{Win: win, Off: layout.BoardStatusOffset()}
	b.lpcbcRev = bs.LPCBCRev()

	return b, nil
}

func (b *Board) logInvalid(msg string) {
	glog.Errorf("%s", msg)
}

// Node returns the node at index i.
func (b *Board) Node(i int) *Node { return b.nodes[i] }

// NodeCount returns the number of nodes this board was attached with.
func (b *Board) NodeCount() int { return len(b.nodes) }

// SetFirmwareUpdateMode toggles whether Node.WriteFrame forwards to
// UpdateFirmware instead of the ring-buffer path, mirroring the reference
// driver's fw_update module parameter.
func (b *Board) SetFirmwareUpdateMode(on bool) { b.fwUpdateMode.Store(on) }

// FirmwareUpdateMode reports the current state of the flag toggled by
// SetFirmwareUpdateMode.
func (b *Board) FirmwareUpdateMode() bool { return b.fwUpdateMode.Load() }

// ServeInterrupts starts a goroutine that calls the interrupt
// demultiplexer once per value received on source, until Close is called.
// The caller owns source and what feeds it (a real IRQ line, a simulated
// dpmtest.Peer, or a poll ticker); Board only ever consumes it.
func (b *Board) ServeInterrupts(source <-chan struct{}) {
	b.stopWG.Add(1)
	go func() {
		defer b.stopWG.Done()
		for {
			select {
			case <-b.stop:
				return
			case <-source:
				b.demux.Handle()
			}
		}
	}()
}

// Close stops interrupt processing and releases the underlying window.
func (b *Board) Close() error {
	close(b.stop)
	b.stopWG.Wait()
	return b.win.Close()
}

func (n *Node) wakeRX() {
	n.mu.Lock()
	close(n.rxReady)
	n.rxReady = make(chan struct{})
	n.mu.Unlock()
}

func (n *Node) wakeTX() {
	n.mu.Lock()
	close(n.txReady)
	n.txReady = make(chan struct{})
	n.mu.Unlock()
}

func (n *Node) rxWaitChan() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rxReady
}

func (n *Node) txWaitChan() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.txReady
}

// requireRunning enforces the "fw_running == fw2" precondition most node
// operations share.
func (b *Board) requireRunning(op string) error {
	bs := dpm.BoardStatusView{Win: b.win, Off: b.layout.BoardStatusOffset()}
	if bs.FWRunning() != dpm.FWRunning {
		return newErr(op, IOError, fmt.Errorf("board is not running firmware (state=%s)", bs.FWRunning()))
	}
	return nil
}
