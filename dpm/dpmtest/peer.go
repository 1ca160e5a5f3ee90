// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// Package dpmtest provides an in-memory simulated firmware peer, good
// enough to drive the host-side protocol engine's tests without real
// hardware. It answers commands, relays CAN frames between nodes running
// in active mode, and can simulate the board's reset sequence.
package dpmtest

import (
	"sync"
	"time"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/frame"
)

// ExceptionDebugString is written to the start of the message area by the
// simulated print-exception command, for board.Board.DumpException tests.
const ExceptionDebugString = "hcandrv: simulated exception dump"

const msgSlotStride = frame.Size

type nodeFilter struct {
	active   bool
	hasRange bool
	lo, hi   uint32
	hasMask  bool
	mask, code uint32
}

func (f nodeFilter) accepts(id uint32) bool {
	if !f.active {
		return true
	}
	ok := true
	if f.hasRange {
		ok = ok && id >= f.lo && id <= f.hi
	}
	if f.hasMask {
		ok = ok && (id&f.mask) == (f.code&f.mask)
	}
	return ok
}

// Peer is a simulated firmware endpoint bound to a dpm.Window it shares
// with the host side under test.
type Peer struct {
	Win    dpm.Window
	Layout dpm.Layout

	mu      sync.Mutex
	stop    chan struct{}
	irq     chan struct{}
	running bool
	filters []nodeFilter

	// busTargets[i] lists the node indices node i's tx output relays to.
	// Set via SetBus; nil until then, meaning no node is bus-connected.
	busTargets [][]int

	resetDelay time.Duration
	fwUpdateOn bool
}

// NewPeer returns a Peer ready to answer commands for a board already in
// fw2 (running) state, with every node defaulting to an accept-all filter.
func NewPeer(win dpm.Window, layout dpm.Layout) *Peer {
	p := &Peer{
		Win:        win,
		Layout:     layout,
		stop:       make(chan struct{}),
		irq:        make(chan struct{}, 64),
		filters:    make([]nodeFilter, layout.NodeCount),
		resetDelay: 20 * time.Millisecond,
	}
	for i := range p.filters {
		p.filters[i] = nodeFilter{active: false}
	}
	for i := 0; i < layout.NodeCount; i++ {
		p.initNode(i)
	}
	bs := dpm.BoardStatusView{Win: win, Off: layout.BoardStatusOffset()}
	bs.SetFWRunning(dpm.FWRunning)
	bs.SetHWID(dpm.HWHicoCANMiniPCI)
	bs.SetLPCBCRev(1)
	bs.SetFWVersion(0x0200)
	bs.SetFWDate([4]uint8{1, 1, 26, 0})
	return p
}

// initNode lays out node i's tx/rx message slots back to back in the
// message area and resets its CANStatus record to idle defaults.
func (p *Peer) initNode(i int) {
	const slotsPerRing = 16
	txDesc := dpm.BufferDescriptor{Win: p.Win, Off: p.Layout.TxBufferOffset(i)}
	rxDesc := dpm.BufferDescriptor{Win: p.Win, Off: p.Layout.RxBufferOffset(i)}
	base := i * slotsPerRing * 2 * msgSlotStride
	txDesc.SetBase(uint16(base))
	txDesc.SetSize(slotsPerRing)
	rxDesc.SetBase(uint16(base + slotsPerRing*msgSlotStride))
	rxDesc.SetSize(slotsPerRing)

	cs := dpm.CANStatusView{Win: p.Win, Off: p.Layout.CANStatusOffset(i)}
	cs.SetCANType(dpm.TransceiverHighSpeed)
	cs.SetMode(uint16(dpm.ModeReset))
	cs.SetSRAMBufSize(slotsPerRing - 1)
}

// IRQ returns the channel the Peer signals on whenever it raises an
// interrupt for the host to demultiplex, standing in for the single
// shared PCI line.
func (p *Peer) IRQ() <-chan struct{} { return p.irq }

func (p *Peer) signal() {
	select {
	case p.irq <- struct{}{}:
	default:
	}
}

// SetBus connects node i's tx output to the given peer node indices'
// rx rings, modelling a shared CAN bus: every active, non-filtered frame
// node i transmits is delivered to each of them. Nil targets mean node i
// is not connected to any bus.
func (p *Peer) SetBus(targets [][]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busTargets = targets
}

// Run starts the peer's command-processing and bus-relay loop on the
// calling goroutine; it returns once Close is called.
func (p *Peer) Run() {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.serviceCommand()
			p.relayFrames()
		}
	}
}

// Close stops the peer's Run loop, or keeps it from starting if Run has
// not begun yet. A closed Peer also no longer brings the board back up
// after DeassertReset.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	p.running = false
}

func (p *Peer) serviceCommand() {
	mb := p.Layout.MBHost2BoardOffset()
	raw := p.Win.Uint16(mb)
	if raw == 0 {
		return
	}
	p.Win.SetUint16(mb, 0)

	node := int((raw >> 8) & 0x3)
	code := dpm.Command(raw & 0x00ff)
	arg1 := p.Win.Uint32(p.Layout.Arg0Offset())
	arg2 := p.Win.Uint32(p.Layout.Arg1Offset())
	status := dpm.FWStatusOK

	var cs dpm.CANStatusView
	haveNode := node >= 0 && node < p.Layout.NodeCount
	if haveNode {
		cs = dpm.CANStatusView{Win: p.Win, Off: p.Layout.CANStatusOffset(node)}
	}

	switch code {
	case dpm.CmdSetBitrate:
		if !haveNode || arg1 > uint32(dpm.Bitrate1000k) {
			status = dpm.FWStatusInvalidArg
			break
		}
		cs.SetBitrateIndex(uint16(arg1))
	case dpm.CmdSetMode:
		if !haveNode {
			status = dpm.FWStatusInvalidArg
			break
		}
		cs.SetMode(uint16(arg1))
	case dpm.CmdClearOverrun:
		// no state tracked for overrun in the simulator beyond the flag word
	case dpm.CmdClearFilters:
		if haveNode {
			p.mu.Lock()
			p.filters[node] = nodeFilter{active: false}
			p.mu.Unlock()
		}
	case dpm.CmdSetRangeFilter:
		if haveNode {
			p.mu.Lock()
			f := p.filters[node]
			f.active, f.hasRange, f.lo, f.hi = true, true, arg1, arg2
			p.filters[node] = f
			p.mu.Unlock()
		}
	case dpm.CmdSetMaskFilter:
		if haveNode {
			p.mu.Lock()
			f := p.filters[node]
			f.active, f.hasMask, f.mask, f.code = true, true, arg1, arg2
			p.filters[node] = f
			p.mu.Unlock()
		}
	case dpm.CmdResetTimestamp:
		// timestamps are stamped by the relay loop; nothing to reset here
	case dpm.CmdSetBTR, dpm.CmdSetSJWIncrement:
		// accepted, no observable state in the simulator
	case dpm.CmdGetErrStat:
		if haveNode {
			p.Win.SetUint32(p.Layout.Arg1Offset(), uint32(cs.CANRxErr())<<8|uint32(cs.CANTxErr()))
		}
	case dpm.CmdClearErrStat:
		if haveNode {
			cs.SetCANRxErr(0)
			cs.SetCANTxErr(0)
		}
	case dpm.CmdSetCANType:
		if haveNode {
			cs.SetCANType(dpm.TransceiverType(arg1))
		}
	case dpm.CmdPrintException:
		b := make([]byte, len(ExceptionDebugString))
		copy(b, ExceptionDebugString)
		p.Win.SetBytes(0, b)
	case dpm.CmdSerialDebug, dpm.CmdProductionOK:
		// acknowledged unconditionally
	default:
		status = dpm.FWStatusInvalidCmd
	}

	p.Win.SetUint32(p.Layout.Arg0Offset(), uint32(status))

	bs := dpm.BoardStatusView{Win: p.Win, Off: p.Layout.BoardStatusOffset()}
	bs.SetCmdAckCount(bs.CmdAckCount() + 1)
	p.Win.SetBits16(p.Layout.MBBoard2HostOffset(), dpm.IntCmdAck)
	p.signal()
}

// relayFrames copies frames out of every active node's tx ring into the
// rx ring of each of its configured bus peers, applying the destination's
// filter, mirroring the firmware's bus arbitration closely enough for
// tests: in the simulator there is no contention or error frame, only
// acceptance filtering.
func (p *Peer) relayFrames() {
	p.mu.Lock()
	targets := p.busTargets
	p.mu.Unlock()
	if targets == nil {
		return
	}
	for node, dests := range targets {
		if node >= p.Layout.NodeCount {
			continue
		}
		cs := dpm.CANStatusView{Win: p.Win, Off: p.Layout.CANStatusOffset(node)}
		if dpm.Mode(cs.Mode()) != dpm.ModeActive {
			// A node that has not gone active never actually puts a frame
			// on the bus; its tx ring simply accumulates until it does.
			continue
		}
		txDesc := dpm.BufferDescriptor{Win: p.Win, Off: p.Layout.TxBufferOffset(node)}
		txRing := ringView{desc: txDesc, win: p.Win}
		for !txRing.empty() {
			f := txRing.peek()
			txRing.advance()
			p.deliver(dests, f)
		}
		if int(txDesc.Wptr()) == int(txDesc.Rptr()) {
			p.Win.SetBits16(p.Layout.MBBoard2HostOffset(), dpm.NodeTXBit(node))
			p.signal()
		}
	}
}

func (p *Peer) deliver(dests []int, f frame.Frame) {
	for _, d := range dests {
		if d < 0 || d >= p.Layout.NodeCount {
			continue
		}
		destCS := dpm.CANStatusView{Win: p.Win, Off: p.Layout.CANStatusOffset(d)}
		if dpm.Mode(destCS.Mode()) != dpm.ModeActive {
			// A node that is not active (passive/reset/baudscan) does not
			// accept frames off the bus either.
			continue
		}
		p.mu.Lock()
		filt := p.filters[d]
		p.mu.Unlock()
		if !filt.accepts(f.ID) {
			continue
		}
		rxDesc := dpm.BufferDescriptor{Win: p.Win, Off: p.Layout.RxBufferOffset(d)}
		rx := ringView{desc: rxDesc, win: p.Win}
		if rx.full() {
			continue // dropped, as a real controller would on overrun
		}
		f.SetNode(d)
		rx.put(f)
		p.Win.SetBits16(p.Layout.MBBoard2HostOffset(), dpm.NodeRXBit(d))
		p.signal()
	}
}

// ringView is a minimal read/write helper over a buffer_vars descriptor,
// independent of package ring so dpmtest has no dependency on it; the
// firmware side of a real board does not use the host's ring
// implementation either.
type ringView struct {
	desc dpm.BufferDescriptor
	win  dpm.Window
}

func (r ringView) empty() bool { return r.desc.Wptr() == r.desc.Rptr() }

func (r ringView) full() bool {
	w, rp, size := int(r.desc.Wptr()), int(r.desc.Rptr()), int(r.desc.Size())
	if rp == 0 && w == size-1 {
		return true
	}
	return rp-w == 1
}

func (r ringView) slotOffset(idx int) int {
	return int(r.desc.Base()) + idx*msgSlotStride
}

func (r ringView) peek() frame.Frame {
	return frame.Decode(r.win.Bytes(r.slotOffset(int(r.desc.Rptr())), frame.Size))
}

func (r ringView) advance() {
	size := int(r.desc.Size())
	rp := int(r.desc.Rptr()) + 1
	if rp == size {
		rp = 0
	}
	r.desc.SetRptr(uint16(rp))
}

func (r ringView) put(f frame.Frame) {
	var b [frame.Size]byte
	frame.Encode(f, b[:])
	r.win.SetBytes(r.slotOffset(int(r.desc.Wptr())), b[:])
	size := int(r.desc.Size())
	w := int(r.desc.Wptr()) + 1
	if w == size {
		w = 0
	}
	r.desc.SetWptr(uint16(w))
}

// AssertReset, DeassertReset and EnableFWUpdate let Peer stand in for the
// out-of-band reset control line a real board.Resetter talks to.
func (p *Peer) AssertReset() {
	bs := dpm.BoardStatusView{Win: p.Win, Off: p.Layout.BoardStatusOffset()}
	bs.SetFWRunning(0)
}

func (p *Peer) DeassertReset() {
	delay := p.resetDelay
	fwUpdate := p.fwUpdateOn
	go func() {
		select {
		case <-p.stop:
			return
		case <-time.After(delay):
		}
		bs := dpm.BoardStatusView{Win: p.Win, Off: p.Layout.BoardStatusOffset()}
		if fwUpdate {
			bs.SetFWRunning(dpm.FWBootloader)
			return
		}
		bs.SetFWRunning(dpm.FWRunning)
	}()
}

func (p *Peer) EnableFWUpdate(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fwUpdateOn = on
}
