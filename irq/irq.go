// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// Package irq implements the host-side interrupt demultiplexer that sits
// on top of the adapter's single shared interrupt line, turning one
// board->host mailbox read into per-node rx/tx wakeups and command-ack
// delivery.
package irq

import (
	"github.com/golang/glog"

	"github.com/emtrion/hcandrv/dpm"
)

// AckTracker is the small slice of mailbox.Transport the demultiplexer
// needs: enough to tell a fresh cmd_ack_cnt from a stale one, and to wake
// whoever is waiting on the next one.
type AckTracker interface {
	LastAckCount() uint16
	NotifyAck(count uint16)
}

// NodeHooks are the callbacks a Demux drives for one CAN node. RXNotEmpty
// and TXEmpty are optional; when nil the corresponding wakeup always
// fires, matching a node with no ring wired up yet (e.g. in a unit test
// that only cares about whether a wakeup happened at all).
type NodeHooks struct {
	RXNotEmpty func() bool
	TXEmpty    func() bool
	WakeRX     func()
	WakeTX     func()
}

// Demux implements the interrupt demultiplexer described in spec.md §4.D.
// A single goroutine should own calling Handle, mirroring the single
// shared interrupt line it stands in for; Demux itself holds no internal
// state beyond its dependencies, so it has no concurrency requirements of
// its own.
type Demux struct {
	Win    dpm.Window
	Layout dpm.Layout
	Ack    AckTracker
	Nodes  []NodeHooks // indexed by node number, one entry per configured node
}

// Handle processes one interrupt (or poll tick): it reads and clears the
// board->host mailbox, masks the reason bits by firmware state, and fires
// the matching wakeups. It returns handled=false when the mailbox carried
// no bit this driver could act on — e.g. a shared PCI interrupt line
// belonging to another device, or a stale wakeup after the relevant bits
// were already serviced.
func (d *Demux) Handle() (handled bool) {
	mb := d.Layout.MBBoard2HostOffset()
	reason := d.Win.Uint16(mb)
	if reason == 0 {
		return false
	}
	// Read-and-clear is a hint, not an atomic exchange: the board treats
	// mb_board2host as level-sensitive, so a bit it raises between this
	// read and the clear is simply observed on the next Handle call
	// rather than lost.
	d.Win.SetUint16(mb, 0)

	bs := dpm.BoardStatusView{Win: d.Win, Off: d.Layout.BoardStatusOffset()}
	state := bs.FWRunning()
	if state != dpm.FWRunning {
		if state == dpm.FWBootloader || state == dpm.FWException {
			// Still booting or recovering from an exception: the only
			// bit that can mean anything is a pending command ack.
			reason &= dpm.IntCmdAck
		} else {
			// Garbage/other state: nothing in mb_board2host can be trusted.
			reason = 0
		}
	}

	if glog.V(2) {
		glog.Infof("irq: reason=%#04x fw_state=%s", reason, state)
	}

	if reason&dpm.IntCmdAck != 0 {
		handled = true
		if count := bs.CmdAckCount(); count != d.Ack.LastAckCount() {
			d.Ack.NotifyAck(count)
		}
	}
	if reason&dpm.IntException != 0 {
		handled = true
		if glog.V(1) {
			glog.Warningf("irq: board reported an exception, error=%v", bs.Error())
		}
	}
	if reason&dpm.IntError != 0 {
		handled = true
	}

	for i, h := range d.Nodes {
		rxBit, txBit := dpm.NodeRXBit(i), dpm.NodeTXBit(i)

		if reason&rxBit != 0 {
			handled = true
			if h.RXNotEmpty == nil || h.RXNotEmpty() {
				d.Win.ClearBits16(d.Layout.IntEnableOffset(), rxBit)
				if h.WakeRX != nil {
					h.WakeRX()
				}
			}
		}
		if reason&txBit != 0 {
			handled = true
			if h.WakeTX != nil {
				h.WakeTX()
			}
			if h.TXEmpty == nil || h.TXEmpty() {
				d.Win.ClearBits16(d.Layout.IntEnableOffset(), txBit)
			}
		}
		if reason&dpm.IntError != 0 {
			handled = true
			if h.WakeRX != nil {
				h.WakeRX()
			}
			if h.WakeTX != nil {
				h.WakeTX()
			}
		}
	}
	return handled
}
