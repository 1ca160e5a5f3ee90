// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/frame"
)

// Readiness is a bitmask returned by PollReadiness.
type Readiness uint8

const (
	Readable Readiness = 1 << 0
	Writable Readiness = 1 << 1
)

// TryReadFrame performs a single non-blocking read attempt: ok is false
// and err is nil if the rx ring is currently empty (the "try again" case
// of spec.md §6, surfaced here as a plain bool rather than a Busy/TryAgain
// Error so callers can loop without a type switch).
func (n *Node) TryReadFrame() (f frame.Frame, ok bool, err error) {
	if err := n.board.requireRunning("read_frame"); err != nil {
		return frame.Frame{}, false, err
	}
	if n.rx.IsEmpty() {
		return frame.Frame{}, false, nil
	}
	f = n.rx.Peek()
	if err := n.rx.AdvanceRead(); err != nil {
		return frame.Frame{}, false, newErr("read_frame", IOError, err)
	}
	return f, true, nil
}

// ReadFrame returns exactly one frame, blocking until one is available or
// ctx is done. On cancellation it returns a RestartRequired Error without
// having consumed a frame, per spec.md §5's cancellation contract.
func (n *Node) ReadFrame(ctx context.Context) (frame.Frame, error) {
	for {
		f, ok, err := n.TryReadFrame()
		if err != nil {
			return frame.Frame{}, err
		}
		if ok {
			return f, nil
		}
		n.board.win.SetBits16(n.board.layout.IntEnableOffset(), dpm.NodeRXBit(n.index))
		wait := n.rxWaitChan()
		select {
		case <-wait:
		case <-ctx.Done():
			return frame.Frame{}, newErr("read_frame", RestartRequired, ctx.Err())
		}
	}
}

// TryWriteFrame performs a single non-blocking write attempt: ok is false
// and err is nil if the tx ring is currently full.
func (n *Node) TryWriteFrame(f frame.Frame) (ok bool, err error) {
	if err := n.board.requireRunning("write_frame"); err != nil {
		return false, err
	}
	if n.tx.IsFull() {
		return false, nil
	}
	n.tx.PutAtWrite(f)
	if err := n.tx.AdvanceWrite(); err != nil {
		return false, newErr("write_frame", IOError, err)
	}
	return true, nil
}

// WriteFrame writes exactly one frame, blocking until there is room or
// ctx is done. When the board's firmware-update mode is set, the call is
// forwarded to UpdateFirmware instead of the ring-buffer path, mirroring
// the reference driver's fw_update check ahead of its write(2) handler.
func (n *Node) WriteFrame(ctx context.Context, f frame.Frame) error {
	if n.board.FirmwareUpdateMode() {
		b := make([]byte, frame.Size)
		frame.Encode(f, b)
		_, err := n.board.UpdateFirmware(ctx, b)
		return err
	}
	for {
		ok, err := n.TryWriteFrame(f)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		n.board.win.SetBits16(n.board.layout.IntEnableOffset(), dpm.NodeTXBit(n.index))
		wait := n.txWaitChan()
		select {
		case <-wait:
		case <-ctx.Done():
			return newErr("write_frame", RestartRequired, ctx.Err())
		}
	}
}

// PollReadiness reports which directions are currently ready without
// blocking. Whichever side is not ready has its interrupt-enable bit set,
// so the next transition generates an interrupt and a wakeup, per
// spec.md §4.E.
func (n *Node) PollReadiness() Readiness {
	var r Readiness
	if !n.rx.IsEmpty() {
		r |= Readable
	} else {
		n.board.win.SetBits16(n.board.layout.IntEnableOffset(), dpm.NodeRXBit(n.index))
	}
	if !n.tx.IsFull() {
		r |= Writable
	} else {
		n.board.win.SetBits16(n.board.layout.IntEnableOffset(), dpm.NodeTXBit(n.index))
	}
	return r
}

// RxMsgCount and TxMsgCount report how many frames are currently queued.
func (n *Node) RxMsgCount() int { return n.rx.Count() }
func (n *Node) TxMsgCount() int { return n.tx.Count() }

// RxBufSize and TxBufSize report each ring's usable capacity.
func (n *Node) RxBufSize() int { return n.rx.Capacity() }
func (n *Node) TxBufSize() int { return n.tx.Capacity() }
