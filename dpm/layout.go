// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package dpm

import "fmt"

// Per-field byte sizes of the packed firmware structures. The structures
// are packed with no padding, so these are also the strides used when
// indexing arrays of them.
const (
	bufferVarsSize = 8  // base, wptr, rptr, size: four uint16
	canStatusSize  = 48 // see CANStatus field offsets below
	boardStatusSize = 36 // see BoardStatus field offsets below
	argsSize        = 8  // two uint32 command argument cells
)

// ControlAreaSize returns the size in bytes of the control area overlaid at
// the top of the DPM for a board with the given number of CAN nodes.
func ControlAreaSize(nodeCount int) int {
	return nodeCount*(bufferVarsSize*2+canStatusSize) + boardStatusSize + argsSize + 2 + 2 + 2 + 2
}

// Layout resolves the fixed offsets of every DPM field for a board with a
// given DPM size and node count. DPM size is always a runtime value (taken
// from the BAR length by the caller), which is what subsumes both the
// 2-channel and 4-channel hardware variants.
type Layout struct {
	DPMSize   int
	NodeCount int

	controlOffset int
}

// NewLayout validates and builds a Layout. It returns an error if the
// control area would not fit in dpmSize, mirroring the host-side validation
// spec.md requires before the ring descriptors are trusted.
func NewLayout(dpmSize, nodeCount int) (Layout, error) {
	if nodeCount <= 0 {
		return Layout{}, fmt.Errorf("dpm: node count must be positive, got %d", nodeCount)
	}
	caSize := ControlAreaSize(nodeCount)
	if caSize > dpmSize {
		return Layout{}, fmt.Errorf("dpm: control area (%d bytes) does not fit in a %d byte DPM", caSize, dpmSize)
	}
	return Layout{
		DPMSize:       dpmSize,
		NodeCount:     nodeCount,
		controlOffset: dpmSize - caSize,
	}, nil
}

// ControlOffset is the byte offset of the control area within the DPM.
func (l Layout) ControlOffset() int { return l.controlOffset }

// MessageAreaSize is the number of bytes available for ring buffer slots,
// i.e. the region below the control area.
func (l Layout) MessageAreaSize() int { return l.controlOffset }

func (l Layout) checkNode(n int) {
	if n < 0 || n >= l.NodeCount {
		panic(fmt.Sprintf("dpm: node index %d out of range [0,%d)", n, l.NodeCount))
	}
}

// TxBufferOffset is the offset of node n's tx buffer_vars (base/wptr/rptr/size).
func (l Layout) TxBufferOffset(n int) int {
	l.checkNode(n)
	return l.controlOffset + n*bufferVarsSize
}

// RxBufferOffset is the offset of node n's rx buffer_vars.
func (l Layout) RxBufferOffset(n int) int {
	l.checkNode(n)
	return l.controlOffset + l.NodeCount*bufferVarsSize + n*bufferVarsSize
}

// CANStatusOffset is the offset of node n's CANStatus record.
func (l Layout) CANStatusOffset(n int) int {
	l.checkNode(n)
	return l.controlOffset + l.NodeCount*bufferVarsSize*2 + n*canStatusSize
}

// BoardStatusOffset is the offset of the single BoardStatus record.
func (l Layout) BoardStatusOffset() int {
	return l.controlOffset + l.NodeCount*(bufferVarsSize*2+canStatusSize)
}

func (l Layout) argsOffset() int { return l.BoardStatusOffset() + boardStatusSize }

// Arg0Offset / Arg1Offset are the two 32 bit command argument cells.
func (l Layout) Arg0Offset() int { return l.argsOffset() }
func (l Layout) Arg1Offset() int { return l.argsOffset() + 4 }

// IntEnableOffset is the 16 bit interrupt-enable mask.
func (l Layout) IntEnableOffset() int { return l.argsOffset() + argsSize }

// IntCountOffset is the 16 bit interrupt counter, usable to distinguish a
// real interrupt from a shared-IRQ line's unrelated device.
func (l Layout) IntCountOffset() int { return l.IntEnableOffset() + 2 }

// MBBoard2HostOffset is the board-to-host mailbox cell.
func (l Layout) MBBoard2HostOffset() int { return l.IntCountOffset() + 2 }

// MBHost2BoardOffset is the host-to-board mailbox cell.
func (l Layout) MBHost2BoardOffset() int { return l.MBBoard2HostOffset() + 2 }

// BufferDescriptor field offsets, relative to a buffer_vars base.
const (
	bdBase = 0
	bdWptr = 2
	bdRptr = 4
	bdSize = 6
)

// CANStatus field offsets, relative to a CANStatus record base. The
// reserved leading words are not exposed.
const (
	csCANType      = 22 // uint8
	csIOPin        = 23 // uint8
	csMsgsInSRAM   = 24 // uint16
	csSRAMBufSize  = 26 // uint16
	csReceived     = 28 // uint16
	csSent         = 30 // uint16
	csFiltered     = 32 // uint16
	csCANMod       = 34 // uint8
	csCANGSR       = 35 // uint8
	csCANRxErr     = 36 // uint8
	csCANTxErr     = 37 // uint8
	csBitrateIndex = 38 // uint16
	csBitrate      = 40 // uint16
	csMode         = 42 // uint16
	csFlags2Board  = 44 // uint16, host -> board ("flags2hico" in the firmware ABI)
	csFlags2Host   = 46 // uint16, board -> host
)

// BoardStatus field offsets, relative to a BoardStatus record base.
const (
	bsLPCBCRev  = 18 // uint16
	bsPCI104Pos = 20 // uint8
	bsHWID      = 21 // uint8
	bsCmdAckCnt = 22 // uint16
	bsError     = 24 // uint16
	bsFWVersion = 26 // uint16
	bsFWDate    = 28 // [4]uint8: day, month, year, hour
	bsFWRunning = 32 // uint16
	bsDeviceID  = 34 // uint16
)
