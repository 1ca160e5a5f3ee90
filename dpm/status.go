// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package dpm

// TransceiverType identifies the physical CAN transceiver mounted for a
// node, as reported by the firmware.
type TransceiverType uint8

const (
	TransceiverEmpty        TransceiverType = 0
	TransceiverHighSpeed    TransceiverType = 1
	TransceiverFaultTolerant TransceiverType = 2
	TransceiverReserved     TransceiverType = 3
	TransceiverUnknown      TransceiverType = 0xff
)

func (t TransceiverType) String() string {
	switch t {
	case TransceiverEmpty:
		return "empty"
	case TransceiverHighSpeed:
		return "high-speed"
	case TransceiverFaultTolerant:
		return "fault-tolerant"
	case TransceiverReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// CANStatusView is a live accessor over one node's CANStatus record.
type CANStatusView struct {
	Win Window
	Off int
}

func (v CANStatusView) CANType() TransceiverType { return TransceiverType(v.Win.Uint8(v.Off + csCANType)) }
func (v CANStatusView) IOPin() uint8              { return v.Win.Uint8(v.Off + csIOPin) }
func (v CANStatusView) MsgsInSRAM() uint16         { return v.Win.Uint16(v.Off + csMsgsInSRAM) }
func (v CANStatusView) SRAMBufSize() uint16        { return v.Win.Uint16(v.Off + csSRAMBufSize) }
func (v CANStatusView) Received() uint16           { return v.Win.Uint16(v.Off + csReceived) }
func (v CANStatusView) Sent() uint16               { return v.Win.Uint16(v.Off + csSent) }
func (v CANStatusView) Filtered() uint16           { return v.Win.Uint16(v.Off + csFiltered) }
func (v CANStatusView) CANMod() uint8              { return v.Win.Uint8(v.Off + csCANMod) }
func (v CANStatusView) CANGSR() uint8              { return v.Win.Uint8(v.Off + csCANGSR) }
func (v CANStatusView) CANRxErr() uint8            { return v.Win.Uint8(v.Off + csCANRxErr) }
func (v CANStatusView) CANTxErr() uint8            { return v.Win.Uint8(v.Off + csCANTxErr) }
func (v CANStatusView) BitrateIndex() uint16       { return v.Win.Uint16(v.Off + csBitrateIndex) }
func (v CANStatusView) Bitrate() uint16            { return v.Win.Uint16(v.Off + csBitrate) }
func (v CANStatusView) Mode() uint16               { return v.Win.Uint16(v.Off + csMode) }
func (v CANStatusView) Flags2Board() uint16        { return v.Win.Uint16(v.Off + csFlags2Board) }
func (v CANStatusView) Flags2Host() uint16         { return v.Win.Uint16(v.Off + csFlags2Host) }

// SetFlags2Board ORs bits into the host->board flag word (e.g. FlagFiltersActive).
func (v CANStatusView) SetFlags2Board(mask uint16) { v.Win.SetBits16(v.Off+csFlags2Board, mask) }

// ClearFlags2Board ANDs off bits from the host->board flag word.
func (v CANStatusView) ClearFlags2Board(mask uint16) { v.Win.ClearBits16(v.Off+csFlags2Board, mask) }

// The Set* methods below belong to the firmware side of the link; the real
// board writes them, the host only ever reads. dpmtest.Peer is the only
// caller in this module.

func (v CANStatusView) SetCANType(t TransceiverType) { v.Win.SetUint8(v.Off+csCANType, uint8(t)) }
func (v CANStatusView) SetIOPin(b uint8)             { v.Win.SetUint8(v.Off+csIOPin, b) }
func (v CANStatusView) SetMsgsInSRAM(n uint16)       { v.Win.SetUint16(v.Off+csMsgsInSRAM, n) }
func (v CANStatusView) SetSRAMBufSize(n uint16)      { v.Win.SetUint16(v.Off+csSRAMBufSize, n) }
func (v CANStatusView) SetReceived(n uint16)         { v.Win.SetUint16(v.Off+csReceived, n) }
func (v CANStatusView) SetSent(n uint16)             { v.Win.SetUint16(v.Off+csSent, n) }
func (v CANStatusView) SetFiltered(n uint16)         { v.Win.SetUint16(v.Off+csFiltered, n) }
func (v CANStatusView) SetCANMod(b uint8)            { v.Win.SetUint8(v.Off+csCANMod, b) }
func (v CANStatusView) SetCANGSR(b uint8)            { v.Win.SetUint8(v.Off+csCANGSR, b) }
func (v CANStatusView) SetCANRxErr(n uint8)          { v.Win.SetUint8(v.Off+csCANRxErr, n) }
func (v CANStatusView) SetCANTxErr(n uint8)          { v.Win.SetUint8(v.Off+csCANTxErr, n) }
func (v CANStatusView) SetBitrateIndex(n uint16)     { v.Win.SetUint16(v.Off+csBitrateIndex, n) }
func (v CANStatusView) SetBitrate(n uint16)          { v.Win.SetUint16(v.Off+csBitrate, n) }
func (v CANStatusView) SetMode(m uint16)             { v.Win.SetUint16(v.Off+csMode, m) }

// CANStatusSnapshot is a point-in-time copy of a CANStatusView, suitable for
// handing back to a caller without holding a live reference to the window.
type CANStatusSnapshot struct {
	CANType      TransceiverType
	IOPin        uint8
	MsgsInSRAM   uint16
	SRAMBufSize  uint16
	Received     uint16
	Sent         uint16
	Filtered     uint16
	CANMod       uint8
	CANGSR       uint8
	CANRxErr     uint8
	CANTxErr     uint8
	BitrateIndex uint16
	Bitrate      uint16
	Mode         uint16
}

// Snapshot reads every field of v into a CANStatusSnapshot.
func (v CANStatusView) Snapshot() CANStatusSnapshot {
	return CANStatusSnapshot{
		CANType:      v.CANType(),
		IOPin:        v.IOPin(),
		MsgsInSRAM:   v.MsgsInSRAM(),
		SRAMBufSize:  v.SRAMBufSize(),
		Received:     v.Received(),
		Sent:         v.Sent(),
		Filtered:     v.Filtered(),
		CANMod:       v.CANMod(),
		CANGSR:       v.CANGSR(),
		CANRxErr:     v.CANRxErr(),
		CANTxErr:     v.CANTxErr(),
		BitrateIndex: v.BitrateIndex(),
		Bitrate:      v.Bitrate(),
		Mode:         v.Mode(),
	}
}

// FirmwareState is the board_status.fw_running word.
type FirmwareState uint16

const (
	FWBootloader FirmwareState = 0xf1f1 // fw1
	FWRunning    FirmwareState = 0xf2f2 // fw2
	FWException  FirmwareState = 0xfefe
)

func (s FirmwareState) String() string {
	switch s {
	case FWBootloader:
		return "fw1"
	case FWRunning:
		return "fw2"
	case FWException:
		return "exception"
	default:
		return "other"
	}
}

// BoardErrorCode is the board_status.error cell.
type BoardErrorCode uint16

const (
	BoardErrOK               BoardErrorCode = 0
	BoardErrInvalidFWInDPM   BoardErrorCode = 2
	BoardErrInvalidFW2Image  BoardErrorCode = 3
	BoardErrExceptWatchdog   BoardErrorCode = 0x8001
	BoardErrExceptSoftware   BoardErrorCode = 0x8002
	BoardErrExceptDataAbort  BoardErrorCode = 0x8003
	BoardErrExceptUndefInstr BoardErrorCode = 0x8004
	BoardErrExceptInvalid    BoardErrorCode = 0x80ff
)

// BoardStatusView is a live accessor over the single BoardStatus record.
type BoardStatusView struct {
	Win Window
	Off int
}

func (v BoardStatusView) LPCBCRev() uint16        { return v.Win.Uint16(v.Off + bsLPCBCRev) }
func (v BoardStatusView) PCI104Pos() uint8        { return v.Win.Uint8(v.Off + bsPCI104Pos) }
func (v BoardStatusView) HWID() uint8             { return v.Win.Uint8(v.Off + bsHWID) }
func (v BoardStatusView) CmdAckCount() uint16     { return v.Win.Uint16(v.Off + bsCmdAckCnt) }

// SetCmdAckCount is used by dpmtest's simulated firmware peer; the real
// board owns this cell, the host only ever reads it.
func (v BoardStatusView) SetCmdAckCount(n uint16) { v.Win.SetUint16(v.Off+bsCmdAckCnt, n) }
func (v BoardStatusView) Error() BoardErrorCode    { return BoardErrorCode(v.Win.Uint16(v.Off + bsError)) }
func (v BoardStatusView) FWVersion() uint16        { return v.Win.Uint16(v.Off + bsFWVersion) }
func (v BoardStatusView) FWDate() [4]uint8 {
	b := v.Win.Bytes(v.Off+bsFWDate, 4)
	return [4]uint8{b[0], b[1], b[2], b[3]}
}
func (v BoardStatusView) FWRunning() FirmwareState { return FirmwareState(v.Win.Uint16(v.Off + bsFWRunning)) }
func (v BoardStatusView) SetFWRunning(s FirmwareState) { v.Win.SetUint16(v.Off+bsFWRunning, uint16(s)) }

// The remaining setters, like BoardStatusView.SetCmdAckCount above, belong
// to the firmware side of the link; dpmtest.Peer is their only caller.

func (v BoardStatusView) SetLPCBCRev(n uint16)  { v.Win.SetUint16(v.Off+bsLPCBCRev, n) }
func (v BoardStatusView) SetPCI104Pos(b uint8)  { v.Win.SetUint8(v.Off+bsPCI104Pos, b) }
func (v BoardStatusView) SetHWID(b uint8)       { v.Win.SetUint8(v.Off+bsHWID, b) }
func (v BoardStatusView) SetError(e BoardErrorCode) { v.Win.SetUint16(v.Off+bsError, uint16(e)) }
func (v BoardStatusView) SetFWVersion(n uint16) { v.Win.SetUint16(v.Off+bsFWVersion, n) }
func (v BoardStatusView) SetFWDate(d [4]uint8)  { v.Win.SetBytes(v.Off+bsFWDate, d[:]) }
