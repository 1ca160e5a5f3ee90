// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"github.com/emtrion/hcandrv"
	"github.com/emtrion/hcandrv/dpm"
)

func (b *Board) boardStatus() dpm.BoardStatusView {
	return dpm.BoardStatusView{Win: b.win, Off: b.layout.BoardStatusOffset()}
}

// GetBoardStatus returns a live view of the BoardStatus record: each of
// its accessors reads DPM at the time it is called.
func (b *Board) GetBoardStatus() dpm.BoardStatusView { return b.boardStatus() }

// GetHWID returns the hardware identifier reported by the firmware.
func (b *Board) GetHWID() uint8 { return b.boardStatus().HWID() }

// GetPCI104Position returns the board's position on a PCI-104 stack, if
// applicable.
func (b *Board) GetPCI104Position() uint8 { return b.boardStatus().PCI104Pos() }

// GetFW2Version returns the running firmware's version and build date.
func (b *Board) GetFW2Version() (version uint16, date [4]uint8) {
	bs := b.boardStatus()
	return bs.FWVersion(), bs.FWDate()
}

// GetLPCBCRevision returns the boot-code revision cached at Attach time.
func (b *Board) GetLPCBCRevision() uint16 { return b.lpcbcRev }

// GetDriverVersion returns this module's own version, distinct from the
// firmware's.
func (b *Board) GetDriverVersion() uint16 { return hcandrv.DriverVersion }
