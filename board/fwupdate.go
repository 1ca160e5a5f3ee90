// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"time"

	"github.com/emtrion/hcandrv/dpm"
)

// fwUpdateAckTimeout is the per-block ack budget, per spec.md §4.E
// ("waits on the command-ack condition for up to one second").
const fwUpdateAckTimeout = time.Second

// UpdateFirmware streams image to the board's bootloader as a sequence of
// fixed-size blocks, per spec.md §4.E's block-pump algorithm: each block
// is copied to the start of DPM, its 1-based block number is written to
// the host->board mailbox after clearing the board->host mailbox, and the
// pump waits for that block's ack before sending the next. After the
// final block it polls for the board to come back up running firmware.
// The firmware-update enable pin is lowered on every exit path.
func (b *Board) UpdateFirmware(ctx context.Context, image []byte) (written int, err error) {
	b.resetter.EnableFWUpdate(true)
	defer b.resetter.EnableFWUpdate(false)

	const blockSize = dpm.FWUpdateBlockSize
	numBlocks := len(image)/blockSize + 1

	for i := 0; i < numBlocks; i++ {
		start := i * blockSize
		var block [blockSize]byte
		if start < len(image) {
			n := copy(block[:], image[start:])
			written += n
		}
		b.win.SetBytes(0, block[:])

		b.win.SetUint16(b.layout.MBBoard2HostOffset(), 0)
		b.win.SetUint16(b.layout.MBHost2BoardOffset(), uint16(i+1))

		if err := b.mbox.WaitForAck(ctx, fwUpdateAckTimeout); err != nil {
			return written, wrapMailboxErr("update_firmware", err)
		}
	}

	if err := b.pollForState(ctx, dpm.FWRunning, b.cfg.ResetTimeout); err != nil {
		return written, newErr("update_firmware", IOError, err)
	}
	return written, nil
}
