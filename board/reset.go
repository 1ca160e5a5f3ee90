// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"fmt"
	"time"

	"github.com/emtrion/hcandrv/dpm"
)

// ResetBoard performs a hard reset and waits for the board to come back
// up running firmware (fw2), per spec.md's reset state machine. It
// returns an IOError if the board does not reach fw2 within the
// configured reset budget.
//
// Note: the reference driver's timeout loop decrements its remaining
// budget twice per iteration in one code path (once in the poll helper,
// once in its caller); that bug is not reproduced here — this loop
// decrements its budget exactly once per ResetPollInterval tick (10ms in
// DefaultConfig).
func (b *Board) ResetBoard(ctx context.Context) error {
	savedIntEnable := b.win.Uint16(b.layout.IntEnableOffset())

	bs := b.boardStatus()
	bs.SetFWRunning(0)

	b.resetter.AssertReset()
	b.resetter.DeassertReset()

	if err := b.pollForState(ctx, dpm.FWRunning, b.cfg.ResetTimeout); err != nil {
		return newErr("reset_board", IOError, err)
	}

	b.mbox.NotifyAck(bs.CmdAckCount())
	b.win.SetUint16(b.layout.IntEnableOffset(), savedIntEnable)
	return nil
}

// pollForState polls the board's fw_running cell every ResetPollInterval
// until it equals want, ctx is done, or budget elapses.
func (b *Board) pollForState(ctx context.Context, want dpm.FirmwareState, budget time.Duration) error {
	interval := b.cfg.ResetPollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	remaining := budget
	bs := b.boardStatus()
	for {
		if bs.FWRunning() == want {
			return nil
		}
		if remaining <= 0 {
			return fmt.Errorf("timed out waiting for firmware state %s, last seen %s", want, bs.FWRunning())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		remaining -= interval
	}
}

// ProbeBootloaderVersion performs the bootloader-only probe of spec.md
// §4.E: it raises the firmware-update enable pin, waits for fw1, reads
// the boot firmware's version and date, lowers the pin, and performs a
// second hard reset to bring the board back to fw2.
func (b *Board) ProbeBootloaderVersion(ctx context.Context) (version uint16, date [4]uint8, err error) {
	savedIntEnable := b.win.Uint16(b.layout.IntEnableOffset())
	bs := b.boardStatus()
	bs.SetFWRunning(0)

	b.resetter.EnableFWUpdate(true)
	b.resetter.AssertReset()
	b.resetter.DeassertReset()

	if perr := b.pollForState(ctx, dpm.FWBootloader, b.cfg.ResetTimeout); perr != nil {
		b.resetter.EnableFWUpdate(false)
		return 0, [4]uint8{}, newErr("probe_bootloader", IOError, perr)
	}
	version, date = bs.FWVersion(), bs.FWDate()
	b.resetter.EnableFWUpdate(false)

	if rerr := b.ResetBoard(ctx); rerr != nil {
		return version, date, rerr
	}
	b.win.SetUint16(b.layout.IntEnableOffset(), savedIntEnable)
	return version, date, nil
}
