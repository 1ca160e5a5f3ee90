// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"

	"github.com/emtrion/hcandrv/dpm"
)

// maxExceptionDumpLen bounds how much of the message area DumpException
// will read back as a debug string, avoiding a runaway scan if the
// firmware ever fails to NUL-terminate it.
const maxExceptionDumpLen = 4096

func (b *Board) boardCommand(ctx context.Context, op string, cmd dpm.Command) error {
	result, err := b.mbox.Send(ctx, cmd, 0, 0, nil)
	if err != nil {
		return wrapMailboxErr(op, err)
	}
	return resultErr(op, result)
}

// ProductionOK runs the firmware's production self-test command.
func (b *Board) ProductionOK(ctx context.Context) error {
	return b.boardCommand(ctx, "production_ok", dpm.CmdProductionOK)
}

// SerialDebug triggers the firmware's serial-debug command.
func (b *Board) SerialDebug(ctx context.Context) error {
	return b.boardCommand(ctx, "serial_debug", dpm.CmdSerialDebug)
}

// PrintException instructs the firmware to write a debug string to the
// start of the message area, for DumpException to read back.
func (b *Board) PrintException(ctx context.Context) error {
	return b.boardCommand(ctx, "print_exception", dpm.CmdPrintException)
}

// DumpException issues print-exception and returns the debug string the
// firmware wrote to DPM in response, per spec.md §9's exception path: the
// host "issues a special command that instructs the firmware to write a
// debug string to DPM, which the host can then dump."
func (b *Board) DumpException(ctx context.Context) (string, error) {
	if err := b.PrintException(ctx); err != nil {
		return "", err
	}
	raw := b.win.Bytes(0, maxExceptionDumpLen)
	end := len(raw)
	for i, c := range raw {
		if c == 0 {
			end = i
			break
		}
	}
	return string(raw[:end]), nil
}
