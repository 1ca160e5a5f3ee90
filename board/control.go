// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/mailbox"
)

// nodeCommand returns the node-scoped command code for base: the low byte
// identifies the command, the high byte carries the node index, per
// spec.md §4.C.
func (n *Node) nodeCommand(base dpm.Command) dpm.Command {
	return dpm.Command(uint16(base) | uint16(n.index)<<8)
}

func (n *Node) send(ctx context.Context, op string, base dpm.Command, arg1, arg2 uint32, arg2Out *uint32) error {
	if err := n.board.requireRunning(op); err != nil {
		return err
	}
	result, err := n.board.mbox.Send(ctx, n.nodeCommand(base), arg1, arg2, arg2Out)
	if err != nil {
		return wrapMailboxErr(op, err)
	}
	return resultErr(op, result)
}

func wrapMailboxErr(op string, err error) error {
	if errors.Is(err, mailbox.ErrRestartRequired) {
		return newErr(op, RestartRequired, err)
	}
	return newErr(op, IOError, err)
}

func resultErr(op string, r mailbox.Result) error {
	switch r {
	case mailbox.ResultSuccess:
		return nil
	case mailbox.ResultInvalidArgument:
		return newErr(op, InvalidArgument, nil)
	case mailbox.ResultBusy:
		return newErr(op, Busy, nil)
	default:
		return newErr(op, IOError, fmt.Errorf("unexpected mailbox result %v", r))
	}
}

func (n *Node) canStatus() dpm.CANStatusView {
	return dpm.CANStatusView{Win: n.board.win, Off: n.board.layout.CANStatusOffset(n.index)}
}

// GetCANStatus returns a snapshot of the node's live CANStatus record.
func (n *Node) GetCANStatus() dpm.CANStatusSnapshot { return n.canStatus().Snapshot() }

// GetCANType returns the transceiver type mounted for this node.
func (n *Node) GetCANType() dpm.TransceiverType { return n.canStatus().CANType() }

// GetIOPinStatus returns the node's latched input-pin value.
func (n *Node) GetIOPinStatus() uint8 { return n.canStatus().IOPin() }

// GetBitrate returns the node's current bitrate in kbps.
func (n *Node) GetBitrate() uint16 { return n.canStatus().Bitrate() }

// GetMode returns the node's current operating mode.
func (n *Node) GetMode() dpm.Mode { return dpm.Mode(n.canStatus().Mode()) }

// SetBitrate issues set-bitrate and waits for the firmware's ack.
func (n *Node) SetBitrate(ctx context.Context, idx dpm.BitrateIndex) error {
	return n.send(ctx, "set_bitrate", dpm.CmdSetBitrate, uint32(idx), 0, nil)
}

// SetSJWIncrement issues set-sjw-increment.
func (n *Node) SetSJWIncrement(ctx context.Context, v uint32) error {
	return n.send(ctx, "set_sjw_increment", dpm.CmdSetSJWIncrement, v, 0, nil)
}

// GetErrStat issues get-err-stat and returns the packed rx/tx error counts
// the firmware reports back in the second argument cell.
func (n *Node) GetErrStat(ctx context.Context) (uint32, error) {
	var out uint32
	err := n.send(ctx, "get_err_stat", dpm.CmdGetErrStat, 0, 0, &out)
	return out, err
}

// ClearErrStat issues clear-err-stat.
func (n *Node) ClearErrStat(ctx context.Context) error {
	return n.send(ctx, "clear_err_stat", dpm.CmdClearErrStat, 0, 0, nil)
}

// ResetTimestamp issues reset-timestamp.
func (n *Node) ResetTimestamp(ctx context.Context) error {
	return n.send(ctx, "reset_timestamp", dpm.CmdResetTimestamp, 0, 0, nil)
}

// SetMode transitions the node to mode and verifies the board actually
// landed there, per spec.md §4.E: "the host re-reads the node's mode
// cell and fails with I/O-error if the board did not land in the
// expected state."
func (n *Node) SetMode(ctx context.Context, mode dpm.Mode) error {
	if err := n.send(ctx, "set_mode", dpm.CmdSetMode, uint32(mode), 0, nil); err != nil {
		return err
	}
	if got := n.GetMode(); got != mode {
		return newErr("set_mode", IOError, fmt.Errorf("board reports mode %s, want %s", got, mode))
	}
	return nil
}

// Start brings the node up in active mode: a reset transition followed by
// active, matching spec.md §4.E's "mode transitions must pass through
// reset".
func (n *Node) Start(ctx context.Context) error {
	if err := n.SetMode(ctx, dpm.ModeReset); err != nil {
		return err
	}
	return n.SetMode(ctx, dpm.ModeActive)
}

// StartBaudscan brings the node up in baudrate-autodetect mode.
func (n *Node) StartBaudscan(ctx context.Context) error {
	if err := n.SetMode(ctx, dpm.ModeReset); err != nil {
		return err
	}
	return n.SetMode(ctx, dpm.ModeBaudscan)
}

// StartPassive brings the node up in listen-only mode.
func (n *Node) StartPassive(ctx context.Context) error {
	if err := n.SetMode(ctx, dpm.ModeReset); err != nil {
		return err
	}
	return n.SetMode(ctx, dpm.ModePassive)
}

// Stop returns the node to reset mode.
func (n *Node) Stop(ctx context.Context) error {
	return n.SetMode(ctx, dpm.ModeReset)
}

// SetFilter installs a range or mask acceptance filter, replacing whatever
// filter was previously active for this node, and sets the filters-active
// bit in the host->board flag word.
func (n *Node) SetFilter(ctx context.Context, f Filter) error {
	switch f.Kind {
	case FilterRange:
		if err := n.send(ctx, "set_filter", dpm.CmdSetRangeFilter, f.Lo, f.Hi, nil); err != nil {
			return err
		}
	case FilterMask:
		if err := n.send(ctx, "set_filter", dpm.CmdSetMaskFilter, f.Mask, f.Code, nil); err != nil {
			return err
		}
	default:
		return newErr("set_filter", InvalidArgument, fmt.Errorf("unknown filter kind %v", f.Kind))
	}
	n.canStatus().SetFlags2Board(dpm.FlagFiltersActive)
	return nil
}

// ClearFilters removes any acceptance filter, accepting every identifier,
// and clears the filters-active bit in the host->board flag word.
func (n *Node) ClearFilters(ctx context.Context) error {
	if err := n.send(ctx, "clear_filters", dpm.CmdClearFilters, 0, 0, nil); err != nil {
		return err
	}
	n.canStatus().ClearFlags2Board(dpm.FlagFiltersActive)
	return nil
}

// FilterKind selects which of the two filter command shapes SetFilter
// uses.
type FilterKind int

const (
	FilterRange FilterKind = iota
	FilterMask
)

// Filter is the argument to SetFilter: either an inclusive [Lo, Hi]
// identifier range, or a mask/code pair accepting ids where
// id&Mask == Code&Mask.
type Filter struct {
	Kind   FilterKind
	Lo, Hi uint32
	Mask, Code uint32
}
