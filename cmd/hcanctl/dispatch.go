// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/emtrion/hcandrv/board"
	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/frame"
)

// op is one named control operation dispatch can run against a node.
// args are the operation's positional arguments as given on the command
// line, already split away from the node selector and the operation name
// itself.
type op func(ctx context.Context, n *board.Node, args []string) (string, error)

// ops is the dispatch table for every control operation spec.md §6 lists,
// keyed by the name a caller passes on the command line. Unknown names
// are board.ErrUnknownOperation, per spec.md §7 ("unknown control
// operations are surfaced as 'no such operation' and must not be
// silently ignored").
var ops = map[string]op{
	"reset_board":          opResetBoard,
	"get_can_status":       opGetCANStatus,
	"get_can_type":         opGetCANType,
	"get_board_status":     opGetBoardStatus,
	"get_hw_id":            opGetHWID,
	"get_pci104_position":  opGetPCI104Position,
	"get_fw2_version":      opGetFW2Version,
	"get_driver_version":   opGetDriverVersion,
	"get_lpcbc_revision":   opGetLPCBCRevision,
	"set_bitrate":          opSetBitrate,
	"set_sjw_increment":    opSetSJWIncrement,
	"get_err_stat":         opGetErrStat,
	"clear_err_stat":       opClearErrStat,
	"set_mode":             opSetMode,
	"get_bitrate":          opGetBitrate,
	"get_iopin_status":     opGetIOPinStatus,
	"start":                opStart,
	"start_baudscan":       opStartBaudscan,
	"start_passive":        opStartPassive,
	"stop":                 opStop,
	"get_mode":             opGetMode,
	"rx_msg_count":         opRxMsgCount,
	"tx_msg_count":         opTxMsgCount,
	"tx_buf_size":          opTxBufSize,
	"rx_buf_size":          opRxBufSize,
	"reset_timestamp":      opResetTimestamp,
	"set_filter":           opSetFilter,
	"clear_filters":        opClearFilters,
	"read_frame":           opReadFrame,
	"write_frame":          opWriteFrame,
	"poll_readiness":       opPollReadiness,
}

// dispatch looks up name in the table and runs it, returning
// board.ErrUnknownOperation verbatim when name is not registered.
func dispatch(ctx context.Context, n *board.Node, name string, args []string) (string, error) {
	f, ok := ops[name]
	if !ok {
		return "", board.ErrUnknownOperation
	}
	return f(ctx, n, args)
}

func opResetBoard(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.Board().ResetBoard(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opGetCANStatus(ctx context.Context, n *board.Node, args []string) (string, error) {
	s := n.GetCANStatus()
	return fmt.Sprintf("%+v", s), nil
}

func opGetCANType(ctx context.Context, n *board.Node, args []string) (string, error) {
	return n.GetCANType().String(), nil
}

func opGetBoardStatus(ctx context.Context, n *board.Node, args []string) (string, error) {
	s := n.Board().GetBoardStatus()
	return fmt.Sprintf("fw_running=%s error=%d hw_id=%#02x pci104_pos=%d lpcbc_rev=%#04x cmd_ack_cnt=%d",
		s.FWRunning(), s.Error(), s.HWID(), s.PCI104Pos(), s.LPCBCRev(), s.CmdAckCount()), nil
}

func opGetHWID(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%#04x", n.Board().GetHWID()), nil
}

func opGetPCI104Position(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d", n.Board().GetPCI104Position()), nil
}

func opGetFW2Version(ctx context.Context, n *board.Node, args []string) (string, error) {
	v, date := n.Board().GetFW2Version()
	return fmt.Sprintf("%#04x (built %02x%02x-%02x-%02x)", v, date[0], date[1], date[2], date[3]), nil
}

func opGetDriverVersion(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%#04x", n.Board().GetDriverVersion()), nil
}

func opGetLPCBCRevision(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%#04x", n.Board().GetLPCBCRevision()), nil
}

func opSetBitrate(ctx context.Context, n *board.Node, args []string) (string, error) {
	idx, err := parseUint(args, 0, "bitrate index")
	if err != nil {
		return "", err
	}
	if err := n.SetBitrate(ctx, dpm.BitrateIndex(idx)); err != nil {
		return "", err
	}
	return "ok", nil
}

func opSetSJWIncrement(ctx context.Context, n *board.Node, args []string) (string, error) {
	v, err := parseUint(args, 0, "sjw increment")
	if err != nil {
		return "", err
	}
	if err := n.SetSJWIncrement(ctx, uint32(v)); err != nil {
		return "", err
	}
	return "ok", nil
}

func opGetErrStat(ctx context.Context, n *board.Node, args []string) (string, error) {
	v, err := n.GetErrStat(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%#08x", v), nil
}

func opClearErrStat(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.ClearErrStat(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opSetMode(ctx context.Context, n *board.Node, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("set_mode requires a mode name")
	}
	mode, err := parseMode(args[0])
	if err != nil {
		return "", err
	}
	if err := n.SetMode(ctx, mode); err != nil {
		return "", err
	}
	return "ok", nil
}

func opGetBitrate(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d kbps", n.GetBitrate()), nil
}

func opGetIOPinStatus(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d", n.GetIOPinStatus()), nil
}

func opStart(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.Start(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opStartBaudscan(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.StartBaudscan(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opStartPassive(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.StartPassive(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opStop(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.Stop(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opGetMode(ctx context.Context, n *board.Node, args []string) (string, error) {
	return n.GetMode().String(), nil
}

func opRxMsgCount(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d", n.RxMsgCount()), nil
}

func opTxMsgCount(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d", n.TxMsgCount()), nil
}

func opTxBufSize(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d", n.TxBufSize()), nil
}

func opRxBufSize(ctx context.Context, n *board.Node, args []string) (string, error) {
	return fmt.Sprintf("%d", n.RxBufSize()), nil
}

func opResetTimestamp(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.ResetTimestamp(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opSetFilter(ctx context.Context, n *board.Node, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("set_filter requires a kind (range|mask) and its operands")
	}
	var f board.Filter
	switch args[0] {
	case "range":
		lo, err := parseUint(args, 1, "filter lo")
		if err != nil {
			return "", err
		}
		hi, err := parseUint(args, 2, "filter hi")
		if err != nil {
			return "", err
		}
		f = board.Filter{Kind: board.FilterRange, Lo: uint32(lo), Hi: uint32(hi)}
	case "mask":
		mask, err := parseUint(args, 1, "filter mask")
		if err != nil {
			return "", err
		}
		code, err := parseUint(args, 2, "filter code")
		if err != nil {
			return "", err
		}
		f = board.Filter{Kind: board.FilterMask, Mask: uint32(mask), Code: uint32(code)}
	default:
		return "", fmt.Errorf("set_filter: unknown kind %q, want range or mask", args[0])
	}
	if err := n.SetFilter(ctx, f); err != nil {
		return "", err
	}
	return "ok", nil
}

func opClearFilters(ctx context.Context, n *board.Node, args []string) (string, error) {
	if err := n.ClearFilters(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func opReadFrame(ctx context.Context, n *board.Node, args []string) (string, error) {
	f, err := n.ReadFrame(ctx)
	if err != nil {
		return "", err
	}
	return f.String(), nil
}

func opWriteFrame(ctx context.Context, n *board.Node, args []string) (string, error) {
	f, err := parseFrame(args)
	if err != nil {
		return "", err
	}
	if err := n.WriteFrame(ctx, f); err != nil {
		return "", err
	}
	return "ok", nil
}

func opPollReadiness(ctx context.Context, n *board.Node, args []string) (string, error) {
	r := n.PollReadiness()
	return fmt.Sprintf("readable=%v writable=%v", r&board.Readable != 0, r&board.Writable != 0), nil
}

func parseUint(args []string, i int, what string) (uint64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing %s argument", what)
	}
	v, err := strconv.ParseUint(args[i], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, args[i], err)
	}
	return v, nil
}

func parseMode(s string) (dpm.Mode, error) {
	switch s {
	case "reset":
		return dpm.ModeReset, nil
	case "baudscan":
		return dpm.ModeBaudscan, nil
	case "passive":
		return dpm.ModePassive, nil
	case "active":
		return dpm.ModeActive, nil
	default:
		return 0, fmt.Errorf("unknown mode %q, want reset|baudscan|passive|active", s)
	}
}

// parseFrame builds a frame from "id dlc [byte...]", e.g. "123 3 aa bb cc".
func parseFrame(args []string) (frame.Frame, error) {
	if len(args) < 2 {
		return frame.Frame{}, fmt.Errorf("write_frame requires an id and a dlc, followed by up to 8 data bytes")
	}
	id, err := parseUint(args, 0, "frame id")
	if err != nil {
		return frame.Frame{}, err
	}
	dlc, err := parseUint(args, 1, "frame dlc")
	if err != nil {
		return frame.Frame{}, err
	}
	var f frame.Frame
	f.ID = uint32(id)
	f.SetDLC(int(dlc))
	for i, a := range args[2:] {
		if i >= 8 {
			break
		}
		b, err := strconv.ParseUint(a, 16, 8)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("invalid data byte %q: %w", a, err)
		}
		f.Data[i] = byte(b)
	}
	return f, nil
}
