// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package board

import "time"

// Config holds the construction-time parameters of a Board, following the
// teacher's Opts/DefaultOpts pattern (devices/ds248x.Opts) instead of a
// flags-reading constructor.
type Config struct {
	// NodeCount is the number of CAN nodes on the card: 2 or 4 for the
	// hardware this driver targets, but Attach accepts any positive value
	// so the in-memory test harness can exercise smaller layouts.
	NodeCount int

	// CommandTimeout bounds how long Send waits for a command
	// acknowledgement before giving up.
	CommandTimeout time.Duration

	// ResetTimeout bounds the whole reset/probe state machine.
	ResetTimeout time.Duration

	// ResetPollInterval is the granularity of the reset and firmware-update
	// polling loops.
	ResetPollInterval time.Duration

	// FirmwareUpdateMode mirrors the reference driver's fw_update module
	// parameter: when set, Node.WriteFrame forwards to the firmware-update
	// path instead of the normal ring-buffer write, per spec.md §4.E.
	// Board.SetFirmwareUpdateMode toggles this at runtime; this is only
	// the value a freshly attached Board starts with.
	FirmwareUpdateMode bool
}

// DefaultConfig is the configuration for a stock two-node card: a ~1s
// command timeout, a ~1s reset budget polled every 10ms, matching
// spec.md §5's "bounded polling (~1s budget, 10ms granularity)".
var DefaultConfig = Config{
	NodeCount:          2,
	CommandTimeout:     time.Second,
	ResetTimeout:       time.Second,
	ResetPollInterval:  10 * time.Millisecond,
	FirmwareUpdateMode: false,
}
