// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// Package hcandrv is the host-side driver core for the emtrion HiCO.CAN
// PCI/MiniPCI CAN-bus adapter family (2 and 4 node variants).
//
// The adapter exposes a dual-ported memory (DPM) window through which the
// host and the on-card firmware exchange CAN frames, commands and status.
// This module implements the protocol engine that multiplexes that single
// shared window and its single interrupt line into independent per-node
// frame streams:
//
//   - dpm: typed, bit-exact view of the DPM control area and volatile
//     accessors.
//   - ring: single-producer/single-consumer frame ring buffers over DPM.
//   - mailbox: the request/reply command transport over the mailbox pair.
//   - irq: the interrupt demultiplexer.
//   - board: per-node blocking I/O, control operations, reset and firmware
//     update, built on top of the four packages above.
//
// PCI enumeration, BAR mapping, character-device registration and
// per-platform byte-swapped MMIO primitives are intentionally left to the
// surrounding driver shell; dpm.Window is the seam where that glue attaches.
package hcandrv // import "github.com/emtrion/hcandrv"

// DriverVersion is returned by Board.GetDriverVersion and reported by hcanctl.
const DriverVersion = 0x0100
