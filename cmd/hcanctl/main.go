// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

// hcanctl drives one node of a HiCO.CAN adapter for inspection and
// scripting, the way cmd/i2c-io drives an I²C peripheral: open the
// device, run one operation, print the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/emtrion/hcandrv/board"
	"github.com/emtrion/hcandrv/dpm"
	"github.com/emtrion/hcandrv/dpm/dpmtest"
)

func mainImpl() error {
	bar := flag.String("bar", "", "path to the DPM BAR resource file (e.g. /sys/bus/pci/devices/<id>/resource2)")
	barSize := flag.Int("bar-size", 64*1024, "size in bytes of the DPM BAR")
	ctrl := flag.String("ctrl", "", "path to the one-byte reset/fw-update control resource file")
	nodeCount := flag.Int("nodes", 2, "number of CAN nodes on this card")
	node := flag.Int("node", 0, "node index to operate on")
	timeout := flag.Duration("timeout", time.Second, "command timeout")
	sim := flag.Bool("sim", false, "run against an in-process simulated board instead of real hardware")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() < 1 {
		return errors.New("specify an operation, e.g. get_board_status")
	}
	opName := flag.Arg(0)
	opArgs := flag.Args()[1:]

	var win dpm.Window
	var resetter board.Resetter
	var irqSource <-chan struct{}
	switch {
	case *sim:
		layout, err := dpm.NewLayout(*barSize, *nodeCount)
		if err != nil {
			return err
		}
		simWin := dpm.NewSimWindow(layout.DPMSize)
		peer := dpmtest.NewPeer(simWin, layout)
		go peer.Run()
		defer peer.Close()
		win, resetter, irqSource = simWin, peer, peer.IRQ()
	case *bar != "" && *ctrl != "":
		w, err := dpm.OpenBAR(*bar, *barSize)
		if err != nil {
			return fmt.Errorf("opening DPM BAR: %w", err)
		}
		win = w
		r, err := openControlResetter(*ctrl)
		if err != nil {
			return fmt.Errorf("opening control register: %w", err)
		}
		defer r.Close()
		resetter = r
		// hcanctl has no real interrupt line of its own (PCI interrupt
		// plumbing is out of this module's scope); fall back to polling
		// the board at the same granularity a real handler would see
		// a shared-IRQ line fire.
		irqSource = pollTicker(10 * time.Millisecond)
	default:
		return errors.New("specify either -sim, or both -bar and -ctrl")
	}

	cfg := board.DefaultConfig
	cfg.NodeCount = *nodeCount
	cfg.CommandTimeout = *timeout

	b, err := board.Attach(win, cfg, resetter)
	if err != nil {
		return fmt.Errorf("attaching board: %w", err)
	}
	defer b.Close()
	b.ServeInterrupts(irqSource)

	if *node < 0 || *node >= b.NodeCount() {
		return fmt.Errorf("-node must be between 0 and %d", b.NodeCount()-1)
	}
	n := b.Node(*node)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	result, err := dispatch(ctx, n, opName, opArgs)
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

// pollTicker returns a channel that fires every interval, standing in for
// a real interrupt line when none is wired.
func pollTicker(interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for range t.C {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "hcanctl: %s.\n", err)
		os.Exit(1)
	}
}
