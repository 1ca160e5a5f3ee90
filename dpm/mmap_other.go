// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package dpm

import "errors"

// OpenBAR is only supported on Linux, matching the teacher's precedent of
// gating /dev/gpiomem and /dev/mem access to the platform that provides
// them.
func OpenBAR(path string, size int) (Window, error) {
	return nil, errors.New("dpm: BAR mapping is not supported on this platform")
}
