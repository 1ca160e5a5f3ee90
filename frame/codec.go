// Copyright 2026 The hcandrv Authors. All rights reserved.
// Use of this source code is governed under a BSD-style
// license that can be found in the LICENSE file.

package frame

import "encoding/binary"

// Encode marshals f into b, which must be at least Size bytes long, using
// the little-endian wire format the firmware expects regardless of host
// byte order.
func Encode(f Frame, b []byte) {
	_ = b[Size-1]
	binary.LittleEndian.PutUint16(b[0:2], f.Info)
	binary.LittleEndian.PutUint32(b[2:6], f.Timestamp)
	binary.LittleEndian.PutUint32(b[6:10], f.ID)
	copy(b[10:18], f.Data[:])
}

// Decode unmarshals a Frame from b, which must be at least Size bytes long.
func Decode(b []byte) Frame {
	_ = b[Size-1]
	var f Frame
	f.Info = binary.LittleEndian.Uint16(b[0:2])
	f.Timestamp = binary.LittleEndian.Uint32(b[2:6])
	f.ID = binary.LittleEndian.Uint32(b[6:10])
	copy(f.Data[:], b[10:18])
	return f
}
