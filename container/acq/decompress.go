/*
NAME
  decompress.go

DESCRIPTION
  decompress.go wraps the zlib inflate used to decode compressed-mode
  channel segments (§4.4). klauspost/compress is used in place of the
  standard library's compress/zlib for parity with the rest of this
  repo's third-party decode stack.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package acq

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// inflate decompresses a zlib-deflated channel segment. Compressed
// payloads are always little-endian once inflated, regardless of the
// file's byte-order field (§4.4, §9).
func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, newErr(KindChecksumOrInflate, -1, "could not open zlib stream", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, newErr(KindChecksumOrInflate, -1, "zlib inflate failed", err)
	}
	return out, nil
}
