/*
NAME
  text.go

DESCRIPTION
  text.go implements the legacy string decoding fallback chain used for
  header strings: UTF-8, then Windows-1252, then MacRoman, first
  lossless decode wins (§4.2).

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
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// textCandidates is tried in order; the name is what gets recorded on
// Datafile.Encoding for the first candidate that decodes losslessly.
var textCandidates = []struct {
	name string
	enc  encoding.Encoding // nil for utf8, handled specially
}{
	{"utf-8", nil},
	{"windows-1252", charmap.Windows1252},
	{"macroman", charmap.Macintosh},
}

// decodeText applies the fallback chain and returns the best available
// decode. It never fails: if nothing decodes losslessly, a lossy UTF-8
// decode is returned. It discards the lossless flag, so no
// EncodingFailure warning follows from it; callers that need one use
// decodeTextTracked.
func decodeText(b []byte) string {
	s, _, _ := decodeTextTracked(b)
	return s
}

// decodeTextTracked is decodeText plus the name of the winning encoding
// and whether the decode was lossless.
func decodeTextTracked(b []byte) (s string, encName string, lossless bool) {
	if len(b) == 0 {
		return "", "utf-8", true
	}
	for _, c := range textCandidates {
		if c.enc == nil {
			if utf8.Valid(b) {
				return string(b), c.name, true
			}
			continue
		}
		decoded, err := c.enc.NewDecoder().Bytes(b)
		if err != nil {
			continue
		}
		// Windows-1252 and MacRoman are single-byte encodings that map
		// every byte value to some rune, so the decode "succeeding"
		// isn't itself proof of correctness; treat it as lossless
		// since there's no better signal available for single-byte
		// charmaps, matching the fallback chain's documented behaviour.
		return string(decoded), c.name, true
	}
	// Nothing decoded losslessly; fall back to a lossy UTF-8 decode via
	// replacement of invalid sequences.
	return string([]rune(string(b))), "utf-8", false
}
