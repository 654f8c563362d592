/*
NAME
  reader.go

DESCRIPTION
  reader.go provides byteReader, an endian-aware cursor over a seekable
  byte source. It is the primitive that the header decoder, walker and
  sample iterator are all built on top of.

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
	"encoding/binary"
	"io"
	"math"
	"os"
)

// Source is the byte-source abstraction consumed from collaborators:
// anything that can be read from, seeked within, and is positionable.
// *os.File and *bytes.Reader both satisfy it.
type Source interface {
	io.Reader
	io.Seeker
}

// byteReader is a cursor over a Source. It never suspends: every method
// is synchronous and returns a wrapped *Error on failure.
type byteReader struct {
	src   Source
	order binary.ByteOrder
	off   int64
	buf   [8]byte

	// encSeen and onLossyText support the §4.2 text-encoding fallback
	// chain: encSeen records which candidate encodings were actually
	// used (for Datafile.Encoding), and onLossyText, if set, is
	// invoked with the offset of a string that decoded losslessly
	// under no candidate, so the walker can attach an EncodingFailure
	// warning.
	encSeen     map[string]bool
	onLossyText func(off int64)
}

func newByteReader(src Source, order binary.ByteOrder) *byteReader {
	return &byteReader{src: src, order: order}
}

// Tell returns the reader's current offset.
func (r *byteReader) Tell() int64 { return r.off }

// Seek moves the reader to an absolute offset.
func (r *byteReader) Seek(abs int64) error {
	n, err := r.src.Seek(abs, io.SeekStart)
	if err != nil {
		return newErr(KindSeekError, r.off, "seek failed", err)
	}
	r.off = n
	return nil
}

// Skip advances the reader by n bytes without retaining their contents.
func (r *byteReader) Skip(n int64) error {
	if n <= 0 {
		return nil
	}
	return r.Seek(r.off + n)
}

func (r *byteReader) fill(n int) ([]byte, error) {
	b := r.buf[:n]
	if _, err := io.ReadFull(r.src, b); err != nil {
		return nil, newErr(KindInsufficientData, r.off, "short read", err)
	}
	r.off += int64(n)
	return b, nil
}

// ReadFixed reads n raw bytes and returns them as a fresh slice; the
// internal scratch buffer is not reused across fields wider than 8
// bytes, so this is the path for anything bigger.
func (r *byteReader) ReadFixed(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.src, b); err != nil {
		return nil, newErr(KindInsufficientData, r.off, "short read", err)
	}
	r.off += int64(n)
	return b, nil
}

func (r *byteReader) ReadU8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *byteReader) ReadU16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *byteReader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *byteReader) ReadU32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *byteReader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *byteReader) ReadU64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *byteReader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *byteReader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *byteReader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadPString reads a length-prefixed string; lenWidth is the width in
// bytes (1, 2 or 4) of the length prefix.
func (r *byteReader) ReadPString(lenWidth int) (string, error) {
	var n uint64
	var err error
	switch lenWidth {
	case 1:
		var v uint8
		v, err = r.ReadU8()
		n = uint64(v)
	case 2:
		var v uint16
		v, err = r.ReadU16()
		n = uint64(v)
	case 4:
		var v uint32
		v, err = r.ReadU32()
		n = uint64(v)
	default:
		return "", newErr(KindInsufficientData, r.off, "unsupported pstring length width", nil)
	}
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	start := r.off
	b, err := r.ReadFixed(int(n))
	if err != nil {
		return "", err
	}
	s, encName, lossless := decodeTextTracked(b)
	if r.encSeen == nil {
		r.encSeen = make(map[string]bool)
	}
	r.encSeen[encName] = true
	if !lossless && r.onLossyText != nil {
		r.onLossyText(start)
	}
	return s, nil
}

// encodingsUsed returns the set of text encodings that decoded at
// least one string during this reader's lifetime.
func (r *byteReader) encodingsUsed() []string {
	out := make([]string, 0, len(r.encSeen))
	for name := range r.encSeen {
		out = append(out, name)
	}
	return out
}

// spool copies a non-seekable stream into a temporary file so that it
// can be treated as a seekable Source, per §6's "non-seekable stream
// spooled to a temporary seekable buffer".
func spool(r io.Reader) (Source, func() error, error) {
	f, err := os.CreateTemp("", "acq-spool-*")
	if err != nil {
		return nil, nil, err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, nil, err
	}
	name := f.Name()
	cleanup := func() error {
		cerr := f.Close()
		rerr := os.Remove(name)
		if cerr != nil {
			return cerr
		}
		return rerr
	}
	return f, cleanup, nil
}
