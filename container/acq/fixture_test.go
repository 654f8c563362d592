/*
NAME
  fixture_test.go

DESCRIPTION
  fixture_test.go is a synthetic AcqKnowledge byte-stream encoder used
  by this package's tests. It mirrors the field layouts in
  container/acq/header/schema.go directly (rather than going through
  the package under test) so that tests exercise the walker and
  iterator against known-good bytes.

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
	"encoding/binary"
	"math"

	"github.com/ausocean/acq/container/acq/pattern"
)

// fixtureChannel describes one channel to bake into a synthetic file.
type fixtureChannel struct {
	orderNum   int32
	name       string
	units      string
	freqDiv    uint16
	dataType   uint8 // 1 = int16, 2 = float64
	pointCount uint32
	scale      float64
	offset     float64

	i16 []int16
	f64 []float64
}

// fixtureMarker describes one marker to bake into a synthetic file.
type fixtureMarker struct {
	globalSampleIndex uint32
	typeCode          [4]byte
	channelNumber     int16
	createdAt         uint32 // only emitted when rev >= 70
	label             string
}

type fixtureOpts struct {
	order        binary.ByteOrder
	rev          int32
	samplesPerS  float64
	isCompressed bool
	foreign      []byte
	markers      []fixtureMarker
	journal      string
}

type fixtureEncoder struct {
	order binary.ByteOrder
	buf   bytes.Buffer
}

func newFixtureEncoder(order binary.ByteOrder) *fixtureEncoder {
	return &fixtureEncoder{order: order}
}

func (e *fixtureEncoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *fixtureEncoder) i16(v int16)  { e.u16(uint16(v)) }
func (e *fixtureEncoder) u16(v uint16) { var b [2]byte; e.order.PutUint16(b[:], v); e.buf.Write(b[:]) }
func (e *fixtureEncoder) i32(v int32)  { e.u32(uint32(v)) }
func (e *fixtureEncoder) u32(v uint32) { var b [4]byte; e.order.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *fixtureEncoder) u64(v uint64) { var b [8]byte; e.order.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *fixtureEncoder) f64(v float64) { e.u64(math.Float64bits(v)) }
func (e *fixtureEncoder) raw(b []byte) { e.buf.Write(b) }
func (e *fixtureEncoder) fixed(n int)  { e.buf.Write(make([]byte, n)) }

func (e *fixtureEncoder) pstring1(s string) {
	e.u8(uint8(len(s)))
	e.buf.WriteString(s)
}

func (e *fixtureEncoder) pstring2(s string) {
	e.u16(uint16(len(s)))
	e.buf.WriteString(s)
}

// withLength writes a placeholder u32, runs fn to append the rest of a
// header's fields, then backpatches the placeholder with the number of
// bytes written since (and including) the placeholder itself.
func (e *fixtureEncoder) withLength(fn func()) {
	start := e.buf.Len()
	e.u32(0)
	fn()
	length := uint32(e.buf.Len() - start)
	patched := e.buf.Bytes()[start : start+4]
	e.order.PutUint32(patched, length)
}

func (e *fixtureEncoder) graphHeader(rev int32, channelCount int, isCompressed bool, samplesPerSecond float64) {
	e.withLength(func() {
		e.i32(rev)
		e.f64(samplesPerSecond)
		e.u16(uint16(channelCount))
		if isCompressed {
			e.u8(1)
		} else {
			e.u8(0)
		}
		e.fixed(3) // Reserved0
		if rev >= 60 {
			e.u16(7) // ExperimentType
		}
		if rev >= 80 {
			e.pstring2("synthetic graph note")
		}
	})
}

func (e *fixtureEncoder) channelHeader(rev int32, ch fixtureChannel) {
	e.withLength(func() {
		e.i32(ch.orderNum)
		e.pstring1(ch.name)
		e.pstring1(ch.units)
		e.u16(ch.freqDiv)
		e.u8(ch.dataType)
		e.u32(ch.pointCount)
		e.f64(ch.scale)
		e.f64(ch.offset)
		if rev >= 45 {
			e.fixed(4) // DisplayColor
		}
	})
}

func (e *fixtureEncoder) foreignData(payload []byte) {
	e.u32(uint32(len(payload)))
	e.raw(payload)
}

func (e *fixtureEncoder) channelDatatype(dtype, size uint8) {
	e.u8(dtype)
	e.u8(size)
}

func (e *fixtureEncoder) markerBlock(rev int32, markers []fixtureMarker) {
	// MarkerSchema.Length describes only this 8-byte header
	// (Length+Count), not the variable-length items that follow: each
	// item frames itself independently below.
	e.u32(8)
	e.u32(uint32(len(markers)))
	for _, m := range markers {
		e.withLength(func() {
			e.u32(m.globalSampleIndex)
			e.raw(m.typeCode[:])
			e.i16(m.channelNumber)
			if rev <= 60 {
				e.fixed(4) // Style
			}
			if rev >= 70 {
				e.u32(m.createdAt)
			}
			e.pstring2(m.label)
		})
	}
	// Post-marker header: Length describes only itself here (4 bytes
	// consumed, nothing trailing).
	e.u32(4)
}

func (e *fixtureEncoder) journal(text string) {
	e.u32(8) // Length: exactly the two fields below, no trailing bytes
	e.u32(uint32(len(text)))
	e.buf.WriteString(text)
}

func dtypeSizeFor(dataType uint8) (uint8, uint8) {
	if dataType == 2 {
		return 2, 8
	}
	return 1, 2
}

// buildUncompressedFixture assembles a full uncompressed-mode
// AcqKnowledge byte stream: graph header, channel headers, foreign
// data block, channel datatype array, the raw interleaved data region,
// marker block and journal, in that walk order.
func buildUncompressedFixture(o fixtureOpts, channels []fixtureChannel) []byte {
	e := newFixtureEncoder(o.order)
	e.graphHeader(o.rev, len(channels), false, o.samplesPerS)
	for _, ch := range channels {
		e.channelHeader(o.rev, ch)
	}
	e.foreignData(o.foreign)
	for _, ch := range channels {
		dtype, size := dtypeSizeFor(ch.dataType)
		e.channelDatatype(dtype, size)
	}

	dividers := make([]int, len(channels))
	counts := make([]int, len(channels))
	for i, ch := range channels {
		dividers[i] = int(ch.freqDiv)
		counts[i] = int(ch.pointCount)
	}
	plans, err := pattern.Build(dividers, counts, 1<<20)
	if err != nil {
		panic(err)
	}
	seq := pattern.ExpandAll(plans)
	cursor := make([]int, len(channels))
	for _, idx := range seq {
		ch := channels[idx]
		if ch.dataType == 2 {
			e.f64(ch.f64[cursor[idx]])
		} else {
			e.i16(ch.i16[cursor[idx]])
		}
		cursor[idx]++
	}

	e.markerBlock(o.rev, o.markers)
	e.journal(o.journal)
	return e.buf.Bytes()
}

// buildCompressedFixture assembles a compressed-mode byte stream:
// graph/channel/foreign/datatype headers, then markers and journal,
// then N channel-compression headers each followed by a zlib-deflated
// payload (§4.3's compressed walk order).
func buildCompressedFixture(o fixtureOpts, channels []fixtureChannel, deflate func([]byte) []byte) []byte {
	e := newFixtureEncoder(o.order)
	e.graphHeader(o.rev, len(channels), true, o.samplesPerS)
	for _, ch := range channels {
		e.channelHeader(o.rev, ch)
	}
	e.foreignData(o.foreign)
	for _, ch := range channels {
		dtype, size := dtypeSizeFor(ch.dataType)
		e.channelDatatype(dtype, size)
	}
	e.markerBlock(o.rev, o.markers)
	e.journal(o.journal)

	for _, ch := range channels {
		var raw bytes.Buffer
		if ch.dataType == 2 {
			for _, v := range ch.f64 {
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
				raw.Write(b[:])
			}
		} else {
			for _, v := range ch.i16 {
				var b [2]byte
				binary.LittleEndian.PutUint16(b[:], uint16(v))
				raw.Write(b[:])
			}
		}
		compressed := deflate(raw.Bytes())
		e.withLength(func() {
			e.i32(ch.orderNum)
			e.u32(uint32(len(compressed)))
			e.u32(uint32(raw.Len()))
		})
		e.raw(compressed)
	}
	return e.buf.Bytes()
}
