/*
NAME
  acq.go

DESCRIPTION
  acq.go provides the public data model for a decoded AcqKnowledge
  file: Datafile, Channel, Marker and Journal (§3, component G), along
  with the package entry points (§6).

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package acq decodes BIOPAC AcqKnowledge (.acq) physiological
// recording files into a uniform in-memory model, plus a streaming
// sample iterator for files too large to hold entirely in memory.
package acq

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/ausocean/utils/logging"
)

// SampleDtype is the on-disk sample width for a channel.
type SampleDtype int

const (
	Int16 SampleDtype = iota
	Float64
)

func (d SampleDtype) size() int {
	if d == Float64 {
		return 8
	}
	return 2
}

// Channel is one acquired signal (§3 Channel).
type Channel struct {
	OrderNum         int32
	Name             string
	Units            string
	FrequencyDivider int
	SamplesPerSecond float64
	PointCount       int
	Dtype            SampleDtype
	SampleSizeBytes  int
	Scale            float64
	Offset           float64

	rawI16 []int16
	rawF64 []float64
}

// Len returns the number of raw samples currently held for the
// channel. Before materialisation this is 0.
func (c *Channel) Len() int {
	if c.Dtype == Float64 {
		return len(c.rawF64)
	}
	return len(c.rawI16)
}

// RawInt16 returns the raw int16 samples. It is only meaningful when
// Dtype == Int16.
func (c *Channel) RawInt16() []int16 { return c.rawI16 }

// RawFloat64 returns the raw float64 samples. It is only meaningful
// when Dtype == Float64.
func (c *Channel) RawFloat64() []float64 { return c.rawF64 }

// Data returns raw_data*scale + offset as float64 (§4.5). For Float64
// channels Scale is 1 and Offset is 0 by construction, so this is a
// copy of the raw samples.
func (c *Channel) Data() []float64 {
	n := c.Len()
	out := make([]float64, n)
	switch c.Dtype {
	case Float64:
		copy(out, c.rawF64)
	default:
		for i, v := range c.rawI16 {
			out[i] = float64(v)*c.Scale + c.Offset
		}
	}
	return out
}

// TimeIndex returns time_index[i] = i / samples_per_second (§4.5).
func (c *Channel) TimeIndex() []float64 {
	n := c.Len()
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / c.SamplesPerSecond
	}
	return out
}

// Upsampled returns the scaled data with each element repeated
// FrequencyDivider times, aligning the channel to the file's base
// rate (§4.5).
func (c *Channel) Upsampled() []float64 {
	data := c.Data()
	out := make([]float64, len(data)*c.FrequencyDivider)
	for j := range out {
		out[j] = data[j/c.FrequencyDivider]
	}
	return out
}

func (c *Channel) reset() {
	c.rawI16 = c.rawI16[:0]
	c.rawF64 = c.rawF64[:0]
}

func (c *Channel) appendInt16(v int16)     { c.rawI16 = append(c.rawI16, v) }
func (c *Channel) appendFloat64(v float64) { c.rawF64 = append(c.rawF64, v) }

func (c *Channel) setInt16(vals []int16)     { c.rawI16 = vals }
func (c *Channel) setFloat64(vals []float64) { c.rawF64 = vals }

// Marker is an annotation attached to a recording (§3 Marker).
type Marker struct {
	GlobalSampleIndex int64
	Label             string
	TypeCode          [4]byte
	Type              string
	Style             [4]byte
	ChannelNumber     int32 // -1 for a global marker
	CreatedAt         *time.Time

	df *Datafile // weak back-reference, resolved by order_num lookup
}

// Channel resolves the marker's weak channel reference. It returns nil
// for a global marker, or if no channel in the file has the marker's
// order_num (an InvariantViolation warning is attached to the Datafile
// in that case, at walk time).
func (m *Marker) Channel() *Channel {
	if m.ChannelNumber < 0 || m.df == nil {
		return nil
	}
	return m.df.ChannelByOrderNum(m.ChannelNumber)
}

// ChannelSampleIndex returns global_sample_index / channel.frequency_divider
// for a non-global marker, and ok=false for a global marker or one
// whose channel could not be resolved.
func (m *Marker) ChannelSampleIndex() (idx int64, ok bool) {
	ch := m.Channel()
	if ch == nil {
		return 0, false
	}
	return m.GlobalSampleIndex / int64(ch.FrequencyDivider), true
}

// Journal is the free-text recording log (§3 Journal).
type Journal struct {
	Text   string
	Header map[string]any
}

// ForeignBlock is an opaque byte range whose layout is unknown; its
// raw bytes are preserved for round-tripping and diagnostics (§3).
type ForeignBlock struct {
	raw []byte
}

// RawBytes returns the foreign data block's raw bytes verbatim.
func (f *ForeignBlock) RawBytes() []byte { return f.raw }

// Len returns the number of bytes in the foreign data block.
func (f *ForeignBlock) Len() int { return len(f.raw) }

// compressedSegment is a channel's byte range within a compressed file.
type compressedSegment struct {
	offset int64
	length int64
}

// Datafile is the aggregate root produced by ReadFile/OpenFile (§3).
type Datafile struct {
	FileRevision     int
	IsCompressed     bool
	ByteOrder        string // "little" or "big"
	SamplesPerSecond float64
	GraphHeader      map[string]any
	Channels         []*Channel
	Markers          []*Marker
	Journal          Journal
	Foreign          ForeignBlock
	Encoding         string
	Warnings         []Warning

	// EarliestMarkerCreatedAt is derived from Markers at walk time.
	EarliestMarkerCreatedAt *time.Time

	dataOffset         int64 // O_data; uncompressed files only
	dataRegionLength   int64
	compressedSegments []compressedSegment // compressed files only, indexed by channel order

	src      Source
	closeSrc func() error
	order    binary.ByteOrder
	opts     Options
}

// ChannelByOrderNum returns the channel with the given order_num, or
// nil if none matches.
func (d *Datafile) ChannelByOrderNum(n int32) *Channel {
	for _, c := range d.Channels {
		if c.OrderNum == n {
			return c
		}
	}
	return nil
}

func (d *Datafile) warn(k Kind, off int64, msg string) {
	d.Warnings = append(d.Warnings, Warning{Kind: k, Offset: off, Message: msg})
}

func (d *Datafile) log() logging.Logger {
	if d.opts.Logger != nil {
		return d.opts.Logger
	}
	return discardLogger{}
}

// Close releases the underlying byte source, per §5's "scoped
// acquisition with guaranteed release on all exit paths". Safe to call
// more than once.
func (d *Datafile) Close() error {
	if d.closeSrc == nil {
		return nil
	}
	err := d.closeSrc()
	d.closeSrc = nil
	return err
}

// ReadFile fully materialises the AcqKnowledge file at path, including
// every channel's raw sample data (§6's read_file).
func ReadFile(path string, opts ...Option) (*Datafile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return readAll(f, func() error { return f.Close() }, opts...)
}

// Read fully materialises an AcqKnowledge file from r, which need not
// be seekable (it is spooled to a temporary file if not) (§6).
func Read(r io.Reader, opts ...Option) (*Datafile, error) {
	if src, ok := r.(Source); ok {
		return readAll(src, nil, opts...)
	}
	src, cleanup, err := spool(r)
	if err != nil {
		return nil, err
	}
	return readAll(src, cleanup, opts...)
}

func readAll(src Source, cleanup func() error, opts ...Option) (*Datafile, error) {
	df, it, err := open(src, cleanup, opts...)
	if err != nil {
		return nil, err
	}
	if err := it.MaterialiseAll(); err != nil {
		df.Close()
		return nil, err
	}
	return df, nil
}

// OpenFile opens the AcqKnowledge file at path and returns a Datafile
// with headers populated but no channel sample data, plus a
// SampleIterator that lazily produces it (§6's open_file).
func OpenFile(path string, opts ...Option) (*Datafile, *SampleIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return open(f, func() error { return f.Close() }, opts...)
}

// Open is OpenFile for an already-open source (§6).
func Open(r io.Reader, opts ...Option) (*Datafile, *SampleIterator, error) {
	if src, ok := r.(Source); ok {
		return open(src, nil, opts...)
	}
	src, cleanup, err := spool(r)
	if err != nil {
		return nil, nil, err
	}
	return open(src, cleanup, opts...)
}

func open(src Source, cleanup func() error, opts ...Option) (*Datafile, *SampleIterator, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	w := &walker{src: src, opts: o}
	df, it, err := w.walk()
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}
	df.closeSrc = cleanup
	return df, it, nil
}

// discardLogger is used when no logging.Logger was supplied; it drops
// everything, the same role a logging.New sink pointed at io.Discard
// plays in the teacher's commands, but without needing a writer.
type discardLogger struct{}

func (discardLogger) SetLevel(int8)                    {}
func (discardLogger) Log(int8, string, ...interface{}) {}
func (discardLogger) Debug(msg string, args ...any)    {}
func (discardLogger) Info(msg string, args ...any)     {}
func (discardLogger) Warning(msg string, args ...any)  {}
func (discardLogger) Error(msg string, args ...any)    {}
func (discardLogger) Fatal(msg string, args ...any)    {}
