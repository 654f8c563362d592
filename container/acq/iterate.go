/*
NAME
  iterate.go

DESCRIPTION
  iterate.go implements the Sample Iterator (§4.3 §4.4, component F):
  it replays the Interleave Pattern Builder's plans against either the
  uncompressed data region or the per-channel zlib streams, producing
  each channel's raw samples without requiring the whole file to be
  resident in memory at once.

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
	"math"

	"github.com/pkg/errors"

	"github.com/ausocean/acq/container/acq/pattern"
)

// Stop is returned by a StreamFunc to end streaming early without it
// being treated as an error (§4.4's cancellation sentinel).
var Stop = errors.New("acq: stop streaming")

// StreamFunc receives one batch of freshly-decoded samples for a
// single channel. Returning Stop ends the stream early with no error
// from Stream/StreamChannel; any other non-nil error aborts the
// stream and is returned as-is.
type StreamFunc func(ch *Channel, samples []float64) error

// SampleIterator replays the interleave plan for a Datafile, producing
// raw sample data either all at once (MaterialiseAll) or in bounded
// chunks (Stream).
type SampleIterator struct {
	df *Datafile
}

func newSampleIterator(df *Datafile) *SampleIterator {
	return &SampleIterator{df: df}
}

// MaterialiseAll reads every channel's samples into memory, so that
// Channel.Data/RawInt16/RawFloat64 are fully populated afterwards.
func (it *SampleIterator) MaterialiseAll() error {
	for _, ch := range it.df.Channels {
		ch.reset()
	}
	if it.df.IsCompressed {
		return it.materialiseCompressed()
	}
	return it.materialiseUncompressed()
}

func (it *SampleIterator) materialiseCompressed() error {
	df := it.df
	for i, ch := range df.Channels {
		if i >= len(df.compressedSegments) {
			return newErr(KindInvariantViolation, -1, "no compressed segment recorded for channel", nil)
		}
		seg := df.compressedSegments[i]
		br := newByteReader(df.src, df.order)
		if err := br.Seek(seg.offset); err != nil {
			return errors.Wrapf(err, "seeking to compressed segment for channel %q", ch.Name)
		}
		compressed, err := br.ReadFixed(int(seg.length))
		if err != nil {
			return errors.Wrapf(err, "reading compressed segment for channel %q", ch.Name)
		}
		raw, err := inflate(compressed)
		if err != nil {
			return errors.Wrapf(err, "inflating channel %q", ch.Name)
		}
		decodeRawSamples(ch, raw, binary.LittleEndian)
	}
	return nil
}

func (it *SampleIterator) materialiseUncompressed() error {
	df := it.df
	dividers := make([]int, len(df.Channels))
	counts := make([]int, len(df.Channels))
	for i, ch := range df.Channels {
		dividers[i] = ch.FrequencyDivider
		counts[i] = ch.PointCount
	}
	plans, err := pattern.Build(dividers, counts, df.opts.ChunkSize)
	if err != nil {
		return errors.Wrap(err, "building interleave plan")
	}

	br := newByteReader(df.src, df.order)
	if err := br.Seek(df.dataOffset); err != nil {
		return errors.Wrap(err, "seeking to uncompressed data region")
	}

	for _, plan := range plans {
		for rep := 0; rep < plan.Reps; rep++ {
			for _, idx := range plan.Pattern {
				ch := df.Channels[idx]
				if err := readOneSample(br, ch); err != nil {
					return errors.Wrapf(err, "reading sample for channel %q", ch.Name)
				}
			}
		}
	}
	return nil
}

func readOneSample(br *byteReader, ch *Channel) error {
	switch ch.Dtype {
	case Float64:
		v, err := br.ReadF64()
		if err != nil {
			return err
		}
		ch.appendFloat64(v)
	default:
		v, err := br.ReadI16()
		if err != nil {
			return err
		}
		ch.appendInt16(v)
	}
	return nil
}

// decodeRawSamples reinterprets an inflated per-channel byte stream
// according to the channel's declared data type (§4.2 compressed mode
// always stores each channel's samples contiguously, so no
// interleaving is needed once inflated).
func decodeRawSamples(ch *Channel, raw []byte, order binary.ByteOrder) {
	switch ch.Dtype {
	case Float64:
		n := len(raw) / 8
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			bits := order.Uint64(raw[i*8 : i*8+8])
			vals[i] = math.Float64frombits(bits)
		}
		ch.setFloat64(vals)
	default:
		n := len(raw) / 2
		vals := make([]int16, n)
		for i := 0; i < n; i++ {
			vals[i] = int16(order.Uint16(raw[i*2 : i*2+2]))
		}
		ch.setInt16(vals)
	}
}

// Stream replays the interleave plan without materialising more than
// one chunk at a time, invoking fn once per channel per chunk with
// that chunk's freshly-decoded samples (already scaled via
// Channel.Data's formula). Only meaningful for uncompressed files: a
// compressed file's channels are already contiguous per-channel
// streams, so callers should use StreamChannel instead.
func (it *SampleIterator) Stream(fn StreamFunc) error {
	df := it.df
	if df.IsCompressed {
		return newErr(KindInvariantViolation, -1, "Stream is only supported for uncompressed files; use StreamChannel", nil)
	}

	dividers := make([]int, len(df.Channels))
	counts := make([]int, len(df.Channels))
	for i, ch := range df.Channels {
		dividers[i] = ch.FrequencyDivider
		counts[i] = ch.PointCount
	}
	plans, err := pattern.Build(dividers, counts, df.opts.ChunkSize)
	if err != nil {
		return errors.Wrap(err, "building interleave plan")
	}

	br := newByteReader(df.src, df.order)
	if err := br.Seek(df.dataOffset); err != nil {
		return errors.Wrap(err, "seeking to uncompressed data region")
	}

	for _, plan := range plans {
		for i := range df.Channels {
			df.Channels[i].reset()
		}
		for rep := 0; rep < plan.Reps; rep++ {
			for _, idx := range plan.Pattern {
				ch := df.Channels[idx]
				if err := readOneSample(br, ch); err != nil {
					return errors.Wrapf(err, "reading sample for channel %q", ch.Name)
				}
			}
		}
		for _, ch := range df.Channels {
			if ch.Len() == 0 {
				continue
			}
			if err := fn(ch, ch.Data()); err != nil {
				if err == Stop {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// StreamChannel hands a single channel's samples to fn in chunks of
// chunkSize samples (Options.ChunkSize if chunkSize <= 0). It is the
// entry point to use for compressed files, and is also valid for
// uncompressed ones. The chunking applies only to delivery: for a
// compressed file the channel's whole segment is inflated before the
// first chunk is handed over, and for an uncompressed file every
// channel's samples are read into memory first, so memory use grows
// with the recording's length, not with chunkSize.
func (it *SampleIterator) StreamChannel(ch *Channel, chunkSize int, fn func(samples []float64) error) error {
	if chunkSize <= 0 {
		chunkSize = it.df.opts.ChunkSize
	}
	df := it.df

	if df.IsCompressed {
		idx := -1
		for i, c := range df.Channels {
			if c == ch {
				idx = i
				break
			}
		}
		if idx < 0 || idx >= len(df.compressedSegments) {
			return newErr(KindInvariantViolation, -1, "channel not found in this datafile", nil)
		}
		seg := df.compressedSegments[idx]
		br := newByteReader(df.src, df.order)
		if err := br.Seek(seg.offset); err != nil {
			return errors.Wrap(err, "seeking to compressed segment")
		}
		compressed, err := br.ReadFixed(int(seg.length))
		if err != nil {
			return errors.Wrap(err, "reading compressed segment")
		}
		raw, err := inflate(compressed)
		if err != nil {
			return errors.Wrap(err, "inflating channel")
		}
		decodeRawSamples(ch, raw, binary.LittleEndian)
		data := ch.Data()
		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			if err := fn(data[off:end]); err != nil {
				if err == Stop {
					return nil
				}
				return err
			}
		}
		return nil
	} else {
		ch.reset()
		if err := it.materialiseUncompressed(); err != nil {
			return err
		}
		data := ch.Data()
		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			if err := fn(data[off:end]); err != nil {
				if err == Stop {
					return nil
				}
				return err
			}
		}
		return nil
	}
}
