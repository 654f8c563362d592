/*
NAME
  walk.go

DESCRIPTION
  walk.go implements the File Walker (§4.3, component D): the
  version-discriminated, ordered traversal of an AcqKnowledge file that
  populates the public data model and resolves the byte offsets the
  Sample Iterator needs. It also implements the Foreign Data Header
  "weird-length" recovery described in §4.2.

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
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/acq/container/acq/header"
)

const (
	minRevisionMagic = 30
	maxRevisionMagic = 200
)

// walker drives the ordered traversal described in §4.3.
type walker struct {
	src  Source
	opts Options

	br  *byteReader
	rev int
}

func orderName(o binary.ByteOrder) string {
	if o == binary.BigEndian {
		return "big"
	}
	return "little"
}

// walk performs the full traversal and returns a Datafile with headers
// populated (sample data not yet read) plus a SampleIterator over it.
func (w *walker) walk() (*Datafile, *SampleIterator, error) {
	order, err := detectByteOrder(w.src)
	if err != nil {
		return nil, nil, err
	}
	w.br = newByteReader(w.src, order)

	df := &Datafile{src: w.src, order: order, opts: w.opts, ByteOrder: orderName(order)}
	w.br.onLossyText = func(off int64) {
		df.warn(KindEncodingFailure, off, "no candidate encoding decoded this string losslessly")
	}

	rev, err := w.peekRevision()
	if err != nil {
		return nil, nil, err
	}
	if rev < header.MinSupportedRevision {
		return nil, nil, newErr(KindUnsupportedRevision, 0, fmt.Sprintf("file_revision %d is below the minimum supported revision %d", rev, header.MinSupportedRevision), nil)
	}
	w.rev = rev
	df.FileRevision = rev

	graphRec, err := header.Decode(w.br, header.GraphSchema, rev)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decoding graph header")
	}
	df.GraphHeader = graphRec.Fields
	df.SamplesPerSecond = graphRec.Float("SamplesPerSecond")
	df.IsCompressed = graphRec.Uint("IsCompressed") != 0
	channelCount := int(graphRec.Uint("ChannelCount"))

	df.log().Debug("decoded graph header", "file_revision", rev, "channels", channelCount, "compressed", df.IsCompressed)

	if err := w.readChannels(df, channelCount); err != nil {
		return nil, nil, err
	}

	if err := w.readForeignAndDatatypes(df, channelCount); err != nil {
		return nil, nil, err
	}

	if df.IsCompressed {
		if err := w.readMarkers(df); err != nil {
			return nil, nil, err
		}
		if err := w.readJournal(df); err != nil {
			return nil, nil, err
		}
		if err := w.readCompressionHeaders(df, channelCount); err != nil {
			return nil, nil, err
		}
	} else {
		df.dataOffset = w.br.Tell()
		df.dataRegionLength = 0
		for _, ch := range df.Channels {
			df.dataRegionLength += int64(ch.PointCount) * int64(ch.SampleSizeBytes)
		}
		if err := w.br.Skip(df.dataRegionLength); err != nil {
			return nil, nil, errors.Wrap(err, "skipping uncompressed data region to reach marker block")
		}
		if err := w.readMarkers(df); err != nil {
			return nil, nil, err
		}
		if err := w.readJournal(df); err != nil {
			return nil, nil, err
		}
	}

	w.resolveMarkers(df)
	w.finalizeEncoding(df)

	it := newSampleIterator(df)
	return df, it, nil
}

// peekRevision reads the Length and FileRevision fields of the Graph
// Header directly (bypassing the schema, which would need FileRevision
// to know how to gate its own trailing version-conditional fields),
// then rewinds so the real decode starts from the top.
func (w *walker) peekRevision() (int, error) {
	if _, err := w.br.ReadU32(); err != nil { // Length
		return 0, errors.Wrap(err, "reading graph header length")
	}
	rev, err := w.br.ReadI32() // FileRevision
	if err != nil {
		return 0, errors.Wrap(err, "reading file revision")
	}
	if err := w.br.Seek(0); err != nil {
		return 0, errors.Wrap(err, "rewinding after file revision peek")
	}
	return int(rev), nil
}

// detectByteOrder tries both byte orders against the first 8 bytes of
// the source (Length + FileRevision) and picks whichever yields a
// file_revision in [30, 200] (§6). If both do, little-endian wins,
// since AcqKnowledge files are little-endian far more often in the
// wild than big-endian ones.
func detectByteOrder(src Source) (binary.ByteOrder, error) {
	var buf [8]byte
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, newErr(KindSeekError, 0, "could not seek to start of source", err)
	}
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return nil, newErr(KindInsufficientData, 0, "could not read file header magic", err)
	}
	for _, order := range [...]binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		rev := int32(order.Uint32(buf[4:8]))
		if rev >= minRevisionMagic && rev <= maxRevisionMagic {
			if _, err := src.Seek(0, io.SeekStart); err != nil {
				return nil, newErr(KindSeekError, 0, "could not rewind after byte-order detection", err)
			}
			return order, nil
		}
	}
	return nil, newErr(KindUnsupportedRevision, 0, "no byte order yields a plausible file_revision in [30,200]", nil)
}

func (w *walker) readChannels(df *Datafile, channelCount int) error {
	df.Channels = make([]*Channel, channelCount)
	for i := 0; i < channelCount; i++ {
		rec, err := header.Decode(w.br, header.ChannelSchema, w.rev)
		if err != nil {
			return errors.Wrapf(err, "decoding channel header %d", i)
		}
		dtype := Int16
		size := 2
		if rec.Uint("DataType") == 2 {
			dtype = Float64
			size = 8
		}
		ch := &Channel{
			OrderNum:         int32(rec.Int("OrderNum")),
			Name:             rec.Str("Name"),
			Units:            rec.Str("Units"),
			FrequencyDivider: int(rec.Uint("FrequencyDivider")),
			Dtype:            dtype,
			SampleSizeBytes:  size,
			PointCount:       int(rec.Uint("PointCount")),
			Scale:            rec.Float("Scale"),
			Offset:           rec.Float("Offset"),
		}
		if ch.FrequencyDivider <= 0 {
			ch.FrequencyDivider = 1
		}
		if dtype == Float64 {
			ch.Scale, ch.Offset = 1, 0
		}
		ch.SamplesPerSecond = df.SamplesPerSecond / float64(ch.FrequencyDivider)
		df.Channels[i] = ch
	}
	return nil
}

// readForeignAndDatatypes implements §4.2's Foreign Data Header
// robustness fix: the declared length of the block is tried first,
// and only if the bytes immediately after it don't look like a
// channel-datatype signature array does the walker fall back to
// scanning forward for one.
func (w *walker) readForeignAndDatatypes(df *Datafile, channelCount int) error {
	rec, err := header.Decode(w.br, header.ForeignDataSchema, w.rev)
	if err != nil {
		return errors.Wrap(err, "decoding foreign data header")
	}
	declared := rec.Int("Length")
	payloadStart := w.br.Tell()

	length := declared
	if declared < 0 || !w.validDatatypeSignatureAt(payloadStart+declared, channelCount) {
		found, ok := w.scanForDatatypeSignature(payloadStart, channelCount)
		if !ok {
			return newErr(KindForeignHeaderAmbiguous, payloadStart,
				"neither the declared foreign-data length nor a forward scan found a self-consistent channel-datatype array", nil)
		}
		length = found
	}

	if err := w.br.Seek(payloadStart); err != nil {
		return errors.Wrap(err, "seeking to foreign data payload")
	}
	raw, err := w.br.ReadFixed(int(length))
	if err != nil {
		return errors.Wrap(err, "reading foreign data payload")
	}
	df.Foreign = ForeignBlock{raw: raw}

	for i := 0; i < channelCount; i++ {
		rec, err := header.Decode(w.br, header.ChannelDatatypeSchema, w.rev)
		if err != nil {
			return errors.Wrapf(err, "decoding channel datatype entry %d", i)
		}
		_ = rec // decoded only to advance the cursor; the channel header's own DataType field is authoritative.
	}
	return nil
}

func (w *walker) validDatatypeSignatureAt(at int64, channelCount int) bool {
	if at < 0 {
		return false
	}
	save := w.br.Tell()
	defer w.br.Seek(save)
	if err := w.br.Seek(at); err != nil {
		return false
	}
	for i := 0; i < channelCount; i++ {
		dtype, err := w.br.ReadU8()
		if err != nil {
			return false
		}
		size, err := w.br.ReadU8()
		if err != nil {
			return false
		}
		if !validDtypeSize(dtype, size) {
			return false
		}
	}
	return true
}

func validDtypeSize(dtype, size uint8) bool {
	switch dtype {
	case 1:
		return size == 2
	case 2:
		return size == 8
	default:
		return false
	}
}

func (w *walker) scanForDatatypeSignature(payloadStart int64, channelCount int) (int64, bool) {
	max := int64(w.opts.ForeignScanMax)
	for off := int64(0); off < max; off++ {
		if w.validDatatypeSignatureAt(payloadStart+off, channelCount) {
			return off, true
		}
	}
	return 0, false
}

func (w *walker) readMarkers(df *Datafile) error {
	rec, err := header.Decode(w.br, header.MarkerSchema, w.rev)
	if err != nil {
		return errors.Wrap(err, "decoding marker block header")
	}
	count := int(rec.Uint("Count"))
	df.Markers = make([]*Marker, count)
	for i := 0; i < count; i++ {
		itemRec, err := header.Decode(w.br, header.MarkerItemSchema, w.rev)
		if err != nil {
			return errors.Wrapf(err, "decoding marker item %d", i)
		}
		m := &Marker{
			GlobalSampleIndex: itemRec.Int("GlobalSampleIndex"),
			Label:             itemRec.Str("Label"),
			ChannelNumber:     int32(itemRec.Int("ChannelNumber")),
			df:                df,
		}
		copy(m.TypeCode[:], itemRec.Bytes("TypeCode"))
		copy(m.Style[:], itemRec.Bytes("Style"))
		m.Type = markerTypeName(m.TypeCode)
		if ts, ok := itemRec.Fields["CreatedAt"]; ok {
			sec := int64(0)
			switch v := ts.(type) {
			case uint32:
				sec = int64(v)
			}
			if sec > 0 {
				t := time.Unix(sec, 0).UTC()
				m.CreatedAt = &t
			}
		}
		df.Markers[i] = m
	}

	postRec, err := header.Decode(w.br, header.PostMarkerSchema, w.rev)
	if err != nil {
		return errors.Wrap(err, "decoding post-marker header")
	}
	_ = postRec // semantics unknown (§9); decoded only to advance past its declared length.
	return nil
}

func (w *walker) readJournal(df *Datafile) error {
	rec, err := header.Decode(w.br, header.JournalHeaderSchema, w.rev)
	if err != nil {
		return errors.Wrap(err, "decoding journal header")
	}
	df.Journal.Header = rec.Fields
	textLen := int(rec.Uint("TextLength"))
	raw, err := w.br.ReadFixed(textLen)
	if err != nil {
		return errors.Wrap(err, "reading journal text")
	}
	df.Journal.Text = decodeText(raw)
	return nil
}

func (w *walker) readCompressionHeaders(df *Datafile, channelCount int) error {
	df.compressedSegments = make([]compressedSegment, channelCount)
	for i := 0; i < channelCount; i++ {
		rec, err := header.Decode(w.br, header.ChannelCompressionSchema, w.rev)
		if err != nil {
			return errors.Wrapf(err, "decoding channel compression header %d", i)
		}
		orderNum := int32(rec.Int("OrderNum"))
		idx := i
		if ch := df.ChannelByOrderNum(orderNum); ch != nil {
			for j, c := range df.Channels {
				if c == ch {
					idx = j
					break
				}
			}
		}
		length := rec.Int("CompressedDataLen")
		df.compressedSegments[idx] = compressedSegment{offset: w.br.Tell(), length: length}
		if err := w.br.Skip(length); err != nil {
			return errors.Wrapf(err, "skipping compressed payload for channel %d", i)
		}
	}
	return nil
}

// resolveMarkers attaches InvariantViolation warnings for markers
// whose channel_number resolves to nothing, and derives
// EarliestMarkerCreatedAt (§3 Marker, §7).
func (w *walker) resolveMarkers(df *Datafile) {
	var earliest *time.Time
	for _, m := range df.Markers {
		if m.ChannelNumber >= 0 && df.ChannelByOrderNum(m.ChannelNumber) == nil {
			df.warn(KindInvariantViolation, -1, fmt.Sprintf("marker references channel_number %d, which matches no channel", m.ChannelNumber))
		}
		if m.CreatedAt != nil && (earliest == nil || m.CreatedAt.Before(*earliest)) {
			earliest = m.CreatedAt
		}
	}
	df.EarliestMarkerCreatedAt = earliest
}

func (w *walker) finalizeEncoding(df *Datafile) {
	used := w.br.encodingsUsed()
	switch {
	case len(used) == 0:
		df.Encoding = "utf-8"
	case len(used) == 1:
		df.Encoding = used[0]
	default:
		// More than one candidate was needed across the file's
		// strings; report the most specific (least-common) one, since
		// utf-8 is the default and a reader only cares when something
		// fell back.
		for _, name := range used {
			if name != "utf-8" {
				df.Encoding = name
				break
			}
		}
	}
}

var markerTypeCodeNames = map[[4]byte]string{
	{'u', 's', 'e', 'r'}: "user",
	{'a', 'p', 'n', 'd'}: "append",
	{'e', 'r', 'r', 'o'}: "error",
}

func markerTypeName(code [4]byte) string {
	if name, ok := markerTypeCodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("%#v", code)
}
