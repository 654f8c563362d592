/*
NAME
  acq_test.go

DESCRIPTION
  acq_test.go tests reading synthetic AcqKnowledge files end to end:
  uncompressed and compressed data, markers, journal, byte order,
  Foreign Data Header recovery, text encoding and streaming.

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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
)

func deflateForTest(raw []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestReadUncompressedSingleChannel(t *testing.T) {
	ch := fixtureChannel{
		orderNum: 0, name: "EDA", units: "uS",
		freqDiv: 1, dataType: 1, pointCount: 4,
		scale: 0.5, offset: 1,
		i16: []int16{10, 20, 30, 40},
	}
	raw := buildUncompressedFixture(fixtureOpts{
		order: binary.LittleEndian, rev: 85, samplesPerS: 100,
		journal: "",
	}, []fixtureChannel{ch})

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if df.FileRevision != 85 {
		t.Errorf("got FileRevision=%d, want 85", df.FileRevision)
	}
	if len(df.Channels) != 1 {
		t.Fatalf("got %d channels, want 1", len(df.Channels))
	}
	got := df.Channels[0].Data()
	want := []float64{6, 11, 16, 21} // raw*0.5 + 1
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected channel data (-want +got):\n%s", diff)
	}
}

func TestReadUncompressedMixedFrequency(t *testing.T) {
	chans := []fixtureChannel{
		{orderNum: 0, name: "ECG", units: "mV", freqDiv: 1, dataType: 1, pointCount: 21, scale: 1, offset: 0, i16: seqI16(21)},
		{orderNum: 1, name: "Resp", units: "L", freqDiv: 4, dataType: 1, pointCount: 5, scale: 1, offset: 0, i16: seqI16(5)},
	}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 85, samplesPerS: 400}, chans)

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if df.Channels[0].Len() != 21 || df.Channels[1].Len() != 5 {
		t.Fatalf("got lens %d,%d, want 21,5", df.Channels[0].Len(), df.Channels[1].Len())
	}
	if df.Channels[1].SamplesPerSecond != 100 {
		t.Errorf("got channel 1 samples_per_second=%v, want 100", df.Channels[1].SamplesPerSecond)
	}
}

func TestReadCompressed(t *testing.T) {
	ch := fixtureChannel{
		orderNum: 3, name: "PPG", units: "V",
		freqDiv: 1, dataType: 2, pointCount: 3,
		scale: 1, offset: 0,
		f64: []float64{1.5, -2.25, 3.0},
	}
	raw := buildCompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 85, samplesPerS: 50}, []fixtureChannel{ch}, deflateForTest)

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if !df.IsCompressed {
		t.Fatal("expected IsCompressed true")
	}
	got := df.Channels[0].Data()
	want := []float64{1.5, -2.25, 3.0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected decompressed channel data (-want +got):\n%s", diff)
	}
}

func TestMarkerResolution(t *testing.T) {
	chans := []fixtureChannel{
		{orderNum: 7, name: "ECG", units: "mV", freqDiv: 1, dataType: 1, pointCount: 2, scale: 1, offset: 0, i16: []int16{1, 2}},
	}
	markers := []fixtureMarker{
		{globalSampleIndex: 1, typeCode: [4]byte{'u', 's', 'e', 'r'}, channelNumber: 7, createdAt: 1000, label: "beat"},
		{globalSampleIndex: 0, typeCode: [4]byte{'u', 's', 'e', 'r'}, channelNumber: 99, createdAt: 500, label: "orphan"},
	}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 85, samplesPerS: 100, markers: markers}, chans)

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if len(df.Markers) != 2 {
		t.Fatalf("got %d markers, want 2", len(df.Markers))
	}
	if ch := df.Markers[0].Channel(); ch == nil || ch.OrderNum != 7 {
		t.Errorf("marker 0 should resolve to channel order_num 7")
	}
	if ch := df.Markers[1].Channel(); ch != nil {
		t.Errorf("marker 1 references a non-existent channel and should not resolve")
	}
	foundWarning := false
	for _, w := range df.Warnings {
		if w.Kind == KindInvariantViolation {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Error("expected an InvariantViolation warning for the unresolved marker")
	}
	if df.EarliestMarkerCreatedAt == nil || df.EarliestMarkerCreatedAt.Unix() != 500 {
		t.Errorf("got EarliestMarkerCreatedAt=%v, want unix 500", df.EarliestMarkerCreatedAt)
	}
}

func TestJournalText(t *testing.T) {
	chans := []fixtureChannel{{orderNum: 0, name: "C", units: "u", freqDiv: 1, dataType: 1, pointCount: 1, scale: 1, offset: 0, i16: []int16{1}}}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 85, samplesPerS: 10, journal: "subject fasted 8h"}, chans)

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if df.Journal.Text != "subject fasted 8h" {
		t.Errorf("got journal text %q, want %q", df.Journal.Text, "subject fasted 8h")
	}
}

func TestUnsupportedRevision(t *testing.T) {
	chans := []fixtureChannel{{orderNum: 0, name: "C", units: "u", freqDiv: 1, dataType: 1, pointCount: 1, scale: 1, offset: 0, i16: []int16{1}}}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 5, samplesPerS: 10}, chans)

	_, err := Read(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected an UnsupportedRevision error")
	}
	var acqErr *Error
	if !asError(err, &acqErr) || acqErr.Kind != KindUnsupportedRevision {
		t.Errorf("got %v, want a *Error with KindUnsupportedRevision", err)
	}
}

func TestByteOrderDetectionBigEndian(t *testing.T) {
	chans := []fixtureChannel{{orderNum: 0, name: "C", units: "u", freqDiv: 1, dataType: 1, pointCount: 2, scale: 1, offset: 0, i16: []int16{5, 6}}}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.BigEndian, rev: 85, samplesPerS: 10}, chans)

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()
	if df.ByteOrder != "big" {
		t.Errorf("got ByteOrder=%q, want \"big\"", df.ByteOrder)
	}
	if diff := cmp.Diff([]float64{5, 6}, df.Channels[0].Data()); diff != "" {
		t.Errorf("unexpected data decoded under big-endian (-want +got):\n%s", diff)
	}
}

func TestForeignHeaderWeirdLength(t *testing.T) {
	order := binary.LittleEndian
	e := newFixtureEncoder(order)
	e.graphHeader(85, 1, false, 100)
	e.channelHeader(85, fixtureChannel{orderNum: 0, name: "C", units: "u", freqDiv: 1, dataType: 1, pointCount: 1, scale: 1, offset: 0})

	// Deliberately declare the wrong foreign-data length (3, when the
	// real payload is 6 bytes of content that doesn't itself look like
	// a datatype signature), forcing the forward-scan recovery.
	payload := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	e.u32(3)
	e.raw(payload)
	e.channelDatatype(1, 2) // matches the one channel above

	e.i16(42) // the single uncompressed sample
	e.markerBlock(85, nil)
	e.journal("")

	df, err := Read(bytes.NewReader(e.buf.Bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if df.Foreign.Len() != len(payload) {
		t.Errorf("got foreign block len=%d, want %d (forward-scan should have recovered the true length)", df.Foreign.Len(), len(payload))
	}
	if diff := cmp.Diff([]float64{42}, df.Channels[0].Data()); diff != "" {
		t.Errorf("channel data misaligned after foreign header recovery (-want +got):\n%s", diff)
	}
}

func TestForeignHeaderAmbiguousFails(t *testing.T) {
	order := binary.LittleEndian
	e := newFixtureEncoder(order)
	e.graphHeader(85, 1, false, 100)
	e.channelHeader(85, fixtureChannel{orderNum: 0, name: "C", units: "u", freqDiv: 1, dataType: 1, pointCount: 1, scale: 1, offset: 0})
	// Wrong declared length, and nothing resembling a valid signature
	// anywhere in the scan window: both recovery strategies must fail.
	e.u32(1000)
	e.raw([]byte{0xFF, 0xFF})

	_, err := Read(bytes.NewReader(e.buf.Bytes()), WithForeignScanMax(16))
	if err == nil {
		t.Fatal("expected a ForeignHeaderAmbiguous error")
	}
	var acqErr *Error
	if !asError(err, &acqErr) || acqErr.Kind != KindForeignHeaderAmbiguous {
		t.Errorf("got %v, want a *Error with KindForeignHeaderAmbiguous", err)
	}
}

func TestTextEncodingFallback(t *testing.T) {
	chans := []fixtureChannel{
		// 0x92 alone is invalid UTF-8 but decodes losslessly under
		// windows-1252 (right single quotation mark).
		{orderNum: 0, name: "Vol\x92ts", units: "V", freqDiv: 1, dataType: 1, pointCount: 1, scale: 1, offset: 0, i16: []int16{1}},
	}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 85, samplesPerS: 10}, chans)

	df, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	defer df.Close()

	if df.Encoding != "windows-1252" {
		t.Errorf("got Encoding=%q, want \"windows-1252\"", df.Encoding)
	}
	for _, w := range df.Warnings {
		if w.Kind == KindEncodingFailure {
			t.Errorf("did not expect a lossy-decode warning: %v", w)
		}
	}
}

func TestOpenFileStreaming(t *testing.T) {
	chans := []fixtureChannel{
		{orderNum: 0, name: "A", units: "u", freqDiv: 1, dataType: 1, pointCount: 6, scale: 2, offset: 0, i16: seqI16(6)},
	}
	raw := buildUncompressedFixture(fixtureOpts{order: binary.LittleEndian, rev: 85, samplesPerS: 10}, chans)

	df, it, err := Open(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer df.Close()

	if df.Channels[0].Len() != 0 {
		t.Fatal("Open should not materialise sample data")
	}

	var total int
	err = it.StreamChannel(df.Channels[0], 2, func(samples []float64) error {
		total += len(samples)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChannel failed: %v", err)
	}
	if total != 6 {
		t.Errorf("got %d streamed samples, want 6", total)
	}
}

func seqI16(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i)
	}
	return out
}

// asError is a small errors.As wrapper kept local to avoid importing
// the standard errors package purely for this one assertion.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
