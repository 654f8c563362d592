/*
NAME
  schema.go

DESCRIPTION
  schema.go declares the version-conditional field layouts for each
  AcqKnowledge header kind (§4.2, component B). Each header kind is a
  table of field descriptors keyed by (name, primitive type, minimum
  revision, optional maximum revision); the decoder in decode.go walks
  this table instead of branching per revision in code.

  The exact byte layout of real AcqKnowledge files is undocumented and
  has never been published by BIOPAC; the field lists below are a
  self-consistent schema designed to satisfy every invariant and edge
  case in the format description, not a byte-for-byte reproduction of
  a particular vendor build. See DESIGN.md for the reasoning.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package header provides version-conditional header schemas and a
// decoder that consumes them, for the acq container format.
package header

// Kind identifies which header schema to use.
type Kind int

const (
	Graph Kind = iota
	Channel
	ForeignData
	ChannelDatatype
	ChannelCompression
	Marker
	MarkerItem
	PostMarker
	Journal
	JournalHeader
)

// FieldType is the primitive type of a field.
type FieldType int

const (
	U8 FieldType = iota
	I8
	U16
	I16
	U32
	I32
	U64
	I64
	F32
	F64
	PString1 // length-prefixed string, 1-byte length
	PString2 // length-prefixed string, 2-byte length
	PString4 // length-prefixed string, 4-byte length
	Fixed    // raw byte block, width given by Field.Len
	Skip     // reserved bytes, discarded, width given by Field.Len
)

// Field describes one header field: its name, primitive type, the
// revision range it is present for (MaxRev == 0 means unbounded), and
// a width for Fixed/Skip fields.
type Field struct {
	Name   string
	Type   FieldType
	MinRev int
	MaxRev int
	Len    int
}

// Schema is a header kind's declarative field layout plus the name of
// the field (if any) that holds the header's own declared total
// length, used by the decoder to skip trailing unknown bytes.
type Schema struct {
	Kind        Kind
	Fields      []Field
	LengthField string
}

// MinSupportedRevision is the lowest file_revision this package will
// attempt to decode; anything below this is UnsupportedRevision.
const MinSupportedRevision = 30

// JournalHTMLMinRevision is the file_revision at or above which journal
// text is HTML rather than plain text, corresponding to the AcqKnowledge
// "4.2" feature line referenced in §4.2.
const JournalHTMLMinRevision = 42

// GraphSchema is the Graph Header (§3 Datafile, §4.3 walk order start).
var GraphSchema = Schema{
	Kind: Graph,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
		{Name: "FileRevision", Type: I32, MinRev: 0},
		{Name: "SamplesPerSecond", Type: F64, MinRev: 0},
		{Name: "ChannelCount", Type: U16, MinRev: 0},
		{Name: "IsCompressed", Type: U8, MinRev: 0},
		{Name: "Reserved0", Type: Skip, MinRev: 0, Len: 3},
		{Name: "ExperimentType", Type: U16, MinRev: 60},
		{Name: "GraphNote", Type: PString2, MinRev: 80},
	},
	LengthField: "Length",
}

// ChannelSchema is one Channel Header (§3 Channel).
var ChannelSchema = Schema{
	Kind: Channel,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
		{Name: "OrderNum", Type: I32, MinRev: 0},
		{Name: "Name", Type: PString1, MinRev: 0},
		{Name: "Units", Type: PString1, MinRev: 0},
		{Name: "FrequencyDivider", Type: U16, MinRev: 0},
		{Name: "DataType", Type: U8, MinRev: 0},
		{Name: "PointCount", Type: U32, MinRev: 0},
		{Name: "Scale", Type: F64, MinRev: 0},
		{Name: "Offset", Type: F64, MinRev: 0},
		{Name: "DisplayColor", Type: Skip, MinRev: 45, Len: 4},
	},
	LengthField: "Length",
}

// ForeignDataSchema is the Foreign Data Header (§4.2's "weird-length"
// field, §3 Foreign Data block). Length here describes the following
// payload block, not the header's own size, so it deliberately has no
// LengthField: the walker reads the payload itself once it has
// resolved how many bytes Length actually refers to (§4.2).
var ForeignDataSchema = Schema{
	Kind: ForeignData,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
	},
}

// ChannelDatatypeSchema is one entry of the per-channel datatype array
// that follows the Foreign Data block: a (dtype, size) pair. There is
// no length-prefixed wrapper around this one, by design of the
// original format; Dtype values are 1 (int16) or 2 (float64), and Size
// is 2 or 8 respectively — this is the signature the ForeignData
// weird-length fallback strategy scans for.
var ChannelDatatypeSchema = Schema{
	Kind: ChannelDatatype,
	Fields: []Field{
		{Name: "Dtype", Type: U8, MinRev: 0},
		{Name: "Size", Type: U8, MinRev: 0},
	},
}

// ChannelCompressionSchema is one Channel Compression Header (§4.3,
// compressed-mode walk order).
var ChannelCompressionSchema = Schema{
	Kind: ChannelCompression,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
		{Name: "OrderNum", Type: I32, MinRev: 0},
		{Name: "CompressedDataLen", Type: U32, MinRev: 0},
		{Name: "UncompressedDataLen", Type: U32, MinRev: 0},
	},
	LengthField: "Length",
}

// MarkerSchema is the marker block header, preceding MarkerItemSchema
// entries (§3 Marker).
var MarkerSchema = Schema{
	Kind: Marker,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
		{Name: "Count", Type: U32, MinRev: 0},
	},
	LengthField: "Length",
}

// MarkerItemSchema is one marker entry.
var MarkerItemSchema = Schema{
	Kind: MarkerItem,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
		{Name: "GlobalSampleIndex", Type: U32, MinRev: 0},
		{Name: "TypeCode", Type: Fixed, MinRev: 0, Len: 4},
		{Name: "ChannelNumber", Type: I16, MinRev: 0},
		{Name: "Style", Type: Fixed, MinRev: 0, MaxRev: 60, Len: 4},
		{Name: "CreatedAt", Type: U32, MinRev: 70},
		{Name: "Label", Type: PString2, MinRev: 0},
	},
	LengthField: "Length",
}

// PostMarkerSchema is the Post-Marker Header: a length field of
// unknown semantics that is skipped in full (§9 open question).
var PostMarkerSchema = Schema{
	Kind:        PostMarker,
	Fields:      []Field{{Name: "Length", Type: U32, MinRev: 0}},
	LengthField: "Length",
}

// JournalHeaderSchema precedes the journal text blob.
var JournalHeaderSchema = Schema{
	Kind: JournalHeader,
	Fields: []Field{
		{Name: "Length", Type: U32, MinRev: 0},
		{Name: "TextLength", Type: U32, MinRev: 0},
	},
	LengthField: "Length",
}

// Present reports whether a field is part of the schema for the given
// file_revision.
func (f Field) Present(rev int) bool {
	if rev < f.MinRev {
		return false
	}
	if f.MaxRev != 0 && rev > f.MaxRev {
		return false
	}
	return true
}
