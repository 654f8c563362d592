/*
NAME
  decode.go

DESCRIPTION
  decode.go implements the header decoder (§4.2, component C): given a
  Schema and a Reader, it produces an attribute bag, tracks consumed
  bytes, and tolerates trailing unknown bytes when a header's declared
  length exceeds what its known fields account for.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package header

import "fmt"

// Reader is the subset of the core byte reader the decoder needs. It
// is satisfied by the acq package's unexported byteReader.
type Reader interface {
	ReadU8() (uint8, error)
	ReadI8() (int8, error)
	ReadU16() (uint16, error)
	ReadI16() (int16, error)
	ReadU32() (uint32, error)
	ReadI32() (int32, error)
	ReadU64() (uint64, error)
	ReadI64() (int64, error)
	ReadF32() (float32, error)
	ReadF64() (float64, error)
	ReadPString(lenWidth int) (string, error)
	ReadFixed(n int) ([]byte, error)
	Tell() int64
}

// Record is the decoded attribute bag for one header, plus bookkeeping
// about how many bytes were consumed and any trailing bytes that fell
// outside the fields the schema knows about.
type Record struct {
	Kind            Kind
	Fields          map[string]any
	Consumed        int64
	TrailingUnknown []byte
}

func (r *Record) Uint(name string) uint64 {
	switch v := r.Fields[name].(type) {
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case int8:
		return uint64(v)
	case int16:
		return uint64(v)
	case int32:
		return uint64(v)
	case int64:
		return uint64(v)
	default:
		return 0
	}
}

func (r *Record) Int(name string) int64 {
	switch v := r.Fields[name].(type) {
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

func (r *Record) Float(name string) float64 {
	switch v := r.Fields[name].(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

func (r *Record) Str(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

func (r *Record) Bytes(name string) []byte {
	b, _ := r.Fields[name].([]byte)
	return b
}

// Decode reads one header according to schema, gated at file_revision
// rev, advancing r by however many bytes the schema's own declared
// length says the header occupies.
func Decode(r Reader, s Schema, rev int) (*Record, error) {
	start := r.Tell()
	fields := make(map[string]any, len(s.Fields))

	for _, f := range s.Fields {
		if !f.Present(rev) {
			continue
		}
		val, err := readField(r, f)
		if err != nil {
			return nil, fmt.Errorf("decoding field %q of header kind %d: %w", f.Name, s.Kind, err)
		}
		if f.Type != Skip {
			fields[f.Name] = val
		}
	}

	rec := &Record{Kind: s.Kind, Fields: fields, Consumed: r.Tell() - start}

	if s.LengthField != "" {
		declared := rec.Int(s.LengthField)
		if declared > rec.Consumed {
			extra := declared - rec.Consumed
			trailing, err := r.ReadFixed(int(extra))
			if err != nil {
				return nil, fmt.Errorf("skipping trailing unknown bytes of header kind %d: %w", s.Kind, err)
			}
			rec.TrailingUnknown = trailing
			rec.Consumed += extra
		}
	}

	return rec, nil
}

func readField(r Reader, f Field) (any, error) {
	switch f.Type {
	case U8:
		return r.ReadU8()
	case I8:
		return r.ReadI8()
	case U16:
		return r.ReadU16()
	case I16:
		return r.ReadI16()
	case U32:
		return r.ReadU32()
	case I32:
		return r.ReadI32()
	case U64:
		return r.ReadU64()
	case I64:
		return r.ReadI64()
	case F32:
		return r.ReadF32()
	case F64:
		return r.ReadF64()
	case PString1:
		return r.ReadPString(1)
	case PString2:
		return r.ReadPString(2)
	case PString4:
		return r.ReadPString(4)
	case Fixed:
		return r.ReadFixed(f.Len)
	case Skip:
		return r.ReadFixed(f.Len)
	default:
		return nil, fmt.Errorf("unknown field type %d for field %q", f.Type, f.Name)
	}
}
