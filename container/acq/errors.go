/*
NAME
  errors.go

DESCRIPTION
  errors.go defines the error taxonomy for the acq package: the kinds
  of failure a caller needs to distinguish between, and the warnings
  that are recovered from rather than propagated.

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

import "fmt"

// Kind identifies a class of failure a caller may want to branch on.
type Kind int

const (
	// KindInsufficientData indicates the source ended mid-field.
	KindInsufficientData Kind = iota

	// KindSeekError indicates a seek was required but the source does
	// not support it, or the seek target is invalid.
	KindSeekError

	// KindUnsupportedRevision indicates file_revision is below the
	// minimum this package knows how to decode, or that neither byte
	// order yields a file_revision in [30, 200].
	KindUnsupportedRevision

	// KindForeignHeaderAmbiguous indicates both Foreign Data Header
	// recovery strategies failed to produce a self-consistent parse.
	KindForeignHeaderAmbiguous

	// KindChecksumOrInflate indicates zlib decompression failed for a
	// compressed channel segment.
	KindChecksumOrInflate

	// KindInvariantViolation indicates a recoverable structural
	// inconsistency, such as a marker referencing a channel order_num
	// that does not exist. Those found while walking a file are
	// attached to Datafile.Warnings, not returned as a fatal error. The
	// SampleIterator does return this kind as an error when a call does
	// not fit the Datafile: Stream on a compressed file, a channel that
	// is not in the file, or a missing compressed segment.
	KindInvariantViolation

	// KindEncodingFailure indicates no candidate text encoding decoded
	// a string losslessly. A lossy decode is used and a warning is
	// attached.
	KindEncodingFailure
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientData:
		return "insufficient data"
	case KindSeekError:
		return "seek error"
	case KindUnsupportedRevision:
		return "unsupported revision"
	case KindForeignHeaderAmbiguous:
		return "foreign header ambiguous"
	case KindChecksumOrInflate:
		return "checksum or inflate error"
	case KindInvariantViolation:
		return "invariant violation"
	case KindEncodingFailure:
		return "encoding failure"
	default:
		return "unknown"
	}
}

// Error is the fatal error type returned from the public API. Offset is
// the byte offset into the source at which the failure was detected,
// or -1 if not applicable.
type Error struct {
	Kind   Kind
	Offset int64
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("acq: %s at offset %d: %s", e.Kind, e.Offset, e.Msg)
	}
	return fmt.Sprintf("acq: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, off int64, msg string, cause error) *Error {
	return &Error{Kind: kind, Offset: off, Msg: msg, Cause: cause}
}

// Warning is a recovered, non-fatal problem attached to a Datafile so
// that the rest of the file can still be reported.
type Warning struct {
	Kind    Kind
	Offset  int64
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s at offset %d: %s", w.Kind, w.Offset, w.Message)
}
