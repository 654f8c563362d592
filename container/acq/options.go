/*
NAME
  options.go

DESCRIPTION
  options.go holds the tunables for opening an AcqKnowledge file:
  streaming chunk size, the scan window for the Foreign Data Header
  recovery heuristic, and the logger to use.

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

import "github.com/ausocean/utils/logging"

// Options are the tunables for ReadFile/OpenFile/Read/Open.
type Options struct {
	// ChunkSize is the number of raw interleaved samples read per
	// streaming chunk. Default 1<<20 (§4.3).
	ChunkSize int

	// ForeignScanMax bounds the forward scan used by the Foreign Data
	// Header "weird-length" recovery strategy (§4.2). Default 1<<20.
	ForeignScanMax int

	// Logger receives Debug/Warning/Error messages during the walk.
	// If nil, a discard logger is used.
	Logger logging.Logger
}

// DefaultOptions returns the default Options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      1 << 20,
		ForeignScanMax: 1 << 20,
	}
}

// Option mutates an Options in place.
type Option func(*Options)

// WithChunkSize sets the streaming chunk size.
func WithChunkSize(n int) Option {
	return func(o *Options) { o.ChunkSize = n }
}

// WithForeignScanMax sets the Foreign Data Header recovery scan bound.
func WithForeignScanMax(n int) Option {
	return func(o *Options) { o.ForeignScanMax = n }
}

// WithLogger sets the logger used during the walk.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
