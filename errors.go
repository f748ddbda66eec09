package taf

import "errors"

// Sentinel errors per the §7 taxonomy. Call sites add file/offset/chunk
// context with github.com/pkg/errors.Wrapf so errors.Is still matches
// these sentinels after wrapping.
var (
	// ErrValidation covers header magic mismatch, implausible version or
	// chunk count, declared size mismatches, and out-of-bounds directory
	// entries.
	ErrValidation = errors.New("taf: validation error")

	// ErrIntegrity covers directory/payload-map/chunk-count disagreement
	// detected at save time.
	ErrIntegrity = errors.New("taf: integrity error")

	// ErrChecksum covers a CRC32 mismatch between a stored and a
	// recomputed checksum.
	ErrChecksum = errors.New("taf: checksum error")

	// ErrRead covers short reads, seek failures, and failure to open a
	// path for reading.
	ErrRead = errors.New("taf: read error")

	// ErrWrite covers offset drift during serialization and failure to
	// open a path for writing.
	ErrWrite = errors.New("taf: write error")

	// ErrOperation covers an overlay operation that targets a
	// nonexistent index, carries insufficient data, or would overrun a
	// payload.
	ErrOperation = errors.New("taf: operation error")

	// ErrNotFound covers load_chunk(name) when no chunk has that name.
	ErrNotFound = errors.New("taf: not found")
)
