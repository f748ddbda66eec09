package taf

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SaveToFile serializes the asset to path following the §4.2 save
// algorithm:
//  1. assert chunk_count == len(directory) == len(payloads);
//  2. compute data_start = header_size + len(directory)*entry_size;
//  3. assign offsets in directory order, set header.total_size;
//  4. write header, directory, then payloads, verifying the stream
//     position after each write;
//  5. if a payload is a shader chunk, log (never fail on) SPIR-V magic
//     sanity at offset header + 2 descriptors (see logShaderMagicSanity).
func (a *Asset) SaveToFile(path string) error {
	if int(a.header.ChunkCount) != len(a.directory) || len(a.directory) != len(a.payloads) {
		return errors.Wrapf(ErrIntegrity, "chunk_count=%d directory=%d payloads=%d",
			a.header.ChunkCount, len(a.directory), len(a.payloads))
	}

	dataStart := uint64(headerSize) + uint64(len(a.directory))*directoryEntrySize
	offset := dataStart
	laidOut := make([]DirectoryEntry, len(a.directory))
	for i, e := range a.directory {
		e.Offset = offset
		laidOut[i] = e
		offset += e.Size
	}
	a.header.TotalSize = offset
	a.header.ChunkCount = uint32(len(laidOut))

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(ErrWrite, "open %s for write: %v", path, err)
	}
	defer f.Close()

	written := uint64(0)
	n, err := f.Write(a.header.marshal())
	if err != nil {
		return errors.Wrapf(ErrWrite, "write header: %v", err)
	}
	written += uint64(n)
	if written != headerSize {
		return errors.Wrapf(ErrWrite, "header write position drift: wrote %d want %d", written, headerSize)
	}

	for _, e := range laidOut {
		n, err = f.Write(e.marshal())
		if err != nil {
			return errors.Wrapf(ErrWrite, "write directory entry %s: %v", e.Tag, err)
		}
		written += uint64(n)
	}
	if written != dataStart {
		return errors.Wrapf(ErrWrite, "directory write position drift: wrote %d want %d", written, dataStart)
	}

	logger := a.opts.logger()
	for _, e := range laidOut {
		payload := a.payloads[e.Tag]
		n, err = f.Write(payload)
		if err != nil {
			return errors.Wrapf(ErrWrite, "write chunk %s (%q): %v", e.Tag, a.names[e.Tag], err)
		}
		written += uint64(n)
		if written != e.Offset+e.Size {
			return errors.Wrapf(ErrWrite, "chunk %s write position drift: at %d want %d", e.Tag, written, e.Offset+e.Size)
		}

		if e.Tag == ChunkShader {
			logShaderMagicSanity(logger, e, payload)
		}
	}

	if written != a.header.TotalSize {
		return errors.Wrapf(ErrWrite, "final write position drift: wrote %d want %d", written, a.header.TotalSize)
	}

	a.directory = laidOut
	return nil
}

// logShaderMagicSanity is a diagnostic-only check: it never fails Save,
// it only logs whether the word at shaderHeaderSize+2*shaderDescriptorSize
// is the SPIR-V magic. That offset is the first blob's start only when the
// payload declares exactly two shaders; the declared count is not read.
func logShaderMagicSanity(logger zerolog.Logger, e DirectoryEntry, payload []byte) {
	blobOffset := shaderHeaderSize + 2*shaderDescriptorSize
	if blobOffset+4 > len(payload) {
		logger.Warn().Str("chunk", e.Tag.String()).Msg("shader chunk too small to contain a SPIR-V blob at the expected offset")
		return
	}
	magic := littleEndianUint32(payload[blobOffset:])
	if magic != spirvMagic {
		logger.Warn().Str("chunk", e.Tag.String()).Uint32("magic", magic).Msg("shader chunk's first SPIR-V blob has an unexpected magic word")
	} else {
		logger.Debug().Str("chunk", e.Tag.String()).Msg("shader chunk's first SPIR-V blob magic verified")
	}
}
