package taf

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// ChunkedWriter is a two-pass writer for streaming-oriented TAF files:
// chunks are accepted in any order with placeholder offsets, and the
// real offsets, header and directory are computed only at Finalize.
//
// Per the buffering vs. stream-and-rewrite choice left open by the
// source this format was distilled from, ChunkedWriter buffers payload
// bytes internally until Finalize — the only approach that produces a
// valid file without a second pass over an already-written data
// section.
type ChunkedWriter struct {
	path      string
	directory []DirectoryEntry
	payloads  [][]byte
	names     []string

	headerWritten bool
	opts          *Options
}

// Begin opens a writer targeting path. No bytes are written to disk
// until Finalize.
func Begin(path string, opts *Options) *ChunkedWriter {
	return &ChunkedWriter{path: path, opts: opts}
}

// AddMetadataChunk appends a directory entry for a non-audio chunk
// (geometry, shader, material, font, ...) under tag, with a placeholder
// offset of zero.
func (w *ChunkedWriter) AddMetadataChunk(tag ChunkTag, payload []byte, name string) error {
	return w.addChunk(tag, payload, name)
}

// AddAudioChunk appends a directory entry for one streaming-audio chunk.
// index distinguishes multiple audio chunks sharing the AUDI tag by
// giving each a distinct directory name.
func (w *ChunkedWriter) AddAudioChunk(payload []byte, index int) error {
	return w.addChunk(ChunkAudio, payload, audioChunkName(index))
}

func audioChunkName(index int) string {
	return "audio_chunk_" + strconv.Itoa(index)
}

func (w *ChunkedWriter) addChunk(tag ChunkTag, payload []byte, name string) error {
	if w.headerWritten {
		return errors.Wrapf(ErrOperation, "cannot add chunks after finalize")
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)

	w.directory = append(w.directory, DirectoryEntry{
		Tag:   tag,
		Size:  uint64(len(stored)),
		CRC32: checksum(stored),
		Name:  nameField(name),
	})
	w.payloads = append(w.payloads, stored)
	w.names = append(w.names, name)
	return nil
}

// Finalize computes final offsets by rolling current_offset through
// each entry, builds a header with FeatureChunkStreaming set, and writes
// header + directory + buffered payloads in one pass. Re-entry is
// rejected: Finalize is idempotent-guarded by the headerWritten latch.
func (w *ChunkedWriter) Finalize() error {
	if w.headerWritten {
		return errors.Wrapf(ErrOperation, "finalize already called for %s", w.path)
	}

	header := newMasterHeader()
	header.FeatureFlags |= uint64(FeatureChunkStreaming)
	header.ChunkCount = uint32(len(w.directory))

	dataStart := uint64(headerSize) + uint64(len(w.directory))*directoryEntrySize
	offset := dataStart
	for i := range w.directory {
		w.directory[i].Offset = offset
		offset += w.directory[i].Size
	}
	header.TotalSize = offset

	f, err := os.Create(w.path)
	if err != nil {
		return errors.Wrapf(ErrWrite, "open %s for write: %v", w.path, err)
	}
	defer f.Close()

	written := uint64(0)
	n, err := f.Write(header.marshal())
	if err != nil {
		return errors.Wrapf(ErrWrite, "write header: %v", err)
	}
	written += uint64(n)
	if written != headerSize {
		return errors.Wrapf(ErrWrite, "header write position drift: wrote %d want %d", written, headerSize)
	}

	for _, e := range w.directory {
		n, err = f.Write(e.marshal())
		if err != nil {
			return errors.Wrapf(ErrWrite, "write directory entry %s: %v", e.Tag, err)
		}
		written += uint64(n)
	}
	if written != dataStart {
		return errors.Wrapf(ErrWrite, "directory write position drift: wrote %d want %d", written, dataStart)
	}

	for i, e := range w.directory {
		n, err = f.Write(w.payloads[i])
		if err != nil {
			return errors.Wrapf(ErrWrite, "write chunk %s (%q): %v", e.Tag, w.names[i], err)
		}
		written += uint64(n)
		if written != e.Offset+e.Size {
			return errors.Wrapf(ErrWrite, "chunk %s write position drift: at %d want %d", e.Tag, written, e.Offset+e.Size)
		}
	}

	if written != header.TotalSize {
		return errors.Wrapf(ErrWrite, "final write position drift: wrote %d want %d", written, header.TotalSize)
	}

	w.headerWritten = true
	w.opts.logger().Debug().Str("path", w.path).Int("chunks", len(w.directory)).Msg("taf: chunked writer finalized")
	return nil
}
