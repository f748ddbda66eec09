package taf

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

const maxPlausibleChunkCount = 1000

// LoadFromFileSafe loads and fully validates a TAF file following the
// §4.2 load algorithm. The file is memory-mapped read-only (the format is
// explicitly designed to be memory-mappable), parsed, and every chunk's
// CRC32 is verified before any payload is handed back to the caller — a
// ChecksumError invalidates the entire load, never just one chunk.
func LoadFromFileSafe(path string, opts *Options) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrRead, "open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(ErrRead, "stat %s: %v", path, err)
	}
	fileSize := uint64(info.Size())

	if fileSize < headerSize {
		return nil, errors.Wrapf(ErrValidation, "%s smaller than header (%d < %d)", path, fileSize, headerSize)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(ErrRead, "mmap %s: %v", path, err)
	}
	defer data.Unmap()

	header := unmarshalHeader(data[:headerSize])
	if err := validateHeader(header, fileSize, data); err != nil {
		return nil, err
	}

	logger := opts.logger()
	logger.Debug().Str("path", path).Uint32("chunks", header.ChunkCount).Msg("taf: header validated")

	directory := make([]DirectoryEntry, header.ChunkCount)
	cursor := uint64(headerSize)
	for i := range directory {
		if cursor+directoryEntrySize > fileSize {
			return nil, errors.Wrapf(ErrValidation, "directory entry %d extends past file size", i)
		}
		entry := unmarshalDirectoryEntry(data[cursor : cursor+directoryEntrySize])
		if entry.Offset >= fileSize || entry.Offset+entry.Size > fileSize {
			return nil, errors.Wrapf(ErrValidation,
				"chunk %s (%q): offset %d size %d out of bounds for file size %d",
				entry.Tag, fixedString(entry.Name[:]), entry.Offset, entry.Size, fileSize)
		}
		directory[i] = entry
		cursor += directoryEntrySize
	}

	payloads := make(map[ChunkTag][]byte, len(directory))
	names := make(map[ChunkTag]string, len(directory))
	for _, e := range directory {
		raw := data[e.Offset : e.Offset+e.Size]
		got := checksum(raw)
		if got != e.CRC32 {
			return nil, errors.Wrapf(ErrChecksum,
				"chunk %s (%q) at offset %d: stored crc32 0x%08x, computed 0x%08x",
				e.Tag, fixedString(e.Name[:]), e.Offset, e.CRC32, got)
		}
		payload := make([]byte, len(raw))
		copy(payload, raw)
		payloads[e.Tag] = payload
		names[e.Tag] = fixedString(e.Name[:])
	}

	return &Asset{
		header:    header,
		directory: directory,
		payloads:  payloads,
		names:     names,
		opts:      opts,
	}, nil
}

// validateHeader checks the §4.2 load-time header invariants: magic,
// plausible version, plausible chunk count, and total_size == file size.
// On any failure it returns a ValidationError carrying a hex dump of the
// first 16 bytes, per §7.
func validateHeader(h Header, fileSize uint64, data []byte) error {
	if h.Magic != MagicMaster {
		return errors.Wrapf(ErrValidation, "magic mismatch: %x (first 16 bytes: % x)", h.Magic, first16(data))
	}
	if !h.Version.plausible() {
		return errors.Wrapf(ErrValidation, "implausible version %d.%d.%d (first 16 bytes: % x)",
			h.Version.Major, h.Version.Minor, h.Version.Patch, first16(data))
	}
	if h.ChunkCount > maxPlausibleChunkCount {
		return errors.Wrapf(ErrValidation, "implausible chunk count %d (first 16 bytes: % x)", h.ChunkCount, first16(data))
	}
	if h.TotalSize != fileSize {
		return errors.Wrapf(ErrValidation, "header total_size %d != file size %d (first 16 bytes: % x)",
			h.TotalSize, fileSize, first16(data))
	}
	return nil
}

func first16(data []byte) []byte {
	n := 16
	if len(data) < n {
		n = len(data)
	}
	return data[:n]
}
