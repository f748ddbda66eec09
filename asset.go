package taf

import "github.com/rs/zerolog"

// Options configures an Asset's I/O behavior. The zero value is valid:
// logging is a no-op and there is no registry-backed name resolution.
type Options struct {
	// Logger receives diagnostic events from Save/Load. It is never
	// consulted for correctness.
	Logger zerolog.Logger
}

func (o *Options) logger() zerolog.Logger {
	if o == nil {
		return zerolog.Nop()
	}
	return o.Logger
}

// Asset is an in-memory TAF container: a header plus an ordered chunk
// directory plus the chunk payloads themselves. Asset exclusively owns
// its payloads; nothing else may mutate the byte slices returned by
// GetChunkData without going through AddChunk again.
type Asset struct {
	header    Header
	directory []DirectoryEntry
	payloads  map[ChunkTag][]byte
	names     map[ChunkTag]string

	opts *Options
}

// New constructs an empty master asset: magic TAF!, version 1.0.0, zero
// feature flags, empty directory.
func New(opts *Options) *Asset {
	return &Asset{
		header:   newMasterHeader(),
		payloads: make(map[ChunkTag][]byte),
		names:    make(map[ChunkTag]string),
		opts:     opts,
	}
}

// SetCreator truncates s at 63 bytes and NUL-terminates it into the
// header's creator field.
func (a *Asset) SetCreator(s string) { setFixedString(a.header.Creator[:], s) }

// SetDescription truncates s at 127 bytes and NUL-terminates it into the
// header's description field.
func (a *Asset) SetDescription(s string) { setFixedString(a.header.Description[:], s) }

// Creator returns the header's creator string.
func (a *Asset) Creator() string { return fixedString(a.header.Creator[:]) }

// Description returns the header's description string.
func (a *Asset) Description() string { return fixedString(a.header.Description[:]) }

// SetFeatureFlags replaces the header's feature-flag bitmask wholesale.
func (a *Asset) SetFeatureFlags(flags uint64) { a.header.FeatureFlags = flags }

// FeatureFlags returns the header's current feature-flag bitmask.
func (a *Asset) FeatureFlags() uint64 { return a.header.FeatureFlags }

// HasFeature reports exact-mask membership: (flags & flag) == flag.
func (a *Asset) HasFeature(flag FeatureFlag) bool {
	return a.header.FeatureFlags&uint64(flag) == uint64(flag)
}

// SetBounds sets the header's quantized world bounds.
func (a *Asset) SetBounds(min, max QuantizedVec3) {
	a.header.BoundsMin = min
	a.header.BoundsMax = max
}

// SetCreatedAt sets the header's creation timestamp (Unix seconds).
func (a *Asset) SetCreatedAt(unixSeconds int64) { a.header.CreatedAt = unixSeconds }

// AddChunk stores payload under tag, overwriting any prior payload with
// the same tag, and appends (or updates, if tag already had a directory
// entry) a directory entry whose size is len(payload) and whose CRC32 is
// computed over payload. Offset remains zero until Save. The header's
// chunk count is kept equal to the directory length.
func (a *Asset) AddChunk(tag ChunkTag, payload []byte, name string) {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	a.payloads[tag] = stored
	a.names[tag] = name

	a.syncDirectoryEntry(tag, stored, name)
	a.header.ChunkCount = uint32(len(a.directory))
}

// syncDirectoryEntry rewrites (or appends) the directory entry for tag to
// reflect the current payload and name, preserving insertion order and
// leaving Offset untouched (it is only meaningful immediately after
// Save).
func (a *Asset) syncDirectoryEntry(tag ChunkTag, payload []byte, name string) {
	entry := DirectoryEntry{
		Tag:   tag,
		Size:  uint64(len(payload)),
		CRC32: checksum(payload),
		Name:  nameField(name),
	}
	for i := range a.directory {
		if a.directory[i].Tag == tag {
			entry.Offset = a.directory[i].Offset
			entry.Flags = a.directory[i].Flags
			a.directory[i] = entry
			return
		}
	}
	a.directory = append(a.directory, entry)
}

// HasChunk reports whether a payload is stored under tag.
func (a *Asset) HasChunk(tag ChunkTag) bool {
	_, ok := a.payloads[tag]
	return ok
}

// RemoveChunk deletes the payload and directory entry for tag, if any.
func (a *Asset) RemoveChunk(tag ChunkTag) {
	if _, ok := a.payloads[tag]; !ok {
		return
	}
	delete(a.payloads, tag)
	delete(a.names, tag)
	for i := range a.directory {
		if a.directory[i].Tag == tag {
			a.directory = append(a.directory[:i], a.directory[i+1:]...)
			break
		}
	}
	a.header.ChunkCount = uint32(len(a.directory))
}

// GetChunkData returns a copy of the payload stored under tag.
func (a *Asset) GetChunkData(tag ChunkTag) ([]byte, bool) {
	p, ok := a.payloads[tag]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, true
}

// GetChunkTypes returns the set of tags currently present, in directory
// (insertion) order.
func (a *Asset) GetChunkTypes() []ChunkTag {
	out := make([]ChunkTag, len(a.directory))
	for i, e := range a.directory {
		out[i] = e.Tag
	}
	return out
}

// GetChunkCount returns the number of chunks currently in the directory.
func (a *Asset) GetChunkCount() int { return len(a.directory) }

// GetFileSize returns header_size + directory_len*entry_size +
// sum(payload sizes), i.e. the size Save would produce right now.
func (a *Asset) GetFileSize() uint64 {
	total := uint64(headerSize) + uint64(len(a.directory))*directoryEntrySize
	for _, e := range a.directory {
		total += e.Size
	}
	return total
}

// Header returns a copy of the asset's current header.
func (a *Asset) Header() Header { return a.header }

// Directory returns a copy of the asset's current chunk directory, in
// insertion order.
func (a *Asset) Directory() []DirectoryEntry {
	out := make([]DirectoryEntry, len(a.directory))
	copy(out, a.directory)
	return out
}

// Clone deep-copies the header, directory, and all chunk payloads.
func (a *Asset) Clone() *Asset {
	clone := &Asset{
		header:    a.header,
		directory: make([]DirectoryEntry, len(a.directory)),
		payloads:  make(map[ChunkTag][]byte, len(a.payloads)),
		names:     make(map[ChunkTag]string, len(a.names)),
		opts:      a.opts,
	}
	copy(clone.directory, a.directory)
	for tag, p := range a.payloads {
		cp := make([]byte, len(p))
		copy(cp, p)
		clone.payloads[tag] = cp
	}
	for tag, n := range a.names {
		clone.names[tag] = n
	}
	return clone
}
