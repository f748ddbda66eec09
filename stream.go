package taf

import (
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// maxCacheBytes bounds the streaming loader's chunk cache (§4.6).
const maxCacheBytes = 50 * 1024 * 1024

type cacheEntry struct {
	data        []byte
	accessCount uint64
}

// CacheStats reports the streaming loader's cache state at a point in
// time.
type CacheStats struct {
	LoadedCount int
	Bytes       uint64
	Hits        uint64
	Misses      uint64
}

// StreamingLoader services partial random-access reads against a TAF
// file without ever mapping or holding the full file in memory. Its
// directory is read once at Open and is immutable thereafter; its
// cache is mutable and evictable at any time. fileMu guards the open
// file handle (serializing Close against in-flight reads); cacheMu
// guards the cache and its counters independently, so a cache eviction
// never blocks on file I/O and vice versa.
type StreamingLoader struct {
	fileMu sync.Mutex
	path   string
	file   *os.File
	header Header
	fileSize uint64

	directory []DirectoryEntry
	byName    map[string]int

	cacheMu    sync.Mutex
	cache      map[int]*cacheEntry
	cacheBytes uint64
	hits       uint64
	misses     uint64

	opts *Options
}

// NewStreamingLoader constructs a closed loader. Call Open before
// issuing any reads.
func NewStreamingLoader(opts *Options) *StreamingLoader {
	return &StreamingLoader{opts: opts}
}

// Open opens path, reads and validates the header and directory as in
// the container's load algorithm, but does not read any payload.
// Calling Open on an already-open loader closes the prior file first.
func (l *StreamingLoader) Open(path string) error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(ErrRead, "open %s: %v", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrapf(ErrRead, "stat %s: %v", path, err)
	}
	fileSize := uint64(info.Size())

	if fileSize < headerSize {
		f.Close()
		return errors.Wrapf(ErrValidation, "%s smaller than header (%d < %d)", path, fileSize, headerSize)
	}

	headerBuf := make([]byte, headerSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		f.Close()
		return errors.Wrapf(ErrRead, "read header of %s: %v", path, err)
	}
	header := unmarshalHeader(headerBuf)
	if err := validateHeader(header, fileSize, headerBuf); err != nil {
		f.Close()
		return err
	}

	dirBuf := make([]byte, uint64(header.ChunkCount)*directoryEntrySize)
	if len(dirBuf) > 0 {
		if _, err := f.ReadAt(dirBuf, int64(headerSize)); err != nil {
			f.Close()
			return errors.Wrapf(ErrRead, "read directory of %s: %v", path, err)
		}
	}

	directory := make([]DirectoryEntry, header.ChunkCount)
	byName := make(map[string]int, header.ChunkCount)
	for i := range directory {
		start := i * directoryEntrySize
		entry := unmarshalDirectoryEntry(dirBuf[start : start+directoryEntrySize])
		if entry.Offset >= fileSize || entry.Offset+entry.Size > fileSize {
			f.Close()
			return errors.Wrapf(ErrValidation,
				"chunk %s (%q): offset %d size %d out of bounds for file size %d",
				entry.Tag, fixedString(entry.Name[:]), entry.Offset, entry.Size, fileSize)
		}
		directory[i] = entry
		byName[fixedString(entry.Name[:])] = i
	}

	l.path = path
	l.file = f
	l.header = header
	l.fileSize = fileSize
	l.directory = directory
	l.byName = byName

	l.cacheMu.Lock()
	l.cache = make(map[int]*cacheEntry)
	l.cacheBytes = 0
	l.hits = 0
	l.misses = 0
	l.cacheMu.Unlock()

	l.opts.logger().Debug().Str("path", path).Uint32("chunks", header.ChunkCount).Msg("taf: streaming loader opened")
	return nil
}

// Close closes the underlying file and clears the directory and cache.
func (l *StreamingLoader) Close() error {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	var err error
	if l.file != nil {
		err = l.file.Close()
		l.file = nil
	}
	l.directory = nil
	l.byName = nil

	l.cacheMu.Lock()
	l.cache = nil
	l.cacheBytes = 0
	l.cacheMu.Unlock()

	return err
}

// GetChunkInfo returns the directory entry for index without touching
// the file.
func (l *StreamingLoader) GetChunkInfo(index int) (DirectoryEntry, error) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if index < 0 || index >= len(l.directory) {
		return DirectoryEntry{}, errors.Wrapf(ErrNotFound, "chunk index %d out of range [0,%d)", index, len(l.directory))
	}
	return l.directory[index], nil
}

// GetChunkInfoByName resolves name to its directory entry.
func (l *StreamingLoader) GetChunkInfoByName(name string) (DirectoryEntry, error) {
	l.fileMu.Lock()
	idx, ok := l.byName[name]
	l.fileMu.Unlock()
	if !ok {
		return DirectoryEntry{}, errors.Wrapf(ErrNotFound, "no chunk named %q", name)
	}
	return l.GetChunkInfo(idx)
}

// LoadChunk returns a copy of the payload bytes for chunk index,
// consulting and populating the cache. The file lock and the cache lock
// are never held at the same time: a cache hit never touches fileMu at
// all, and a miss acquires fileMu only around the ReadAt, releasing it
// before cachePut takes cacheMu to insert.
func (l *StreamingLoader) LoadChunk(index int) ([]byte, error) {
	if data, ok := l.cacheGet(index); ok {
		return data, nil
	}

	l.fileMu.Lock()
	if l.file == nil {
		l.fileMu.Unlock()
		return nil, errors.Wrapf(ErrRead, "loader is not open")
	}
	if index < 0 || index >= len(l.directory) {
		n := len(l.directory)
		l.fileMu.Unlock()
		return nil, errors.Wrapf(ErrNotFound, "chunk index %d out of range [0,%d)", index, n)
	}
	entry := l.directory[index]
	buf := make([]byte, entry.Size)
	n, err := l.file.ReadAt(buf, int64(entry.Offset))
	l.fileMu.Unlock()
	if err != nil || uint64(n) != entry.Size {
		return nil, errors.Wrapf(ErrRead, "chunk %s: short read (%d of %d bytes): %v", entry.Tag, n, entry.Size, err)
	}

	l.cachePut(index, buf)

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// LoadChunkByName resolves name to its index and loads it.
func (l *StreamingLoader) LoadChunkByName(name string) ([]byte, error) {
	l.fileMu.Lock()
	idx, ok := l.byName[name]
	l.fileMu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no chunk named %q", name)
	}
	return l.LoadChunk(idx)
}

// LoadMetadata returns the first AUDI chunk's payload, used as
// out-of-band metadata for streaming audio assets.
func (l *StreamingLoader) LoadMetadata() ([]byte, error) {
	l.fileMu.Lock()
	idx := -1
	for i, e := range l.directory {
		if e.Tag == ChunkAudio {
			idx = i
			break
		}
	}
	l.fileMu.Unlock()
	if idx < 0 {
		return nil, errors.Wrapf(ErrNotFound, "no AUDI chunk present")
	}
	return l.LoadChunk(idx)
}

// PreloadChunks loads each index in turn, populating the cache.
func (l *StreamingLoader) PreloadChunks(indices []int) error {
	for _, idx := range indices {
		if _, err := l.LoadChunk(idx); err != nil {
			return err
		}
	}
	return nil
}

// ClearCache discards all cached payloads and resets cumulative byte
// accounting, but preserves the hit/miss counters.
func (l *StreamingLoader) ClearCache() {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.cache = make(map[int]*cacheEntry)
	l.cacheBytes = 0
}

// CacheStats reports the cache's current state.
func (l *StreamingLoader) CacheStats() CacheStats {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	return CacheStats{
		LoadedCount: len(l.cache),
		Bytes:       l.cacheBytes,
		Hits:        l.hits,
		Misses:      l.misses,
	}
}

// cacheGet reports a cache hit, incrementing access_count and the hits
// counter, or a cache miss, incrementing the misses counter.
func (l *StreamingLoader) cacheGet(index int) ([]byte, bool) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	entry, ok := l.cache[index]
	if !ok {
		l.misses++
		return nil, false
	}
	entry.accessCount++
	l.hits++
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, true
}

// cachePut inserts data with access_count = 1, then evicts in
// increasing access_count order (ties broken by lowest index) until
// cumulative cached bytes are back under maxCacheBytes.
func (l *StreamingLoader) cachePut(index int, data []byte) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	if l.cache == nil {
		l.cache = make(map[int]*cacheEntry)
	}
	l.cache[index] = &cacheEntry{data: data, accessCount: 1}
	l.cacheBytes += uint64(len(data))

	if l.cacheBytes <= maxCacheBytes {
		return
	}

	type victim struct {
		index       int
		accessCount uint64
		size        uint64
	}
	victims := make([]victim, 0, len(l.cache))
	for idx, e := range l.cache {
		victims = append(victims, victim{index: idx, accessCount: e.accessCount, size: uint64(len(e.data))})
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].accessCount != victims[j].accessCount {
			return victims[i].accessCount < victims[j].accessCount
		}
		return victims[i].index < victims[j].index
	})

	for _, v := range victims {
		if l.cacheBytes <= maxCacheBytes {
			break
		}
		delete(l.cache, v.index)
		l.cacheBytes -= v.size
	}
}
