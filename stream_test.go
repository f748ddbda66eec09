package taf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildStreamingFixture(t *testing.T, chunkSizes []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.taf")
	a := New(nil)
	for i, size := range chunkSizes {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i)
		}
		a.AddChunk(ChunkTag(fourCC("CHK0")+ChunkTag(i)), data, "chunk")
	}
	require.NoError(t, a.SaveToFile(path))
	return path
}

func TestStreamingLoaderOpenAndLoadChunk(t *testing.T) {
	path := buildStreamingFixture(t, []int{16, 32})
	l := NewStreamingLoader(nil)
	require.NoError(t, l.Open(path))
	defer l.Close()

	data, err := l.LoadChunk(0)
	require.NoError(t, err)
	require.Len(t, data, 16)

	stats := l.CacheStats()
	require.EqualValues(t, 1, stats.LoadedCount)
	require.EqualValues(t, 1, stats.Misses)

	_, err = l.LoadChunk(0)
	require.NoError(t, err)
	stats = l.CacheStats()
	require.EqualValues(t, 1, stats.Hits)
}

func TestStreamingLoaderRejectsOutOfRangeIndex(t *testing.T) {
	path := buildStreamingFixture(t, []int{8})
	l := NewStreamingLoader(nil)
	require.NoError(t, l.Open(path))
	defer l.Close()

	_, err := l.LoadChunk(5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStreamingLoaderLoadChunkByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "named.taf")
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{1, 2, 3}, "palette")
	require.NoError(t, a.SaveToFile(path))

	l := NewStreamingLoader(nil)
	require.NoError(t, l.Open(path))
	defer l.Close()

	data, err := l.LoadChunkByName("palette")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)

	_, err = l.LoadChunkByName("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStreamingLoaderClearCacheKeepsCounters(t *testing.T) {
	path := buildStreamingFixture(t, []int{8})
	l := NewStreamingLoader(nil)
	require.NoError(t, l.Open(path))
	defer l.Close()

	_, err := l.LoadChunk(0)
	require.NoError(t, err)
	l.ClearCache()

	stats := l.CacheStats()
	require.EqualValues(t, 0, stats.LoadedCount)
	require.EqualValues(t, 0, stats.Bytes)
	require.EqualValues(t, 1, stats.Misses, "clearing the cache must not reset hit/miss counters")
}

func TestStreamingLoaderCacheEvictsLeastAccessedFirst(t *testing.T) {
	l := NewStreamingLoader(nil)

	const chunkBytes = 20 * 1024 * 1024 // 20 MiB: three chunks overflow the 50 MiB bound
	path := buildStreamingFixture(t, []int{chunkBytes, chunkBytes, chunkBytes})
	require.NoError(t, l.Open(path))
	defer l.Close()

	_, err := l.LoadChunk(0)
	require.NoError(t, err)
	_, err = l.LoadChunk(1)
	require.NoError(t, err)

	// Access chunk 0 again, raising its access_count above chunk 1's.
	_, err = l.LoadChunk(0)
	require.NoError(t, err)

	// Loading chunk 2 pushes cached bytes past maxCacheBytes; chunk 1 has
	// the lowest access_count (1) and must be evicted first.
	_, err = l.LoadChunk(2)
	require.NoError(t, err)

	l.cacheMu.Lock()
	_, chunk0Cached := l.cache[0]
	_, chunk1Cached := l.cache[1]
	_, chunk2Cached := l.cache[2]
	l.cacheMu.Unlock()

	require.True(t, chunk0Cached, "chunk 0 was accessed twice and should survive eviction")
	require.False(t, chunk1Cached, "chunk 1 had the lowest access_count and should be evicted")
	require.True(t, chunk2Cached)

	stats := l.CacheStats()
	require.LessOrEqual(t, stats.Bytes, uint64(maxCacheBytes))
}

func TestStreamingLoaderReopenResetsCache(t *testing.T) {
	path := buildStreamingFixture(t, []int{8})
	l := NewStreamingLoader(nil)
	require.NoError(t, l.Open(path))
	_, err := l.LoadChunk(0)
	require.NoError(t, err)

	require.NoError(t, l.Open(path))
	stats := l.CacheStats()
	require.Zero(t, stats.LoadedCount)
	require.Zero(t, stats.Hits)
	require.Zero(t, stats.Misses)
	l.Close()
}
