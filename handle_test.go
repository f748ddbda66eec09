package taf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateHandleListsAsLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handle.taf")
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{1}, "m")
	require.NoError(t, a.SaveToFile(path))

	h, err := CreateHandle(path, nil)
	require.NoError(t, err)
	defer h.Close()

	found := false
	for _, info := range ListLiveHandles() {
		if info.ID == h.ID() {
			found = true
			require.Equal(t, path, info.Path)
		}
	}
	require.True(t, found)
	require.Equal(t, path, h.Path())
}

func TestHandleCloseRemovesFromRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handle2.taf")
	a := New(nil)
	require.NoError(t, a.SaveToFile(path))

	h, err := CreateHandle(path, nil)
	require.NoError(t, err)
	id := h.ID()
	require.NoError(t, h.Close())

	for _, info := range ListLiveHandles() {
		require.NotEqual(t, id, info.ID, "a closed handle must not appear as live")
	}
}

func TestMultipleHandlesOnSamePathGetDistinctIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.taf")
	a := New(nil)
	require.NoError(t, a.SaveToFile(path))

	h1, err := CreateHandle(path, nil)
	require.NoError(t, err)
	defer h1.Close()
	h2, err := CreateHandle(path, nil)
	require.NoError(t, err)
	defer h2.Close()

	require.NotEqual(t, h1.ID(), h2.ID())
}

func TestHandleLoaderServicesReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loaded.taf")
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{9, 9}, "m")
	require.NoError(t, a.SaveToFile(path))

	h, err := CreateHandle(path, nil)
	require.NoError(t, err)
	defer h.Close()

	info, err := h.Loader().GetChunkInfoByName("m")
	require.NoError(t, err)
	data, err := h.Loader().LoadChunk(int(indexOfEntry(h.Loader(), info)))
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, data)
}

func indexOfEntry(l *StreamingLoader, target DirectoryEntry) int {
	for i, e := range l.directory {
		if e.Offset == target.Offset && e.Tag == target.Tag {
			return i
		}
	}
	return -1
}
