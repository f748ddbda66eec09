package taf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssetAddChunkKeepsDirectoryAndChunkCountInSync(t *testing.T) {
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{1, 2, 3, 4}, "materials")
	require.EqualValues(t, 1, a.GetChunkCount())
	require.EqualValues(t, 1, a.Header().ChunkCount)

	a.AddChunk(ChunkMaterial, []byte{5, 6}, "materials")
	require.EqualValues(t, 1, a.GetChunkCount(), "re-adding the same tag replaces, not appends")
	data, ok := a.GetChunkData(ChunkMaterial)
	require.True(t, ok)
	require.Equal(t, []byte{5, 6}, data)

	a.AddChunk(ChunkGeometry, []byte{9}, "geom")
	require.EqualValues(t, 2, a.GetChunkCount())
	require.EqualValues(t, 2, a.Header().ChunkCount)
}

func TestAssetRemoveChunk(t *testing.T) {
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{1}, "m")
	a.AddChunk(ChunkGeometry, []byte{2}, "g")
	a.RemoveChunk(ChunkMaterial)

	require.False(t, a.HasChunk(ChunkMaterial))
	require.True(t, a.HasChunk(ChunkGeometry))
	require.EqualValues(t, 1, a.GetChunkCount())
	require.EqualValues(t, 1, a.Header().ChunkCount)
}

func TestAssetCloneIsIndependent(t *testing.T) {
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{1, 2, 3}, "m")
	clone := a.Clone()

	clone.AddChunk(ChunkGeometry, []byte{9}, "g")
	require.EqualValues(t, 1, a.GetChunkCount())
	require.EqualValues(t, 2, clone.GetChunkCount())

	data, _ := clone.GetChunkData(ChunkMaterial)
	data[0] = 0xFF
	original, _ := a.GetChunkData(ChunkMaterial)
	require.EqualValues(t, 1, original[0], "mutating a clone's copy must not affect the source asset's payload")
}

func TestEmptyAssetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.taf")
	a := New(nil)
	a.SetCreator("tafdump-tests")
	a.SetDescription("empty asset round trip")
	require.NoError(t, a.SaveToFile(path))

	loaded, err := LoadFromFileSafe(path, nil)
	require.NoError(t, err)
	require.Equal(t, MagicMaster, loaded.Header().Magic)
	require.EqualValues(t, 0, loaded.GetChunkCount())
	require.Equal(t, "tafdump-tests", loaded.Creator())
	require.Equal(t, "empty asset round trip", loaded.Description())
	require.Equal(t, a.GetFileSize(), loaded.Header().TotalSize)
}

func TestSingleGeometryChunkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geom.taf")
	header := GeometryHeader{
		VertexCount:  3,
		IndexCount:   3,
		VertexStride: 12,
		VertexFormat: uint32(VertexPosition3D),
	}
	vertices := make([]byte, 3*12)
	payload, err := BuildGeometryPayload(header, vertices, []uint32{0, 1, 2})
	require.NoError(t, err)

	a := New(nil)
	a.AddChunk(ChunkGeometry, payload, "triangle")
	require.NoError(t, a.SaveToFile(path))

	loaded, err := LoadFromFileSafe(path, nil)
	require.NoError(t, err)
	require.True(t, loaded.HasChunk(ChunkGeometry))
	got, _ := loaded.GetChunkData(ChunkGeometry)
	require.Equal(t, payload, got)

	parsed, err := ParseGeometryPayload(got)
	require.NoError(t, err)
	require.EqualValues(t, 3, parsed.Header.VertexCount)
	require.Equal(t, []uint32{0, 1, 2}, parsed.Indices)
}

func TestLoadRejectsCorruptedChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.taf")
	a := New(nil)
	a.AddChunk(ChunkMaterial, BuildMaterialPayload([]Material{{}}), "m")
	require.NoError(t, a.SaveToFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte inside the material chunk's payload region without
	// touching the stored CRC32, to trigger ErrChecksum on load.
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = LoadFromFileSafe(path, nil)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badmagic.taf")
	a := New(nil)
	require.NoError(t, a.SaveToFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] = 'X'
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = LoadFromFileSafe(path, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSaveRejectsIntegrityMismatch(t *testing.T) {
	a := New(nil)
	a.AddChunk(ChunkMaterial, []byte{1}, "m")
	a.header.ChunkCount = 5 // force a chunk_count/directory disagreement
	err := a.SaveToFile(filepath.Join(t.TempDir(), "bad.taf"))
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestGetFileSizeMatchesSavedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sized.taf")
	a := New(nil)
	a.AddChunk(ChunkMaterial, BuildMaterialPayload([]Material{{}, {}}), "mats")
	want := a.GetFileSize()
	require.NoError(t, a.SaveToFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.EqualValues(t, want, len(raw))
}
