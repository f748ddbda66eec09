package taf

import (
	"os"
	"path/filepath"
	"testing"
)

// FuzzLoadFromFileSafe feeds arbitrary byte strings to the loader.
// LoadFromFileSafe must never panic on malformed input: every rejection
// path returns one of the §7 sentinel errors.
func FuzzLoadFromFileSafe(f *testing.F) {
	seedAsset := New(nil)
	seedAsset.AddChunk(ChunkMaterial, BuildMaterialPayload([]Material{{}}), "seed")
	seedPath := filepath.Join(f.TempDir(), "seed.taf")
	if err := seedAsset.SaveToFile(seedPath); err != nil {
		f.Fatalf("failed to build fuzz seed: %v", err)
	}
	seed, err := os.ReadFile(seedPath)
	if err != nil {
		f.Fatalf("failed to read fuzz seed: %v", err)
	}
	f.Add(seed)
	f.Add([]byte("TAF!"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		path := filepath.Join(t.TempDir(), "fuzz.taf")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("failed to write fuzz input: %v", err)
		}
		_, _ = LoadFromFileSafe(path, nil)
	})
}

// FuzzParseGeometryPayload feeds arbitrary byte strings directly to the
// GEOM payload decoder, independent of the container's load path.
func FuzzParseGeometryPayload(f *testing.F) {
	payload, err := BuildGeometryPayload(GeometryHeader{VertexCount: 2, VertexStride: 12}, make([]byte, 24), []uint32{0, 1})
	if err != nil {
		f.Fatalf("failed to build fuzz seed: %v", err)
	}
	f.Add(payload)
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = ParseGeometryPayload(data)
	})
}
