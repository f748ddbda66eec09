package taf

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taffy-assets/taf/namehash"
)

func quantizedGeometryAsset(t *testing.T, vertexCount uint32, stride uint32, quantized bool) *Asset {
	t.Helper()
	header := GeometryHeader{
		VertexCount:  vertexCount,
		VertexStride: stride,
		VertexFormat: uint32(VertexPosition3D | VertexNormal | VertexColor | VertexTexCoord0),
	}
	payload, err := BuildGeometryPayload(header, make([]byte, uint64(vertexCount)*uint64(stride)), nil)
	require.NoError(t, err)

	a := New(nil)
	flags := uint64(FeatureHashBasedNames)
	if quantized {
		flags |= uint64(FeatureQuantizedCoords)
	}
	a.SetFeatureFlags(flags)
	a.AddChunk(ChunkGeometry, payload, "mesh")
	return a
}

func TestOverlayTargetsAssetRequiresHashBasedNames(t *testing.T) {
	o := NewOverlay(nil)
	a := New(nil) // no FeatureHashBasedNames
	require.False(t, o.TargetsAsset(a))

	a.SetFeatureFlags(uint64(FeatureHashBasedNames))
	require.True(t, o.TargetsAsset(a))
}

func TestOverlayTargetsAssetRejectsNewerMajorVersion(t *testing.T) {
	o := NewOverlay(nil)
	o.version = Version{Major: EngineVersion.Major + 1, Minor: 0, Patch: 0}
	a := New(nil)
	a.SetFeatureFlags(uint64(FeatureHashBasedNames))
	require.False(t, o.TargetsAsset(a))
}

func TestOverlayTargetsAssetAcceptsOlderMajorVersion(t *testing.T) {
	o := NewOverlay(nil)
	o.version = Version{Major: 1, Minor: 0, Patch: 0}
	a := New(nil)
	a.SetFeatureFlags(uint64(FeatureHashBasedNames))
	a.header.Version = Version{Major: 2, Minor: 0, Patch: 0}
	require.True(t, o.TargetsAsset(a))
}

func TestOverlaySaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.tafo")
	o := NewOverlay(nil)
	o.AddTargetAsset("assets/hero.taf", ">=1.0.0")
	o.AddVertexColorChange(0, 1, 0, 0, 1)
	o.AddNormalRecalculation()

	require.NoError(t, o.SaveToFile(path))
	loaded, err := LoadOverlayFromFile(path, nil)
	require.NoError(t, err)

	require.Len(t, loaded.targets, 1)
	require.Equal(t, "assets/hero.taf", loaded.targets[0].Path)
	require.Len(t, loaded.ops, 2)
	require.Equal(t, OpVertexColorChange, loaded.ops[0].Type)
	require.Equal(t, OpNormalRecalculation, loaded.ops[1].Type)
}

func TestApplyFailsWhenOverlayDoesNotTargetAsset(t *testing.T) {
	o := NewOverlay(nil)
	a := New(nil) // missing FeatureHashBasedNames
	_, err := o.Apply(a)
	require.ErrorIs(t, err, ErrOperation)
}

func TestApplyVertexColorChangeUsesQuantizedOffsetPolicy(t *testing.T) {
	for _, quantized := range []bool{false, true} {
		a := quantizedGeometryAsset(t, 1, 64, quantized)
		o := NewOverlay(nil)
		o.AddVertexColorChange(0, 1, 0.5, 0.25, 1)

		result, err := o.Apply(a)
		require.NoError(t, err)

		data, _ := result.GetChunkData(ChunkGeometry)
		parsed, err := ParseGeometryPayload(data)
		require.NoError(t, err)

		offset := colorAttributeOffset(quantized)
		got := [4]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[offset:])),
			math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[offset+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[offset+8:])),
			math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[offset+12:])),
		}
		require.Equal(t, [4]float32{1, 0.5, 0.25, 1}, got, "quantized=%v", quantized)
	}
}

func TestApplyUVModificationOverridesStoredOffsetPerFeaturePolicy(t *testing.T) {
	for _, quantized := range []bool{false, true} {
		a := quantizedGeometryAsset(t, 1, 64, quantized)
		o := NewOverlay(nil)
		o.AddUVModification(0, 0.25, 0.75, false, true)

		result, err := o.Apply(a)
		require.NoError(t, err)

		data, _ := result.GetChunkData(ChunkGeometry)
		parsed, err := ParseGeometryPayload(data)
		require.NoError(t, err)

		offset := uvAttributeOffset(quantized)
		u := math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[offset:]))
		v := math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[offset+4:]))
		require.InDelta(t, 0.25, u, 1e-6)
		require.InDelta(t, -0.75, v, 1e-6, "flipV negates the V component")
	}
}

func TestApplyVertexPositionChangeUsesStoredOffsetVerbatim(t *testing.T) {
	a := quantizedGeometryAsset(t, 2, 64, true)
	o := NewOverlay(nil)
	o.AddVertexPositionChange(1, 10, 20, 30)

	result, err := o.Apply(a)
	require.NoError(t, err)
	data, _ := result.GetChunkData(ChunkGeometry)
	parsed, err := ParseGeometryPayload(data)
	require.NoError(t, err)

	base := uint64(1) * 64
	x := math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[base:]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[base+4:]))
	z := math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[base+8:]))
	require.Equal(t, [3]float32{10, 20, 30}, [3]float32{x, y, z})
}

func TestApplyVertexSubsetAppliesToEveryVertexInRange(t *testing.T) {
	a := quantizedGeometryAsset(t, 4, 64, true)
	o := NewOverlay(nil)
	o.AddSubsetColorChange(1, 2, 0.1, 0.2, 0.3, 1)

	result, err := o.Apply(a)
	require.NoError(t, err)
	data, _ := result.GetChunkData(ChunkGeometry)
	parsed, err := ParseGeometryPayload(data)
	require.NoError(t, err)

	offset := colorAttributeOffset(true)
	for v := uint64(0); v < 4; v++ {
		base := v * 64
		r := math.Float32frombits(binary.LittleEndian.Uint32(parsed.Vertices[base+offset:]))
		if v == 1 || v == 2 {
			require.InDelta(t, 0.1, r, 1e-6, "vertex %d is inside the subset range", v)
		} else {
			require.Zero(t, r, "vertex %d is outside the subset range and must be untouched", v)
		}
	}
}

func TestApplyScaleOperationAllVertices(t *testing.T) {
	a := quantizedGeometryAsset(t, 1, 64, true)
	data, _ := a.GetChunkData(ChunkGeometry)
	parsed, _ := ParseGeometryPayload(data)
	binary.LittleEndian.PutUint32(parsed.Vertices[0:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(parsed.Vertices[4:], math.Float32bits(2))
	binary.LittleEndian.PutUint32(parsed.Vertices[8:], math.Float32bits(3))
	rebuilt, _ := BuildGeometryPayload(parsed.Header, parsed.Vertices, parsed.Indices)
	a.AddChunk(ChunkGeometry, rebuilt, "mesh")

	o := NewOverlay(nil)
	o.AddScaleOperation(2, 2, 2, 0, AllVertices, false)

	result, err := o.Apply(a)
	require.NoError(t, err)
	out, _ := result.GetChunkData(ChunkGeometry)
	p, err := ParseGeometryPayload(out)
	require.NoError(t, err)
	x := math.Float32frombits(binary.LittleEndian.Uint32(p.Vertices[0:]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(p.Vertices[4:]))
	z := math.Float32frombits(binary.LittleEndian.Uint32(p.Vertices[8:]))
	require.Equal(t, [3]float32{2, 4, 6}, [3]float32{x, y, z})
}

func TestApplyRotationOperationAroundZAxis(t *testing.T) {
	a := quantizedGeometryAsset(t, 1, 64, true)
	data, _ := a.GetChunkData(ChunkGeometry)
	parsed, _ := ParseGeometryPayload(data)
	binary.LittleEndian.PutUint32(parsed.Vertices[0:], math.Float32bits(1)) // x=1,y=0,z=0
	rebuilt, _ := BuildGeometryPayload(parsed.Header, parsed.Vertices, parsed.Indices)
	a.AddChunk(ChunkGeometry, rebuilt, "mesh")

	o := NewOverlay(nil)
	o.AddRotationOperation(0, 0, 1, float32(math.Pi/2), 0, AllVertices, false)

	result, err := o.Apply(a)
	require.NoError(t, err)
	out, _ := result.GetChunkData(ChunkGeometry)
	p, err := ParseGeometryPayload(out)
	require.NoError(t, err)
	x := math.Float32frombits(binary.LittleEndian.Uint32(p.Vertices[0:]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(p.Vertices[4:]))
	require.InDelta(t, 0, x, 1e-5)
	require.InDelta(t, 1, y, 1e-5)
}

func TestApplyShaderReplacementScenario(t *testing.T) {
	nameHash := namehash.FNV1a("data_driven_fragment_shader")
	descriptors := []ShaderDescriptor{{NameHash: nameHash, Stage: ShaderStageFragment, SpirvSize: 256}}
	blobs := [][]byte{spirvBlob(t, 256)}
	shaderPayload, err := BuildShaderPayload(descriptors, blobs)
	require.NoError(t, err)

	a := New(nil)
	a.SetFeatureFlags(uint64(FeatureHashBasedNames))
	a.AddChunk(ChunkShader, shaderPayload, "shaders")

	newBlob := spirvBlob(t, 128)
	o := NewOverlay(nil)
	o.AddShaderReplacement(nameHash, namehash.FNV1a("new_fragment_shader"), newBlob)

	result, err := o.Apply(a)
	require.NoError(t, err)
	out, _ := result.GetChunkData(ChunkShader)
	parsed, err := ParseShaderPayload(out)
	require.NoError(t, err)
	require.Len(t, parsed.Blobs, 1)
	require.Equal(t, newBlob, parsed.Blobs[0])
	require.EqualValues(t, 128, parsed.Descriptors[0].SpirvSize)
}

func TestApplyShaderReplacementFailsWhenHashNotFound(t *testing.T) {
	a := New(nil)
	a.SetFeatureFlags(uint64(FeatureHashBasedNames))
	payload, err := BuildShaderPayload([]ShaderDescriptor{{NameHash: 1, SpirvSize: 4}}, [][]byte{spirvBlob(t, 4)})
	require.NoError(t, err)
	a.AddChunk(ChunkShader, payload, "shaders")

	o := NewOverlay(nil)
	o.AddShaderReplacement(999, 1000, spirvBlob(t, 4))

	_, err = o.Apply(a)
	require.ErrorIs(t, err, ErrOperation)
}

func TestApplyMaterialReplace(t *testing.T) {
	a := New(nil)
	a.SetFeatureFlags(uint64(FeatureHashBasedNames))
	a.AddChunk(ChunkMaterial, BuildMaterialPayload([]Material{{}}), "mats")

	replacement := BuildMaterialPayload([]Material{{}, {}})
	o := NewOverlay(nil)
	o.AddMaterialReplace(replacement)

	result, err := o.Apply(a)
	require.NoError(t, err)
	out, _ := result.GetChunkData(ChunkMaterial)
	require.Equal(t, replacement, out)
}

func TestApplyReturnsOperationErrorOnOutOfRangeOp(t *testing.T) {
	a := quantizedGeometryAsset(t, 1, 64, true)
	o := NewOverlay(nil)
	o.AddVertexColorChange(5, 1, 1, 1, 1) // vertex 5 doesn't exist in a 1-vertex mesh

	_, err := o.Apply(a)
	require.ErrorIs(t, err, ErrOperation)
}

func TestOverlayComposability(t *testing.T) {
	// Applying two overlays in sequence must equal one overlay carrying
	// both operations in the same order.
	a := quantizedGeometryAsset(t, 1, 64, true)

	o1 := NewOverlay(nil)
	o1.AddVertexColorChange(0, 1, 0, 0, 1)
	o2 := NewOverlay(nil)
	o2.AddScaleOperation(2, 2, 2, 0, AllVertices, false)

	step1, err := o1.Apply(a)
	require.NoError(t, err)
	step2, err := o2.Apply(step1)
	require.NoError(t, err)

	combined := NewOverlay(nil)
	combined.AddVertexColorChange(0, 1, 0, 0, 1)
	combined.AddScaleOperation(2, 2, 2, 0, AllVertices, false)
	oneShot, err := combined.Apply(a)
	require.NoError(t, err)

	want, _ := step2.GetChunkData(ChunkGeometry)
	got, _ := oneShot.GetChunkData(ChunkGeometry)
	require.Equal(t, want, got)
}

func TestApplyDoesNotMutateSourceAsset(t *testing.T) {
	a := quantizedGeometryAsset(t, 1, 64, true)
	before, _ := a.GetChunkData(ChunkGeometry)

	o := NewOverlay(nil)
	o.AddVertexColorChange(0, 1, 1, 1, 1)
	_, err := o.Apply(a)
	require.NoError(t, err)

	after, _ := a.GetChunkData(ChunkGeometry)
	require.Equal(t, before, after)
}
