package taf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeometryPayloadRoundTrip(t *testing.T) {
	header := GeometryHeader{
		VertexCount:  4,
		IndexCount:   6,
		VertexStride: 32,
		VertexFormat: uint32(VertexPosition3D | VertexNormal | VertexColor),
		LODDistance:  100,
		RenderMode:   RenderModeTraditional,
	}
	vertices := make([]byte, 4*32)
	for i := range vertices {
		vertices[i] = byte(i)
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}

	payload, err := BuildGeometryPayload(header, vertices, indices)
	require.NoError(t, err)

	parsed, err := ParseGeometryPayload(payload)
	require.NoError(t, err)
	require.Equal(t, header, parsed.Header)
	require.Equal(t, vertices, parsed.Vertices)
	require.Equal(t, indices, parsed.Indices)
}

func TestBuildGeometryPayloadRejectsMismatchedVertexBuffer(t *testing.T) {
	header := GeometryHeader{VertexCount: 2, VertexStride: 12}
	_, err := BuildGeometryPayload(header, make([]byte, 8), nil)
	require.Error(t, err)
}

func TestBuildGeometryPayloadRejectsMismatchedIndexCount(t *testing.T) {
	header := GeometryHeader{VertexCount: 1, VertexStride: 12, IndexCount: 3}
	_, err := BuildGeometryPayload(header, make([]byte, 12), []uint32{0, 1})
	require.Error(t, err)
}

func TestParseGeometryPayloadRejectsTruncatedPayload(t *testing.T) {
	_, err := ParseGeometryPayload(make([]byte, 4))
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseGeometryPayloadRejectsSizeMismatch(t *testing.T) {
	header := GeometryHeader{VertexCount: 1, VertexStride: 12}
	payload, err := BuildGeometryPayload(header, make([]byte, 12), nil)
	require.NoError(t, err)

	_, err = ParseGeometryPayload(payload[:len(payload)-1])
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseGeometryPayloadRejectsOverflowingVertexCount(t *testing.T) {
	// VertexCount*VertexStride overflows a 32-bit (and, added to a large
	// IndexCount, even a naively-converted int) byte count; this must be
	// rejected cleanly rather than panicking on a negative make() length.
	header := GeometryHeader{VertexCount: 0xFFFFFFFF, VertexStride: 0xFFFFFFFF, IndexCount: 0xFFFFFFFF}
	payload := header.marshal()
	payload = append(payload, make([]byte, 16)...)

	_, err := ParseGeometryPayload(payload)
	require.ErrorIs(t, err, ErrValidation)
}

func TestMeshShaderGeometryHeaderFieldsRoundTrip(t *testing.T) {
	header := GeometryHeader{
		VertexCount:                   8,
		VertexStride:                  16,
		RenderMode:                    RenderModeMeshShader,
		MeshShaderMaxOutputVertices:   64,
		MeshShaderMaxOutputPrimitives: 126,
		WorkgroupSizeX:                32,
		WorkgroupSizeY:                1,
		WorkgroupSizeZ:                1,
		PrimitiveType:                 PrimitiveTriangleList,
	}
	payload, err := BuildGeometryPayload(header, make([]byte, 8*16), nil)
	require.NoError(t, err)

	parsed, err := ParseGeometryPayload(payload)
	require.NoError(t, err)
	require.Equal(t, header, parsed.Header)
}
