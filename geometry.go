package taf

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// VertexFormat is a bitmask hint describing which attributes a vertex
// carries. The authoritative layout is always VertexStride bytes as laid
// out by the producer; this bitmask never changes how many bytes a
// consumer reads, only what it expects to find there.
type VertexFormat uint32

const (
	VertexPosition3D VertexFormat = 1 << iota
	VertexPosition2D
	VertexNormal
	VertexTangent
	VertexTexCoord0
	VertexTexCoord1
	VertexColor
	VertexBoneIndices
	VertexBoneWeights
	VertexCustom0
	VertexCustom1
	VertexCustom2
	VertexCustom3
)

// RenderMode discriminates traditional index-buffer rendering from
// mesh-shader output.
type RenderMode uint32

const (
	RenderModeTraditional RenderMode = 0
	RenderModeMeshShader  RenderMode = 1
)

// PrimitiveType discriminates the primitive topology of the index array.
type PrimitiveType uint32

const (
	PrimitiveTriangleList PrimitiveType = iota
	PrimitiveTriangleStrip
	PrimitiveLineList
	PrimitivePointList
)

// geometryHeaderSize is the packed on-disk size of GeometryHeader.
const geometryHeaderSize = 4*2 /*counts*/ + 4 /*stride*/ + 4 /*format*/ +
	2*quantizedVec3Size /*bounds*/ + 4 /*lod distance*/ + 4 /*lod level*/ +
	4 /*render mode*/ + 4*2 /*mesh shader caps*/ + 4*3 /*workgroup*/ + 4 /*primitive type*/

// GeometryHeader is the fixed leading record of a GEOM chunk payload.
type GeometryHeader struct {
	VertexCount  uint32
	IndexCount   uint32
	VertexStride uint32
	VertexFormat uint32
	BoundsMin    QuantizedVec3
	BoundsMax    QuantizedVec3
	LODDistance  float32
	LODLevel     uint32
	RenderMode   RenderMode

	// MeshShaderMaxOutputVertices/Primitives and WorkgroupSize are only
	// meaningful when RenderMode == RenderModeMeshShader.
	MeshShaderMaxOutputVertices   uint32
	MeshShaderMaxOutputPrimitives uint32
	WorkgroupSizeX                uint32
	WorkgroupSizeY                uint32
	WorkgroupSizeZ                uint32

	PrimitiveType PrimitiveType
}

func (h GeometryHeader) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(geometryHeaderSize)
	_ = binary.Write(buf, binary.LittleEndian, h.VertexCount)
	_ = binary.Write(buf, binary.LittleEndian, h.IndexCount)
	_ = binary.Write(buf, binary.LittleEndian, h.VertexStride)
	_ = binary.Write(buf, binary.LittleEndian, h.VertexFormat)
	_ = binary.Write(buf, binary.LittleEndian, h.BoundsMin.X)
	_ = binary.Write(buf, binary.LittleEndian, h.BoundsMin.Y)
	_ = binary.Write(buf, binary.LittleEndian, h.BoundsMin.Z)
	_ = binary.Write(buf, binary.LittleEndian, h.BoundsMax.X)
	_ = binary.Write(buf, binary.LittleEndian, h.BoundsMax.Y)
	_ = binary.Write(buf, binary.LittleEndian, h.BoundsMax.Z)
	_ = binary.Write(buf, binary.LittleEndian, h.LODDistance)
	_ = binary.Write(buf, binary.LittleEndian, h.LODLevel)
	_ = binary.Write(buf, binary.LittleEndian, uint32(h.RenderMode))
	_ = binary.Write(buf, binary.LittleEndian, h.MeshShaderMaxOutputVertices)
	_ = binary.Write(buf, binary.LittleEndian, h.MeshShaderMaxOutputPrimitives)
	_ = binary.Write(buf, binary.LittleEndian, h.WorkgroupSizeX)
	_ = binary.Write(buf, binary.LittleEndian, h.WorkgroupSizeY)
	_ = binary.Write(buf, binary.LittleEndian, h.WorkgroupSizeZ)
	_ = binary.Write(buf, binary.LittleEndian, uint32(h.PrimitiveType))
	return buf.Bytes()
}

func unmarshalGeometryHeader(b []byte) GeometryHeader {
	r := bytes.NewReader(b[:geometryHeaderSize])
	var h GeometryHeader
	var renderMode, primType uint32
	_ = binary.Read(r, binary.LittleEndian, &h.VertexCount)
	_ = binary.Read(r, binary.LittleEndian, &h.IndexCount)
	_ = binary.Read(r, binary.LittleEndian, &h.VertexStride)
	_ = binary.Read(r, binary.LittleEndian, &h.VertexFormat)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMin.X)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMin.Y)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMin.Z)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMax.X)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMax.Y)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMax.Z)
	_ = binary.Read(r, binary.LittleEndian, &h.LODDistance)
	_ = binary.Read(r, binary.LittleEndian, &h.LODLevel)
	_ = binary.Read(r, binary.LittleEndian, &renderMode)
	h.RenderMode = RenderMode(renderMode)
	_ = binary.Read(r, binary.LittleEndian, &h.MeshShaderMaxOutputVertices)
	_ = binary.Read(r, binary.LittleEndian, &h.MeshShaderMaxOutputPrimitives)
	_ = binary.Read(r, binary.LittleEndian, &h.WorkgroupSizeX)
	_ = binary.Read(r, binary.LittleEndian, &h.WorkgroupSizeY)
	_ = binary.Read(r, binary.LittleEndian, &h.WorkgroupSizeZ)
	_ = binary.Read(r, binary.LittleEndian, &primType)
	h.PrimitiveType = PrimitiveType(primType)
	return h
}

// BuildGeometryPayload assembles a GEOM chunk payload: header, then
// vertexCount*vertexStride bytes of dense vertex data, then optionally
// indexCount*4 bytes of uint32 indices.
func BuildGeometryPayload(h GeometryHeader, vertices []byte, indices []uint32) ([]byte, error) {
	wantVertexBytes := int(h.VertexCount) * int(h.VertexStride)
	if len(vertices) != wantVertexBytes {
		return nil, errors.Errorf("geometry: vertex buffer is %d bytes, want vertex_count*vertex_stride = %d", len(vertices), wantVertexBytes)
	}
	if int(h.IndexCount) != len(indices) {
		return nil, errors.Errorf("geometry: index slice has %d entries, want index_count = %d", len(indices), h.IndexCount)
	}

	out := make([]byte, 0, geometryHeaderSize+wantVertexBytes+len(indices)*4)
	out = append(out, h.marshal()...)
	out = append(out, vertices...)
	idxBuf := new(bytes.Buffer)
	idxBuf.Grow(len(indices) * 4)
	for _, idx := range indices {
		_ = binary.Write(idxBuf, binary.LittleEndian, idx)
	}
	out = append(out, idxBuf.Bytes()...)
	return out, nil
}

// ParsedGeometry is the decoded form of a GEOM chunk payload.
type ParsedGeometry struct {
	Header   GeometryHeader
	Vertices []byte
	Indices  []uint32
}

// ParseGeometryPayload decodes a GEOM chunk payload produced by
// BuildGeometryPayload.
func ParseGeometryPayload(payload []byte) (*ParsedGeometry, error) {
	if len(payload) < geometryHeaderSize {
		return nil, errors.Wrapf(ErrValidation, "geometry payload too small: %d bytes", len(payload))
	}
	h := unmarshalGeometryHeader(payload[:geometryHeaderSize])

	// VertexCount/VertexStride/IndexCount are attacker-controlled uint32
	// header fields; their product must be checked in uint64 against the
	// actual payload length before any conversion to int, or a crafted
	// header can wrap an int-sized byte count negative and panic make().
	vertexBytes := uint64(h.VertexCount) * uint64(h.VertexStride)
	indexBytes := uint64(h.IndexCount) * 4
	payloadLen := uint64(len(payload))
	if vertexBytes > payloadLen || indexBytes > payloadLen || vertexBytes+indexBytes > payloadLen-geometryHeaderSize {
		return nil, errors.Wrapf(ErrValidation,
			"geometry payload declares %d vertex bytes + %d index bytes, exceeds payload size %d",
			vertexBytes, indexBytes, len(payload))
	}
	want := uint64(geometryHeaderSize) + vertexBytes + indexBytes
	if payloadLen != want {
		return nil, errors.Wrapf(ErrValidation, "geometry payload size %d, want %d (header+vertices+indices)", len(payload), want)
	}

	vertices := make([]byte, vertexBytes)
	copy(vertices, payload[geometryHeaderSize:geometryHeaderSize+vertexBytes])

	indices := make([]uint32, h.IndexCount)
	r := bytes.NewReader(payload[geometryHeaderSize+vertexBytes:])
	for i := range indices {
		_ = binary.Read(r, binary.LittleEndian, &indices[i])
	}

	return &ParsedGeometry{Header: h, Vertices: vertices, Indices: indices}, nil
}
