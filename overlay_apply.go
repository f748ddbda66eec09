package taf

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Apply runs every operation in o against a clone of asset, in
// declaration order, and returns the mutated clone. asset itself is
// never modified. Apply fails closed: the first operation error aborts
// the whole application, per §4.4's OperationError contract.
func (o *Overlay) Apply(asset *Asset) (*Asset, error) {
	if !o.TargetsAsset(asset) {
		return nil, errors.Wrapf(ErrOperation, "overlay does not target this asset (feature flags / version mismatch)")
	}

	result := asset.Clone()
	for i, op := range o.ops {
		if err := o.applyOp(result, op); err != nil {
			return nil, errors.Wrapf(err, "overlay op %d (%v)", i, op.Type)
		}
	}
	return result, nil
}

func (o *Overlay) dataWindow(op overlayOp) ([]byte, error) {
	end := uint64(op.DataOffset) + uint64(op.DataSize)
	if end > uint64(len(o.data)) {
		return nil, errors.Wrapf(ErrOperation, "op data window [%d,%d) overruns data blob of %d bytes", op.DataOffset, end, len(o.data))
	}
	return o.data[op.DataOffset:end], nil
}

func (o *Overlay) applyOp(result *Asset, op overlayOp) error {
	switch op.Type {
	case OpShaderReplace:
		return o.applyShaderReplace(result, op)
	case OpVertexColorChange:
		return o.applyVertexColorChange(result, op)
	case OpVertexPositionChange, OpVertexAttributeChange:
		return o.applyAttributeModOp(result, op, false)
	case OpUVModification:
		return o.applyAttributeModOp(result, op, true)
	case OpGeometryScale, OpGeometryRotate, OpGeometryTranslate, OpGeometryTransform:
		return o.applyTransform(result, op)
	case OpVertexSubset:
		return o.applyVertexSubset(result, op)
	case OpNormalRecalculation:
		return nil // specified only in name; treated as a documented no-op
	case OpChunkReplace:
		data, err := o.dataWindow(op)
		if err != nil {
			return err
		}
		name, _ := chunkNameOrEmpty(result, op.TargetChunk)
		result.AddChunk(op.TargetChunk, data, name)
		return nil
	case OpMaterialReplace:
		data, err := o.dataWindow(op)
		if err != nil {
			return err
		}
		name, _ := chunkNameOrEmpty(result, ChunkMaterial)
		result.AddChunk(ChunkMaterial, data, name)
		return nil
	case OpGeometryModify:
		data, err := o.dataWindow(op)
		if err != nil {
			return err
		}
		name, _ := chunkNameOrEmpty(result, ChunkGeometry)
		result.AddChunk(ChunkGeometry, data, name)
		return nil
	default:
		return errors.Wrapf(ErrOperation, "unknown overlay op type %d", op.Type)
	}
}

func chunkNameOrEmpty(a *Asset, tag ChunkTag) (string, bool) {
	for _, e := range a.Directory() {
		if e.Tag == tag {
			return fixedString(e.Name[:]), true
		}
	}
	return "", false
}

func (o *Overlay) applyShaderReplace(result *Asset, op overlayOp) error {
	payload, ok := result.GetChunkData(ChunkShader)
	if !ok {
		return errors.Wrapf(ErrOperation, "no shader chunk present")
	}
	parsed, err := ParseShaderPayload(payload)
	if err != nil {
		return err
	}
	newBlob, err := o.dataWindow(op)
	if err != nil {
		return err
	}

	found := -1
	for i, d := range parsed.Descriptors {
		if d.NameHash == op.TargetHash {
			found = i
			break
		}
	}
	if found < 0 {
		return errors.Wrapf(ErrOperation, "no shader descriptor with name hash 0x%016x", op.TargetHash)
	}

	parsed.Descriptors[found].SpirvSize = uint32(len(newBlob))
	parsed.Blobs[found] = newBlob

	rebuilt, err := BuildShaderPayload(parsed.Descriptors, parsed.Blobs)
	if err != nil {
		return err
	}
	name, _ := chunkNameOrEmpty(result, ChunkShader)
	result.AddChunk(ChunkShader, rebuilt, name)
	return nil
}

func (o *Overlay) applyVertexColorChange(result *Asset, op overlayOp) error {
	payload, ok := result.GetChunkData(ChunkGeometry)
	if !ok {
		return errors.Wrapf(ErrOperation, "no geometry chunk present")
	}
	parsed, err := ParseGeometryPayload(payload)
	if err != nil {
		return err
	}
	rgba, err := o.dataWindow(op)
	if err != nil {
		return err
	}
	if len(rgba) != 16 {
		return errors.Wrapf(ErrOperation, "vertex color change data is %d bytes, want 16", len(rgba))
	}

	vertexIndex := op.TargetHash
	vertexCount := uint64(parsed.Header.VertexCount)
	if vertexIndex >= vertexCount {
		return errors.Wrapf(ErrOperation, "vertex index %d >= vertex count %d", vertexIndex, vertexCount)
	}

	colorOffset := colorAttributeOffset(result.HasFeature(FeatureQuantizedCoords))
	stride := parsed.Header.VertexStride
	absolute := uint64(vertexIndex)*uint64(stride) + uint64(colorOffset)
	if absolute+16 > uint64(len(parsed.Vertices)) {
		return errors.Wrapf(ErrOperation, "vertex color write at %d..%d overruns vertex buffer of %d bytes", absolute, absolute+16, len(parsed.Vertices))
	}
	copy(parsed.Vertices[absolute:absolute+16], rgba)

	rebuilt, err := BuildGeometryPayload(parsed.Header, parsed.Vertices, parsed.Indices)
	if err != nil {
		return err
	}
	name, _ := chunkNameOrEmpty(result, ChunkGeometry)
	result.AddChunk(ChunkGeometry, rebuilt, name)
	return nil
}

// applyAttributeModOp handles VertexPositionChange, VertexAttributeChange
// and UVModification: all three decode a single attributeModification
// record and write it into one vertex (or every vertex, for
// AllVertices). useUVPolicy ignores the record's stored offset and
// derives it from the target's feature flags instead, per §4.4's UV
// policy; otherwise the record's own offset is used verbatim.
func (o *Overlay) applyAttributeModOp(result *Asset, op overlayOp, useUVPolicy bool) error {
	payload, ok := result.GetChunkData(ChunkGeometry)
	if !ok {
		return errors.Wrapf(ErrOperation, "no geometry chunk present")
	}
	parsed, err := ParseGeometryPayload(payload)
	if err != nil {
		return err
	}
	raw, err := o.dataWindow(op)
	if err != nil {
		return err
	}
	if len(raw) != attributeModificationSize {
		return errors.Wrapf(ErrOperation, "attribute modification data is %d bytes, want %d", len(raw), attributeModificationSize)
	}
	mod := unmarshalAttributeModification(raw)
	if useUVPolicy {
		mod.AttributeOffset = uvAttributeOffset(result.HasFeature(FeatureQuantizedCoords))
	}

	if err := applyAttributeModification(parsed.Vertices, parsed.Header.VertexStride, parsed.Header.VertexCount, mod); err != nil {
		return err
	}

	rebuilt, err := BuildGeometryPayload(parsed.Header, parsed.Vertices, parsed.Indices)
	if err != nil {
		return err
	}
	name, _ := chunkNameOrEmpty(result, ChunkGeometry)
	result.AddChunk(ChunkGeometry, rebuilt, name)
	return nil
}

func (o *Overlay) applyVertexSubset(result *Asset, op overlayOp) error {
	payload, ok := result.GetChunkData(ChunkGeometry)
	if !ok {
		return errors.Wrapf(ErrOperation, "no geometry chunk present")
	}
	parsed, err := ParseGeometryPayload(payload)
	if err != nil {
		return err
	}
	raw, err := o.dataWindow(op)
	if err != nil {
		return err
	}
	if len(raw) != 8+attributeModificationSize {
		return errors.Wrapf(ErrOperation, "vertex subset data is %d bytes, want %d", len(raw), 8+attributeModificationSize)
	}
	start := binary.LittleEndian.Uint32(raw[0:4])
	count := binary.LittleEndian.Uint32(raw[4:8])
	mod := unmarshalAttributeModification(raw[8:])

	end := uint64(start) + uint64(count)
	if count == AllVertices || end > uint64(parsed.Header.VertexCount) {
		end = uint64(parsed.Header.VertexCount)
	}
	for v := uint64(start); v < end; v++ {
		mod.VertexIndex = uint32(v)
		if err := applyAttributeModification(parsed.Vertices, parsed.Header.VertexStride, parsed.Header.VertexCount, mod); err != nil {
			return err
		}
	}

	rebuilt, err := BuildGeometryPayload(parsed.Header, parsed.Vertices, parsed.Indices)
	if err != nil {
		return err
	}
	name, _ := chunkNameOrEmpty(result, ChunkGeometry)
	result.AddChunk(ChunkGeometry, rebuilt, name)
	return nil
}

// applyAttributeModification writes mod into one vertex of vertices (or
// every vertex, when mod.VertexIndex == AllVertices).
func applyAttributeModification(vertices []byte, stride, vertexCount uint32, mod attributeModification) error {
	if mod.VertexIndex == AllVertices {
		for v := uint32(0); v < vertexCount; v++ {
			m := mod
			m.VertexIndex = v
			if err := writeAttribute(vertices, stride, m); err != nil {
				return err
			}
		}
		return nil
	}
	if mod.VertexIndex >= vertexCount {
		return errors.Wrapf(ErrOperation, "vertex index %d >= vertex count %d", mod.VertexIndex, vertexCount)
	}
	return writeAttribute(vertices, stride, mod)
}

func writeAttribute(vertices []byte, stride uint32, mod attributeModification) error {
	absolute := uint64(mod.VertexIndex)*uint64(stride) + uint64(mod.AttributeOffset)
	if absolute+uint64(mod.AttributeSize) > uint64(len(vertices)) {
		return errors.Wrapf(ErrOperation, "attribute write at %d..%d overruns vertex buffer of %d bytes",
			absolute, absolute+uint64(mod.AttributeSize), len(vertices))
	}
	n := int(mod.AttributeSize) / 4
	target := vertices[absolute : absolute+uint64(mod.AttributeSize)]

	switch mod.Op {
	case AttrOpReplace:
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(target[i*4:], math.Float32bits(mod.Values[i]))
		}
	case AttrOpAdd:
		for i := 0; i < n; i++ {
			cur := math.Float32frombits(binary.LittleEndian.Uint32(target[i*4:]))
			binary.LittleEndian.PutUint32(target[i*4:], math.Float32bits(cur+mod.Values[i]))
		}
	case AttrOpMultiply:
		for i := 0; i < n; i++ {
			cur := math.Float32frombits(binary.LittleEndian.Uint32(target[i*4:]))
			binary.LittleEndian.PutUint32(target[i*4:], math.Float32bits(cur*mod.Values[i]))
		}
	case AttrOpNormalize:
		vals := mod.Values[:n]
		var sumSquares float64
		for _, v := range vals {
			sumSquares += float64(v) * float64(v)
		}
		length := math.Sqrt(sumSquares)
		if length == 0 {
			length = 1
		}
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(target[i*4:], math.Float32bits(float32(float64(vals[i])/length)))
		}
	default:
		return errors.Wrapf(ErrOperation, "unknown attribute op discriminator %d", mod.Op)
	}
	return nil
}

func (o *Overlay) applyTransform(result *Asset, op overlayOp) error {
	payload, ok := result.GetChunkData(ChunkGeometry)
	if !ok {
		return errors.Wrapf(ErrOperation, "no geometry chunk present")
	}
	parsed, err := ParseGeometryPayload(payload)
	if err != nil {
		return err
	}
	raw, err := o.dataWindow(op)
	if err != nil {
		return err
	}
	if len(raw) != transformationDataSize {
		return errors.Wrapf(ErrOperation, "transformation data is %d bytes, want %d", len(raw), transformationDataSize)
	}
	td := unmarshalTransformationData(raw)

	stride := uint64(parsed.Header.VertexStride)
	vertexCount := uint64(parsed.Header.VertexCount)
	end := uint64(td.Start) + uint64(td.Count)
	if td.Count == AllVertices || end > vertexCount {
		end = vertexCount
	}
	transformNormals := td.Flags&TransformNormals != 0

	for v := uint64(td.Start); v < end; v++ {
		base := v * stride
		if base+12 > uint64(len(parsed.Vertices)) {
			return errors.Wrapf(ErrOperation, "transform touches vertex %d past end of vertex buffer", v)
		}
		px := readFloat32(parsed.Vertices, base)
		py := readFloat32(parsed.Vertices, base+4)
		pz := readFloat32(parsed.Vertices, base+8)
		ox, oy, oz := transformPointAffine(td.Matrix, px, py, pz)
		writeFloat32(parsed.Vertices, base, ox)
		writeFloat32(parsed.Vertices, base+4, oy)
		writeFloat32(parsed.Vertices, base+8, oz)

		if transformNormals {
			if base+24 > uint64(len(parsed.Vertices)) {
				return errors.Wrapf(ErrOperation, "normal transform touches vertex %d past end of vertex buffer", v)
			}
			nx := readFloat32(parsed.Vertices, base+12)
			ny := readFloat32(parsed.Vertices, base+16)
			nz := readFloat32(parsed.Vertices, base+20)
			tnx, tny, tnz := transformVectorLinear(td.Matrix, nx, ny, nz)
			tnx, tny, tnz = normalize3(tnx, tny, tnz)
			writeFloat32(parsed.Vertices, base+12, tnx)
			writeFloat32(parsed.Vertices, base+16, tny)
			writeFloat32(parsed.Vertices, base+20, tnz)
		}
	}

	rebuilt, err := BuildGeometryPayload(parsed.Header, parsed.Vertices, parsed.Indices)
	if err != nil {
		return err
	}
	name, _ := chunkNameOrEmpty(result, ChunkGeometry)
	result.AddChunk(ChunkGeometry, rebuilt, name)
	return nil
}

func readFloat32(b []byte, offset uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[offset:]))
}

func writeFloat32(b []byte, offset uint64, v float32) {
	binary.LittleEndian.PutUint32(b[offset:], math.Float32bits(v))
}

// transformPointAffine applies a row-major 4x4 matrix to (x,y,z,1).
func transformPointAffine(m [16]float32, x, y, z float32) (float32, float32, float32) {
	ox := m[0]*x + m[1]*y + m[2]*z + m[3]
	oy := m[4]*x + m[5]*y + m[6]*z + m[7]
	oz := m[8]*x + m[9]*y + m[10]*z + m[11]
	return ox, oy, oz
}

// transformVectorLinear applies only the matrix's upper-left 3x3 linear
// part, ignoring translation — the correct transform for directions.
func transformVectorLinear(m [16]float32, x, y, z float32) (float32, float32, float32) {
	ox := m[0]*x + m[1]*y + m[2]*z
	oy := m[4]*x + m[5]*y + m[6]*z
	oz := m[8]*x + m[9]*y + m[10]*z
	return ox, oy, oz
}

func normalize3(x, y, z float32) (float32, float32, float32) {
	length := math.Sqrt(float64(x*x + y*y + z*z))
	if length == 0 {
		return x, y, z
	}
	return float32(float64(x) / length), float32(float64(y) / length), float32(float64(z) / length)
}
