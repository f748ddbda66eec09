package taf

import (
	"bytes"
	"encoding/binary"
	"math"
)

// AttrOp discriminates how an AttributeModification's values combine with
// the existing attribute bytes.
type AttrOp uint32

const (
	AttrOpReplace AttrOp = iota
	AttrOpAdd
	AttrOpMultiply
	AttrOpNormalize
)

// AllVertices marks an AttributeModification or vertex range as applying
// to every vertex rather than one.
const AllVertices uint32 = math.MaxUint32

const attributeModificationSize = 4 /*offset*/ + 4 /*size*/ + 4 /*vertex index*/ + 4 /*op*/ + 4*4 /*values*/

// attributeModification is the data-blob record behind
// VertexPositionChange, VertexAttributeChange (including AddNormalChange's
// normal write), UVModification, and the per-vertex step of VertexSubset.
type attributeModification struct {
	AttributeOffset uint32
	AttributeSize   uint32
	VertexIndex     uint32
	Op              AttrOp
	Values          [4]float32
}

func (m attributeModification) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(attributeModificationSize)
	_ = binary.Write(buf, binary.LittleEndian, m.AttributeOffset)
	_ = binary.Write(buf, binary.LittleEndian, m.AttributeSize)
	_ = binary.Write(buf, binary.LittleEndian, m.VertexIndex)
	_ = binary.Write(buf, binary.LittleEndian, uint32(m.Op))
	_ = binary.Write(buf, binary.LittleEndian, m.Values)
	return buf.Bytes()
}

func unmarshalAttributeModification(b []byte) attributeModification {
	r := bytes.NewReader(b[:attributeModificationSize])
	var m attributeModification
	var op uint32
	_ = binary.Read(r, binary.LittleEndian, &m.AttributeOffset)
	_ = binary.Read(r, binary.LittleEndian, &m.AttributeSize)
	_ = binary.Read(r, binary.LittleEndian, &m.VertexIndex)
	_ = binary.Read(r, binary.LittleEndian, &op)
	m.Op = AttrOp(op)
	_ = binary.Read(r, binary.LittleEndian, &m.Values)
	return m
}

const transformationDataSize = 16*4 /*matrix*/ + 4 /*flags*/ + 4 /*start*/ + 4 /*count*/

// Transform flag bits for TransformationData.Flags.
const (
	TransformPositions uint32 = 1 << 0
	TransformNormals   uint32 = 1 << 1
)

// transformationData is the data-blob record behind GeometryScale/
// Rotate/Translate/Transform.
type transformationData struct {
	Matrix [16]float32 // row-major 4x4
	Flags  uint32
	Start  uint32
	Count  uint32 // AllVertices means "to vertex_count"
}

func (t transformationData) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(transformationDataSize)
	_ = binary.Write(buf, binary.LittleEndian, t.Matrix)
	_ = binary.Write(buf, binary.LittleEndian, t.Flags)
	_ = binary.Write(buf, binary.LittleEndian, t.Start)
	_ = binary.Write(buf, binary.LittleEndian, t.Count)
	return buf.Bytes()
}

func unmarshalTransformationData(b []byte) transformationData {
	r := bytes.NewReader(b[:transformationDataSize])
	var t transformationData
	_ = binary.Read(r, binary.LittleEndian, &t.Matrix)
	_ = binary.Read(r, binary.LittleEndian, &t.Flags)
	_ = binary.Read(r, binary.LittleEndian, &t.Start)
	_ = binary.Read(r, binary.LittleEndian, &t.Count)
	return t
}

func identityMatrix() [16]float32 {
	return [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// scaleMatrix returns a row-major 4x4 affine scale matrix.
func scaleMatrix(sx, sy, sz float32) [16]float32 {
	m := identityMatrix()
	m[0], m[5], m[10] = sx, sy, sz
	return m
}

// translationMatrix returns a row-major 4x4 affine translation matrix.
func translationMatrix(tx, ty, tz float32) [16]float32 {
	m := identityMatrix()
	m[3], m[7], m[11] = tx, ty, tz
	return m
}

// rotationMatrix returns a row-major 4x4 affine rotation matrix built from
// an axis-angle pair via Rodrigues' rotation formula. axis is normalized
// internally; angleRadians is the rotation angle.
func rotationMatrix(axisX, axisY, axisZ, angleRadians float32) [16]float32 {
	length := math.Sqrt(float64(axisX*axisX + axisY*axisY + axisZ*axisZ))
	if length == 0 {
		return identityMatrix()
	}
	x := float64(axisX) / length
	y := float64(axisY) / length
	z := float64(axisZ) / length

	s := math.Sin(float64(angleRadians))
	c := math.Cos(float64(angleRadians))
	t := 1 - c

	m := identityMatrix()
	m[0] = float32(t*x*x + c)
	m[1] = float32(t*x*y - s*z)
	m[2] = float32(t*x*z + s*y)
	m[4] = float32(t*x*y + s*z)
	m[5] = float32(t*y*y + c)
	m[6] = float32(t*y*z - s*x)
	m[8] = float32(t*x*z - s*y)
	m[9] = float32(t*y*z + s*x)
	m[10] = float32(t*z*z + c)
	return m
}

// AddShaderReplacement appends a ShaderReplace op whose data window holds
// spirv, targeting the shader descriptor whose name hash equals
// targetHash.
func (o *Overlay) AddShaderReplacement(targetHash, replacementHash uint64, spirv []byte) {
	offset, size := appendToDataBlob(o, spirv)
	o.ops = append(o.ops, overlayOp{
		Type:            OpShaderReplace,
		TargetChunk:     ChunkShader,
		TargetHash:      targetHash,
		ReplacementHash: replacementHash,
		DataOffset:      offset,
		DataSize:        size,
	})
}

// AddVertexColorChange appends a VertexColorChange op. TargetHash carries
// the vertex index, reinterpreted per §4.4.
func (o *Overlay) AddVertexColorChange(vertexIndex uint32, r, g, b, a float32) {
	buf := new(bytes.Buffer)
	buf.Grow(16)
	_ = binary.Write(buf, binary.LittleEndian, [4]float32{r, g, b, a})
	offset, size := appendToDataBlob(o, buf.Bytes())
	o.ops = append(o.ops, overlayOp{
		Type:        OpVertexColorChange,
		TargetChunk: ChunkGeometry,
		TargetHash:  uint64(vertexIndex),
		DataOffset:  offset,
		DataSize:    size,
	})
}

// AddVertexPositionChange appends a VertexPositionChange op writing a new
// 3-float position at vertexIndex's position attribute (offset 0).
func (o *Overlay) AddVertexPositionChange(vertexIndex uint32, x, y, z float32) {
	o.addAttributeOp(OpVertexPositionChange, attributeModification{
		AttributeOffset: 0,
		AttributeSize:   12,
		VertexIndex:     vertexIndex,
		Op:              AttrOpReplace,
		Values:          [4]float32{x, y, z, 0},
	})
}

// AddNormalChange appends a VertexAttributeChange op targeting the
// 3-float normal attribute (offset 12), optionally re-normalizing after
// write.
func (o *Overlay) AddNormalChange(vertexIndex uint32, nx, ny, nz float32, normalize bool) {
	op := AttrOpReplace
	if normalize {
		op = AttrOpNormalize
	}
	o.addAttributeOp(OpVertexAttributeChange, attributeModification{
		AttributeOffset: 12,
		AttributeSize:   12,
		VertexIndex:     vertexIndex,
		Op:              op,
		Values:          [4]float32{nx, ny, nz, 0},
	})
}

// AddUVModification appends a UVModification op targeting the 2-float UV
// attribute, negating either component first when flipU/flipV are set.
// The record stores the quantized-coordinate offset (byte 52); Apply
// replaces it with the target's feature-flag policy offset (40 or 52).
func (o *Overlay) AddUVModification(vertexIndex uint32, u, v float32, flipU, flipV bool) {
	if flipU {
		u = -u
	}
	if flipV {
		v = -v
	}
	o.addAttributeOp(OpUVModification, attributeModification{
		AttributeOffset: uvAttributeOffsetQuantized,
		AttributeSize:   8,
		VertexIndex:     vertexIndex,
		Op:              AttrOpReplace,
		Values:          [4]float32{u, v, 0, 0},
	})
}

// AddSubsetColorChange appends a VertexSubset op applying a uniform color
// write to every vertex in [start, start+count).
func (o *Overlay) AddSubsetColorChange(start, count uint32, r, g, b, a float32) {
	buf := new(bytes.Buffer)
	buf.Grow(8 + attributeModificationSize)
	_ = binary.Write(buf, binary.LittleEndian, start)
	_ = binary.Write(buf, binary.LittleEndian, count)
	mod := attributeModification{
		AttributeOffset: colorAttributeOffsetQuantized,
		AttributeSize:   16,
		VertexIndex:     AllVertices,
		Op:              AttrOpReplace,
		Values:          [4]float32{r, g, b, a},
	}
	buf.Write(mod.marshal())
	offset, size := appendToDataBlob(o, buf.Bytes())
	o.ops = append(o.ops, overlayOp{
		Type:        OpVertexSubset,
		TargetChunk: ChunkGeometry,
		DataOffset:  offset,
		DataSize:    size,
	})
}

func (o *Overlay) addAttributeOp(opType OverlayOpType, mod attributeModification) {
	offset, size := appendToDataBlob(o, mod.marshal())
	o.ops = append(o.ops, overlayOp{
		Type:        opType,
		TargetChunk: ChunkGeometry,
		TargetHash:  uint64(mod.VertexIndex),
		DataOffset:  offset,
		DataSize:    size,
	})
}

func (o *Overlay) addTransformOp(opType OverlayOpType, td transformationData) {
	offset, size := appendToDataBlob(o, td.marshal())
	o.ops = append(o.ops, overlayOp{
		Type:        opType,
		TargetChunk: ChunkGeometry,
		DataOffset:  offset,
		DataSize:    size,
	})
}

// AddScaleOperation appends a GeometryScale op applying (sx,sy,sz) to
// vertices [start, start+count); count == AllVertices means every vertex.
// transformNormals also applies the matrix's linear part to normals.
func (o *Overlay) AddScaleOperation(sx, sy, sz float32, start, count uint32, transformNormals bool) {
	o.addTransformOp(OpGeometryScale, transformationData{
		Matrix: scaleMatrix(sx, sy, sz),
		Flags:  transformFlags(transformNormals),
		Start:  start,
		Count:  count,
	})
}

// AddRotationOperation appends a GeometryRotate op built via Rodrigues'
// formula from an axis-angle pair.
func (o *Overlay) AddRotationOperation(axisX, axisY, axisZ, angleRadians float32, start, count uint32, transformNormals bool) {
	o.addTransformOp(OpGeometryRotate, transformationData{
		Matrix: rotationMatrix(axisX, axisY, axisZ, angleRadians),
		Flags:  transformFlags(transformNormals),
		Start:  start,
		Count:  count,
	})
}

// AddTranslationOperation appends a GeometryTranslate op.
func (o *Overlay) AddTranslationOperation(tx, ty, tz float32, start, count uint32) {
	o.addTransformOp(OpGeometryTranslate, transformationData{
		Matrix: translationMatrix(tx, ty, tz),
		Flags:  TransformPositions,
		Start:  start,
		Count:  count,
	})
}

// AddGeometryTransform appends a GeometryTransform op carrying an
// arbitrary caller-supplied row-major 4x4 matrix.
func (o *Overlay) AddGeometryTransform(matrix [16]float32, start, count uint32, transformNormals bool) {
	o.addTransformOp(OpGeometryTransform, transformationData{
		Matrix: matrix,
		Flags:  transformFlags(transformNormals),
		Start:  start,
		Count:  count,
	})
}

func transformFlags(transformNormals bool) uint32 {
	flags := TransformPositions
	if transformNormals {
		flags |= TransformNormals
	}
	return flags
}

// AddChunkReplace appends a wholesale-replacement op for any chunk tag.
func (o *Overlay) AddChunkReplace(tag ChunkTag, replacement []byte) {
	offset, size := appendToDataBlob(o, replacement)
	o.ops = append(o.ops, overlayOp{
		Type:        OpChunkReplace,
		TargetChunk: tag,
		DataOffset:  offset,
		DataSize:    size,
	})
}

// AddMaterialReplace appends a wholesale MTRL payload replacement.
func (o *Overlay) AddMaterialReplace(replacement []byte) {
	offset, size := appendToDataBlob(o, replacement)
	o.ops = append(o.ops, overlayOp{
		Type:        OpMaterialReplace,
		TargetChunk: ChunkMaterial,
		DataOffset:  offset,
		DataSize:    size,
	})
}

// AddGeometryModify appends a wholesale GEOM payload replacement.
func (o *Overlay) AddGeometryModify(replacement []byte) {
	offset, size := appendToDataBlob(o, replacement)
	o.ops = append(o.ops, overlayOp{
		Type:        OpGeometryModify,
		TargetChunk: ChunkGeometry,
		DataOffset:  offset,
		DataSize:    size,
	})
}

// AddNormalRecalculation appends a NormalRecalculation op. Per §4.4 this
// operation is specified only in name; Apply treats it as a no-op marker
// that still round-trips through save/load.
func (o *Overlay) AddNormalRecalculation() {
	o.ops = append(o.ops, overlayOp{Type: OpNormalRecalculation, TargetChunk: ChunkGeometry})
}

// Vertex-attribute byte offsets under the quantized-coordinate feature
// flag policy (§4.4 edge cases): position(24)+normal(12) = 36 for color
// under quantized coords, 24 without; UV sits right after the 16-byte
// color (24+16 = 40, 36+16 = 52), so it differs by that same 12-byte
// quantization delta.
const (
	colorAttributeOffsetUnquantized = 24
	colorAttributeOffsetQuantized   = 36
	uvAttributeOffsetUnquantized    = 40
	uvAttributeOffsetQuantized      = 52
)

func colorAttributeOffset(quantized bool) uint32 {
	if quantized {
		return colorAttributeOffsetQuantized
	}
	return colorAttributeOffsetUnquantized
}

func uvAttributeOffset(quantized bool) uint32 {
	if quantized {
		return uvAttributeOffsetQuantized
	}
	return uvAttributeOffsetUnquantized
}
