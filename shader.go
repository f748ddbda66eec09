package taf

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ShaderStage discriminates a SHDR descriptor's pipeline stage.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
	ShaderStageGeometry
	ShaderStageCompute
	ShaderStageMeshShader
	ShaderStageTaskShader
)

// spirvMagic is the 32-bit little-endian SPIR-V magic word every shader
// blob must begin with.
const spirvMagic uint32 = 0x07230203

const shaderHeaderSize = 4 /*count*/ + 4 /*reserved*/
const shaderDescriptorSize = 8 /*name hash*/ + 8 /*entry point hash*/ + 4 /*stage*/ +
	4 /*spirv size*/ + 4 /*mesh shader max output vertices*/ + 4 /*mesh shader max output primitives*/

// ShaderDescriptor describes one embedded SPIR-V module.
type ShaderDescriptor struct {
	NameHash       uint64
	EntryPointHash uint64
	Stage          ShaderStage
	SpirvSize      uint32

	// MeshShaderMaxOutputVertices/Primitives are only meaningful when
	// Stage is ShaderStageMeshShader or ShaderStageTaskShader.
	MeshShaderMaxOutputVertices   uint32
	MeshShaderMaxOutputPrimitives uint32
}

func (d ShaderDescriptor) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, d.NameHash)
	_ = binary.Write(w, binary.LittleEndian, d.EntryPointHash)
	_ = binary.Write(w, binary.LittleEndian, uint32(d.Stage))
	_ = binary.Write(w, binary.LittleEndian, d.SpirvSize)
	_ = binary.Write(w, binary.LittleEndian, d.MeshShaderMaxOutputVertices)
	_ = binary.Write(w, binary.LittleEndian, d.MeshShaderMaxOutputPrimitives)
}

func unmarshalShaderDescriptor(b []byte) ShaderDescriptor {
	r := bytes.NewReader(b[:shaderDescriptorSize])
	var d ShaderDescriptor
	var stage uint32
	_ = binary.Read(r, binary.LittleEndian, &d.NameHash)
	_ = binary.Read(r, binary.LittleEndian, &d.EntryPointHash)
	_ = binary.Read(r, binary.LittleEndian, &stage)
	d.Stage = ShaderStage(stage)
	_ = binary.Read(r, binary.LittleEndian, &d.SpirvSize)
	_ = binary.Read(r, binary.LittleEndian, &d.MeshShaderMaxOutputVertices)
	_ = binary.Read(r, binary.LittleEndian, &d.MeshShaderMaxOutputPrimitives)
	return d
}

// BuildShaderPayload assembles a SHDR chunk payload: header (shader
// count), one descriptor per shader, then all SPIR-V blobs concatenated
// in descriptor order. Each blob must start with spirvMagic and have a
// length that is a multiple of 4.
func BuildShaderPayload(descriptors []ShaderDescriptor, blobs [][]byte) ([]byte, error) {
	if len(descriptors) != len(blobs) {
		return nil, errors.Errorf("shader: %d descriptors but %d blobs", len(descriptors), len(blobs))
	}

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(descriptors)))
	_ = binary.Write(buf, binary.LittleEndian, uint32(0)) // reserved

	for i, blob := range blobs {
		if len(blob)%4 != 0 {
			return nil, errors.Errorf("shader blob %d: size %d is not a multiple of 4", i, len(blob))
		}
		if len(blob) < 4 || binary.LittleEndian.Uint32(blob) != spirvMagic {
			return nil, errors.Errorf("shader blob %d: missing SPIR-V magic", i)
		}
		if descriptors[i].SpirvSize != uint32(len(blob)) {
			return nil, errors.Errorf("shader descriptor %d declares spirv_size %d but blob is %d bytes", i, descriptors[i].SpirvSize, len(blob))
		}
	}

	for _, d := range descriptors {
		d.marshal(buf)
	}
	for _, blob := range blobs {
		buf.Write(blob)
	}
	return buf.Bytes(), nil
}

// ParsedShaders is the decoded form of a SHDR chunk payload.
type ParsedShaders struct {
	Descriptors []ShaderDescriptor
	Blobs       [][]byte
}

// ParseShaderPayload decodes a SHDR chunk payload produced by
// BuildShaderPayload. A declared shader count that would make the
// descriptor table overrun the payload is rejected with ErrValidation.
func ParseShaderPayload(payload []byte) (*ParsedShaders, error) {
	if len(payload) < shaderHeaderSize {
		return nil, errors.Wrapf(ErrValidation, "shader payload too small: %d bytes", len(payload))
	}
	count := int(binary.LittleEndian.Uint32(payload))

	descTableEnd := shaderHeaderSize + count*shaderDescriptorSize
	if count < 0 || descTableEnd > len(payload) {
		return nil, errors.Wrapf(ErrValidation, "shader count %d would overrun payload of %d bytes", count, len(payload))
	}

	descriptors := make([]ShaderDescriptor, count)
	for i := 0; i < count; i++ {
		start := shaderHeaderSize + i*shaderDescriptorSize
		descriptors[i] = unmarshalShaderDescriptor(payload[start : start+shaderDescriptorSize])
	}

	blobs := make([][]byte, count)
	cursor := descTableEnd
	for i, d := range descriptors {
		end := cursor + int(d.SpirvSize)
		if end > len(payload) {
			return nil, errors.Wrapf(ErrValidation, "shader blob %d extends past payload end", i)
		}
		blob := make([]byte, d.SpirvSize)
		copy(blob, payload[cursor:end])
		blobs[i] = blob
		cursor = end
	}

	return &ParsedShaders{Descriptors: descriptors, Blobs: blobs}, nil
}

// littleEndianUint32 reads a uint32 from the start of b, for the
// diagnostic-only SPIR-V magic check in save.go. It returns 0 if b is too
// short, which never matches spirvMagic.
func littleEndianUint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
