package taf

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// AbsentTexture marks a texture-index slot as unset.
const AbsentTexture uint32 = math.MaxUint32

// MaterialFlag is a bitmask of per-material rendering hints.
type MaterialFlag uint32

const (
	MaterialFlagDoubleSided MaterialFlag = 1 << iota
	MaterialFlagAlphaBlend
	MaterialFlagUnlit
)

const materialHeaderSize = 4 /*count*/ + 4 /*reserved*/

// materialRecordSize: name(32) + albedo(4 floats=16) + emission(3
// floats=12) + metallic/roughness/normal-intensity/alpha-cutoff(4
// floats=16) + 5 texture indices(20) + flags(4).
const materialRecordSize = 32 + 16 + 12 + 16 + 20 + 4

// Material is one PBR material record.
type Material struct {
	Name               [32]byte
	Albedo             [4]float32
	Emission           [3]float32
	Metallic           float32
	Roughness          float32
	NormalIntensity    float32
	AlphaCutoff        float32
	AlbedoTexture      uint32
	NormalTexture      uint32
	MetallicTexture    uint32
	RoughnessTexture   uint32
	EmissionTexture    uint32
	Flags              uint32
}

func (m Material) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, m.Name)
	_ = binary.Write(w, binary.LittleEndian, m.Albedo)
	_ = binary.Write(w, binary.LittleEndian, m.Emission)
	_ = binary.Write(w, binary.LittleEndian, m.Metallic)
	_ = binary.Write(w, binary.LittleEndian, m.Roughness)
	_ = binary.Write(w, binary.LittleEndian, m.NormalIntensity)
	_ = binary.Write(w, binary.LittleEndian, m.AlphaCutoff)
	_ = binary.Write(w, binary.LittleEndian, m.AlbedoTexture)
	_ = binary.Write(w, binary.LittleEndian, m.NormalTexture)
	_ = binary.Write(w, binary.LittleEndian, m.MetallicTexture)
	_ = binary.Write(w, binary.LittleEndian, m.RoughnessTexture)
	_ = binary.Write(w, binary.LittleEndian, m.EmissionTexture)
	_ = binary.Write(w, binary.LittleEndian, m.Flags)
}

func unmarshalMaterial(b []byte) Material {
	r := bytes.NewReader(b[:materialRecordSize])
	var m Material
	_ = binary.Read(r, binary.LittleEndian, &m.Name)
	_ = binary.Read(r, binary.LittleEndian, &m.Albedo)
	_ = binary.Read(r, binary.LittleEndian, &m.Emission)
	_ = binary.Read(r, binary.LittleEndian, &m.Metallic)
	_ = binary.Read(r, binary.LittleEndian, &m.Roughness)
	_ = binary.Read(r, binary.LittleEndian, &m.NormalIntensity)
	_ = binary.Read(r, binary.LittleEndian, &m.AlphaCutoff)
	_ = binary.Read(r, binary.LittleEndian, &m.AlbedoTexture)
	_ = binary.Read(r, binary.LittleEndian, &m.NormalTexture)
	_ = binary.Read(r, binary.LittleEndian, &m.MetallicTexture)
	_ = binary.Read(r, binary.LittleEndian, &m.RoughnessTexture)
	_ = binary.Read(r, binary.LittleEndian, &m.EmissionTexture)
	_ = binary.Read(r, binary.LittleEndian, &m.Flags)
	return m
}

// BuildMaterialPayload assembles an MTRL chunk payload.
func BuildMaterialPayload(materials []Material) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(materialHeaderSize + len(materials)*materialRecordSize)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(materials)))
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))
	for _, m := range materials {
		m.marshal(buf)
	}
	return buf.Bytes()
}

// ParseMaterialPayload decodes an MTRL chunk payload.
func ParseMaterialPayload(payload []byte) ([]Material, error) {
	if len(payload) < materialHeaderSize {
		return nil, errors.Wrapf(ErrValidation, "material payload too small: %d bytes", len(payload))
	}
	count := int(binary.LittleEndian.Uint32(payload))
	want := materialHeaderSize + count*materialRecordSize
	if count < 0 || want != len(payload) {
		return nil, errors.Wrapf(ErrValidation, "material payload size %d, want %d for count %d", len(payload), want, count)
	}
	out := make([]Material, count)
	for i := 0; i < count; i++ {
		start := materialHeaderSize + i*materialRecordSize
		out[i] = unmarshalMaterial(payload[start : start+materialRecordSize])
	}
	return out, nil
}
