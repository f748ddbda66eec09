package taf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaterialPayloadRoundTrip(t *testing.T) {
	materials := []Material{
		{
			Name:             nameField("concrete"),
			Albedo:           [4]float32{0.5, 0.5, 0.5, 1},
			Metallic:         0,
			Roughness:        0.9,
			AlbedoTexture:    0,
			NormalTexture:    1,
			MetallicTexture:  AbsentTexture,
			RoughnessTexture: AbsentTexture,
			EmissionTexture:  AbsentTexture,
			Flags:            uint32(MaterialFlagDoubleSided),
		},
		{
			Name:            nameField("glass"),
			Albedo:          [4]float32{1, 1, 1, 0.2},
			AlphaCutoff:     0.1,
			AlbedoTexture:   AbsentTexture,
			NormalTexture:   AbsentTexture,
			MetallicTexture: AbsentTexture,
			RoughnessTexture: AbsentTexture,
			EmissionTexture: AbsentTexture,
			Flags:           uint32(MaterialFlagAlphaBlend),
		},
	}

	payload := BuildMaterialPayload(materials)
	got, err := ParseMaterialPayload(payload)
	require.NoError(t, err)
	require.Equal(t, materials, got)
}

func TestMaterialAbsentTextureIsMaxUint32(t *testing.T) {
	require.EqualValues(t, 0xFFFFFFFF, AbsentTexture)
}

func TestParseMaterialPayloadRejectsSizeMismatch(t *testing.T) {
	payload := BuildMaterialPayload([]Material{{}})
	_, err := ParseMaterialPayload(payload[:len(payload)-1])
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseMaterialPayloadRejectsTruncatedHeader(t *testing.T) {
	_, err := ParseMaterialPayload(make([]byte, 2))
	require.ErrorIs(t, err, ErrValidation)
}

