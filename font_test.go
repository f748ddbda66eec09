package taf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFontPayloadRoundTrip(t *testing.T) {
	header := FontHeader{
		AtlasWidth:     64,
		AtlasHeight:    64,
		TextureFormat:  TextureFormatR8,
		SDFRange:       4,
		FontSize:       32,
		Ascent:         28,
		Descent:        -8,
		LineHeight:     36,
		CodepointStart: 32,
		CodepointEnd:   126,
	}
	glyphs := []Glyph{
		{Codepoint: 'A', UMin: 0, VMin: 0, UMax: 0.1, VMax: 0.1, Width: 10, Height: 12, BearingX: 1, BearingY: 11, Advance: 12},
		{Codepoint: 'B', UMin: 0.1, VMin: 0, UMax: 0.2, VMax: 0.1, Width: 9, Height: 12, BearingX: 1, BearingY: 11, Advance: 11},
	}
	kerning := []KerningPair{{Left: 'A', Right: 'B', Adjustment: -0.5}}
	atlas := make([]byte, 64*64)
	for i := range atlas {
		atlas[i] = byte(i)
	}

	payload, err := BuildFontPayload(header, glyphs, kerning, atlas)
	require.NoError(t, err)

	parsed, err := ParseFontPayload(payload)
	require.NoError(t, err)
	require.EqualValues(t, 2, parsed.Header.GlyphCount)
	require.EqualValues(t, 1, parsed.Header.KerningPairCount)
	require.Equal(t, glyphs, parsed.Glyphs)
	require.Equal(t, kerning, parsed.Kerning)
	require.Equal(t, atlas, parsed.Atlas)
}

func TestFontPayloadRGBA8Atlas(t *testing.T) {
	header := FontHeader{AtlasWidth: 4, AtlasHeight: 4, TextureFormat: TextureFormatRGBA8}
	atlas := make([]byte, 4*4*4)
	payload, err := BuildFontPayload(header, nil, nil, atlas)
	require.NoError(t, err)

	parsed, err := ParseFontPayload(payload)
	require.NoError(t, err)
	require.Len(t, parsed.Atlas, len(atlas))
}

func TestBuildFontPayloadRejectsAtlasSizeMismatch(t *testing.T) {
	header := FontHeader{AtlasWidth: 4, AtlasHeight: 4, TextureFormat: TextureFormatR8}
	_, err := BuildFontPayload(header, nil, nil, make([]byte, 4))
	require.Error(t, err)
}

func TestParseFontPayloadRejectsOutOfBoundsGlyphTable(t *testing.T) {
	header := FontHeader{AtlasWidth: 1, AtlasHeight: 1, TextureFormat: TextureFormatR8}
	payload, err := BuildFontPayload(header, []Glyph{{Codepoint: 'A'}}, nil, make([]byte, 1))
	require.NoError(t, err)

	// Truncate mid-way through the glyph table: TextureOffset and
	// KerningArrayOffset both now exceed the (shorter) payload length.
	_, err = ParseFontPayload(payload[:fontHeaderSize+glyphRecordSize/2])
	require.ErrorIs(t, err, ErrValidation)
}
