package taf

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// TextureFormat discriminates the pixel format of a font atlas texture.
type TextureFormat uint32

const (
	TextureFormatR8 TextureFormat = iota
	TextureFormatRGBA8
)

const fontHeaderSize = 4 /*glyph count*/ + 4 /*atlas width*/ + 4 /*atlas height*/ +
	4 /*texture format*/ + 4 /*sdf range*/ + 4 /*font size*/ +
	4 /*ascent*/ + 4 /*descent*/ + 4 /*line height*/ +
	4 /*codepoint range start*/ + 4 /*codepoint range end*/ +
	4 /*kerning pair count*/ + 4 /*glyph array offset*/ + 4 /*kerning array offset*/ + 4 /*texture offset*/

// FontHeader is the fixed leading record of a FONT chunk payload.
type FontHeader struct {
	GlyphCount       uint32
	AtlasWidth       uint32
	AtlasHeight      uint32
	TextureFormat    TextureFormat
	SDFRange         float32
	FontSize         float32
	Ascent           float32
	Descent          float32
	LineHeight       float32
	CodepointStart   uint32
	CodepointEnd     uint32
	KerningPairCount uint32
	GlyphArrayOffset uint32
	KerningArrayOffset uint32
	TextureOffset    uint32
}

func (h FontHeader) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, h.GlyphCount)
	_ = binary.Write(w, binary.LittleEndian, h.AtlasWidth)
	_ = binary.Write(w, binary.LittleEndian, h.AtlasHeight)
	_ = binary.Write(w, binary.LittleEndian, uint32(h.TextureFormat))
	_ = binary.Write(w, binary.LittleEndian, h.SDFRange)
	_ = binary.Write(w, binary.LittleEndian, h.FontSize)
	_ = binary.Write(w, binary.LittleEndian, h.Ascent)
	_ = binary.Write(w, binary.LittleEndian, h.Descent)
	_ = binary.Write(w, binary.LittleEndian, h.LineHeight)
	_ = binary.Write(w, binary.LittleEndian, h.CodepointStart)
	_ = binary.Write(w, binary.LittleEndian, h.CodepointEnd)
	_ = binary.Write(w, binary.LittleEndian, h.KerningPairCount)
	_ = binary.Write(w, binary.LittleEndian, h.GlyphArrayOffset)
	_ = binary.Write(w, binary.LittleEndian, h.KerningArrayOffset)
	_ = binary.Write(w, binary.LittleEndian, h.TextureOffset)
}

func unmarshalFontHeader(b []byte) FontHeader {
	r := bytes.NewReader(b[:fontHeaderSize])
	var h FontHeader
	var format uint32
	_ = binary.Read(r, binary.LittleEndian, &h.GlyphCount)
	_ = binary.Read(r, binary.LittleEndian, &h.AtlasWidth)
	_ = binary.Read(r, binary.LittleEndian, &h.AtlasHeight)
	_ = binary.Read(r, binary.LittleEndian, &format)
	h.TextureFormat = TextureFormat(format)
	_ = binary.Read(r, binary.LittleEndian, &h.SDFRange)
	_ = binary.Read(r, binary.LittleEndian, &h.FontSize)
	_ = binary.Read(r, binary.LittleEndian, &h.Ascent)
	_ = binary.Read(r, binary.LittleEndian, &h.Descent)
	_ = binary.Read(r, binary.LittleEndian, &h.LineHeight)
	_ = binary.Read(r, binary.LittleEndian, &h.CodepointStart)
	_ = binary.Read(r, binary.LittleEndian, &h.CodepointEnd)
	_ = binary.Read(r, binary.LittleEndian, &h.KerningPairCount)
	_ = binary.Read(r, binary.LittleEndian, &h.GlyphArrayOffset)
	_ = binary.Read(r, binary.LittleEndian, &h.KerningArrayOffset)
	_ = binary.Read(r, binary.LittleEndian, &h.TextureOffset)
	return h
}

const glyphRecordSize = 4 /*codepoint*/ + 4*4 /*uv rect*/ + 2*4 /*pixel size*/ + 2*4 /*bearing*/ + 4 /*advance*/

// Glyph describes one rasterized SDF glyph in the atlas.
type Glyph struct {
	Codepoint  uint32
	UMin, VMin float32
	UMax, VMax float32
	Width, Height float32
	BearingX, BearingY float32
	Advance float32
}

func (g Glyph) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, g.Codepoint)
	_ = binary.Write(w, binary.LittleEndian, g.UMin)
	_ = binary.Write(w, binary.LittleEndian, g.VMin)
	_ = binary.Write(w, binary.LittleEndian, g.UMax)
	_ = binary.Write(w, binary.LittleEndian, g.VMax)
	_ = binary.Write(w, binary.LittleEndian, g.Width)
	_ = binary.Write(w, binary.LittleEndian, g.Height)
	_ = binary.Write(w, binary.LittleEndian, g.BearingX)
	_ = binary.Write(w, binary.LittleEndian, g.BearingY)
	_ = binary.Write(w, binary.LittleEndian, g.Advance)
}

func unmarshalGlyph(b []byte) Glyph {
	r := bytes.NewReader(b[:glyphRecordSize])
	var g Glyph
	_ = binary.Read(r, binary.LittleEndian, &g.Codepoint)
	_ = binary.Read(r, binary.LittleEndian, &g.UMin)
	_ = binary.Read(r, binary.LittleEndian, &g.VMin)
	_ = binary.Read(r, binary.LittleEndian, &g.UMax)
	_ = binary.Read(r, binary.LittleEndian, &g.VMax)
	_ = binary.Read(r, binary.LittleEndian, &g.Width)
	_ = binary.Read(r, binary.LittleEndian, &g.Height)
	_ = binary.Read(r, binary.LittleEndian, &g.BearingX)
	_ = binary.Read(r, binary.LittleEndian, &g.BearingY)
	_ = binary.Read(r, binary.LittleEndian, &g.Advance)
	return g
}

const kerningPairRecordSize = 4 + 4 + 4 // left codepoint, right codepoint, adjustment

// KerningPair adjusts advance width for a specific glyph pair.
type KerningPair struct {
	Left, Right uint32
	Adjustment  float32
}

func (k KerningPair) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, k.Left)
	_ = binary.Write(w, binary.LittleEndian, k.Right)
	_ = binary.Write(w, binary.LittleEndian, k.Adjustment)
}

func unmarshalKerningPair(b []byte) KerningPair {
	r := bytes.NewReader(b[:kerningPairRecordSize])
	var k KerningPair
	_ = binary.Read(r, binary.LittleEndian, &k.Left)
	_ = binary.Read(r, binary.LittleEndian, &k.Right)
	_ = binary.Read(r, binary.LittleEndian, &k.Adjustment)
	return k
}

// BuildFontPayload assembles a FONT chunk payload: header, glyph array,
// optional kerning-pair array, then the R8 (or RGBA8) SDF atlas bytes.
// Offsets inside the header are computed from the section sizes.
func BuildFontPayload(h FontHeader, glyphs []Glyph, kerning []KerningPair, atlas []byte) ([]byte, error) {
	h.GlyphCount = uint32(len(glyphs))
	h.KerningPairCount = uint32(len(kerning))

	h.GlyphArrayOffset = fontHeaderSize
	h.KerningArrayOffset = h.GlyphArrayOffset + uint32(len(glyphs))*glyphRecordSize
	h.TextureOffset = h.KerningArrayOffset + uint32(len(kerning))*kerningPairRecordSize

	bpp := 1
	if h.TextureFormat == TextureFormatRGBA8 {
		bpp = 4
	}
	wantAtlasBytes := int(h.AtlasWidth) * int(h.AtlasHeight) * bpp
	if len(atlas) != wantAtlasBytes {
		return nil, errors.Errorf("font: atlas is %d bytes, want width*height*bpp = %d", len(atlas), wantAtlasBytes)
	}

	buf := new(bytes.Buffer)
	h.marshal(buf)
	for _, g := range glyphs {
		g.marshal(buf)
	}
	for _, k := range kerning {
		k.marshal(buf)
	}
	buf.Write(atlas)
	return buf.Bytes(), nil
}

// ParsedFont is the decoded form of a FONT chunk payload.
type ParsedFont struct {
	Header  FontHeader
	Glyphs  []Glyph
	Kerning []KerningPair
	Atlas   []byte
}

// ParseFontPayload decodes a FONT chunk payload produced by
// BuildFontPayload.
func ParseFontPayload(payload []byte) (*ParsedFont, error) {
	if len(payload) < fontHeaderSize {
		return nil, errors.Wrapf(ErrValidation, "font payload too small: %d bytes", len(payload))
	}
	h := unmarshalFontHeader(payload[:fontHeaderSize])

	glyphsEnd := int(h.GlyphArrayOffset) + int(h.GlyphCount)*glyphRecordSize
	kerningEnd := int(h.KerningArrayOffset) + int(h.KerningPairCount)*kerningPairRecordSize
	if glyphsEnd > len(payload) || kerningEnd > len(payload) || int(h.TextureOffset) > len(payload) {
		return nil, errors.Wrapf(ErrValidation, "font payload offsets out of bounds (len=%d)", len(payload))
	}

	glyphs := make([]Glyph, h.GlyphCount)
	for i := range glyphs {
		start := int(h.GlyphArrayOffset) + i*glyphRecordSize
		glyphs[i] = unmarshalGlyph(payload[start : start+glyphRecordSize])
	}

	kerning := make([]KerningPair, h.KerningPairCount)
	for i := range kerning {
		start := int(h.KerningArrayOffset) + i*kerningPairRecordSize
		kerning[i] = unmarshalKerningPair(payload[start : start+kerningPairRecordSize])
	}

	atlas := make([]byte, len(payload)-int(h.TextureOffset))
	copy(atlas, payload[h.TextureOffset:])

	return &ParsedFont{Header: h, Glyphs: glyphs, Kerning: kerning, Atlas: atlas}, nil
}
