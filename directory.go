package taf

import (
	"bytes"
	"encoding/binary"
)

// ChunkTag is a 32-bit FourCC: four ASCII bytes interpreted as a
// little-endian uint32, i.e. fourCC("GEOM") has 'G' in the lowest byte.
type ChunkTag uint32

func fourCC(s string) ChunkTag {
	b := [4]byte{}
	copy(b[:], s)
	return ChunkTag(binary.LittleEndian.Uint32(b[:]))
}

func (t ChunkTag) String() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

// Chunk tags defined by §4.2.
var (
	ChunkGeometry    = fourCC("GEOM")
	ChunkMaterial    = fourCC("MTRL")
	ChunkShader      = fourCC("SHDR")
	ChunkTexture     = fourCC("TXTR")
	ChunkAnimation   = fourCC("ANIM")
	ChunkScript      = fourCC("SCPT")
	ChunkPhysics     = fourCC("PHYS")
	ChunkAudio       = fourCC("AUDI")
	ChunkFont        = fourCC("FONT")
	ChunkOverlay     = fourCC("OVRL")
	ChunkOverlayData = fourCC("CHKO")
	ChunkFracture    = fourCC("FRAC")
	ChunkParticle    = fourCC("PART")
	ChunkVectorUI    = fourCC("SVGU")
	ChunkDeps        = fourCC("DEPS")
)

// directoryEntrySize is the fixed packed on-disk size of a directory
// entry: tag(4) + flags(4) + offset(8) + size(8) + crc32(4) + name(32) +
// reserved(8).
const directoryEntrySize = 4 + 4 + 8 + 8 + 4 + 32 + 8

// DirectoryEntry describes one chunk's placement and integrity checksum.
// Offset is zero from construction until a successful Save lays the file
// out; that is not an error state, merely "not yet laid out" (§3).
type DirectoryEntry struct {
	Tag    ChunkTag
	Flags  uint32
	Offset uint64
	Size   uint64
	CRC32  uint32
	Name   [32]byte
}

func (e DirectoryEntry) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(directoryEntrySize)
	_ = binary.Write(buf, binary.LittleEndian, uint32(e.Tag))
	_ = binary.Write(buf, binary.LittleEndian, e.Flags)
	_ = binary.Write(buf, binary.LittleEndian, e.Offset)
	_ = binary.Write(buf, binary.LittleEndian, e.Size)
	_ = binary.Write(buf, binary.LittleEndian, e.CRC32)
	_ = binary.Write(buf, binary.LittleEndian, e.Name)
	_ = binary.Write(buf, binary.LittleEndian, uint64(0)) // reserved
	return buf.Bytes()
}

func unmarshalDirectoryEntry(b []byte) DirectoryEntry {
	r := bytes.NewReader(b[:directoryEntrySize])
	var e DirectoryEntry
	var tag uint32
	var reserved uint64
	_ = binary.Read(r, binary.LittleEndian, &tag)
	e.Tag = ChunkTag(tag)
	_ = binary.Read(r, binary.LittleEndian, &e.Flags)
	_ = binary.Read(r, binary.LittleEndian, &e.Offset)
	_ = binary.Read(r, binary.LittleEndian, &e.Size)
	_ = binary.Read(r, binary.LittleEndian, &e.CRC32)
	_ = binary.Read(r, binary.LittleEndian, &e.Name)
	_ = binary.Read(r, binary.LittleEndian, &reserved)
	return e
}

func nameField(name string) [32]byte {
	var b [32]byte
	n := len(name)
	if n > len(b) {
		n = len(b)
	}
	copy(b[:], name[:n])
	return b
}
