// Copyright 2024 The Taffy Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

// Package taf implements the TAF chunked asset container and its TAFO
// overlay companion: a fixed-layout header, a CRC32-verified chunk
// directory, the packed payload schemas for geometry/shader/material/
// audio/font chunks, the overlay mutation engine, a bounded streaming
// loader, and a two-pass chunked writer.
package taf

import (
	"bytes"
	"encoding/binary"
)

// Magic values for the two container flavors this package reads and
// writes. Both are 4 raw ASCII bytes, never NUL-terminated.
var (
	MagicMaster  = [4]byte{'T', 'A', 'F', '!'}
	MagicOverlay = [4]byte{'T', 'A', 'F', 'O'}
)

// AssetType discriminates the header's role.
type AssetType uint32

const (
	AssetTypeMaster  AssetType = 0
	AssetTypeOverlay AssetType = 1
)

// Feature flags. feature_flags is a 64-bit bitmask; HasFeature performs
// exact-mask membership, (flags & flag) == flag, so combinations of bits
// can be tested for together.
type FeatureFlag uint64

const (
	FeatureHashBasedNames  FeatureFlag = 1 << 0
	FeatureQuantizedCoords FeatureFlag = 1 << 1
	FeatureMeshShaders     FeatureFlag = 1 << 2
	FeatureStreamingAudio  FeatureFlag = 1 << 3
	// FeatureChunkStreaming marks a file produced by the two-pass
	// ChunkedWriter (C7) as streaming-oriented.
	FeatureChunkStreaming FeatureFlag = 1 << 4
)

// EngineVersion is the semantic version this package itself implements,
// used by the overlay engine's targeting check (§4.4).
var EngineVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Version is a semantic version triple, sanity-capped at load time to
// major<=100, minor<=100, patch<=1000.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

func (v Version) plausible() bool {
	return v.Major <= 100 && v.Minor <= 100 && v.Patch <= 1000
}

// QuantizedVec3 is a 3-vector of signed 64-bit integers, each unit equal
// to 1/128000 of a world unit, used for the header's world bounds and for
// any geometry attribute produced under FeatureQuantizedCoords.
type QuantizedVec3 struct {
	X, Y, Z int64
}

const quantizedVec3Size = 24

// headerSize is the fixed, packed, little-endian on-disk size of Header.
// It is computed once from the field layout below rather than trusted to
// Go's in-memory struct size, since Header is never passed to
// encoding/binary directly against a live struct (see marshal/unmarshal).
const headerSize = 4 /*magic*/ + 2*3 /*version*/ + 4 /*asset type*/ + 8 /*feature flags*/ +
	4*3 /*chunk/dep/ai counts*/ + 8 /*total size*/ + 2*quantizedVec3Size /*bounds*/ +
	8 /*timestamp*/ + 64 /*creator*/ + 128 /*description*/ + 32 /*reserved pad*/

// Header is the fixed leading record of every TAF/TAFO file.
type Header struct {
	Magic           [4]byte
	Version         Version
	AssetType       AssetType
	FeatureFlags    uint64
	ChunkCount      uint32
	DependencyCount uint32
	AIModelCount    uint32
	TotalSize       uint64
	BoundsMin       QuantizedVec3
	BoundsMax       QuantizedVec3
	CreatedAt       int64
	Creator         [64]byte
	Description     [128]byte
}

// newMasterHeader returns the default header for a freshly constructed
// master asset: magic TAF!, the engine's current version, zero feature
// flags, and an empty directory.
func newMasterHeader() Header {
	return Header{
		Magic:     MagicMaster,
		Version:   EngineVersion,
		AssetType: AssetTypeMaster,
	}
}

func newOverlayHeader() Header {
	return Header{
		Magic:     MagicOverlay,
		Version:   EngineVersion,
		AssetType: AssetTypeOverlay,
	}
}

// marshal writes the header in its packed, little-endian on-disk form.
func (h Header) marshal() []byte {
	buf := make([]byte, 0, headerSize)
	w := bytes.NewBuffer(buf)
	_ = binary.Write(w, binary.LittleEndian, h.Magic)
	_ = binary.Write(w, binary.LittleEndian, h.Version.Major)
	_ = binary.Write(w, binary.LittleEndian, h.Version.Minor)
	_ = binary.Write(w, binary.LittleEndian, h.Version.Patch)
	_ = binary.Write(w, binary.LittleEndian, uint32(h.AssetType))
	_ = binary.Write(w, binary.LittleEndian, h.FeatureFlags)
	_ = binary.Write(w, binary.LittleEndian, h.ChunkCount)
	_ = binary.Write(w, binary.LittleEndian, h.DependencyCount)
	_ = binary.Write(w, binary.LittleEndian, h.AIModelCount)
	_ = binary.Write(w, binary.LittleEndian, h.TotalSize)
	_ = binary.Write(w, binary.LittleEndian, h.BoundsMin.X)
	_ = binary.Write(w, binary.LittleEndian, h.BoundsMin.Y)
	_ = binary.Write(w, binary.LittleEndian, h.BoundsMin.Z)
	_ = binary.Write(w, binary.LittleEndian, h.BoundsMax.X)
	_ = binary.Write(w, binary.LittleEndian, h.BoundsMax.Y)
	_ = binary.Write(w, binary.LittleEndian, h.BoundsMax.Z)
	_ = binary.Write(w, binary.LittleEndian, h.CreatedAt)
	_ = binary.Write(w, binary.LittleEndian, h.Creator)
	_ = binary.Write(w, binary.LittleEndian, h.Description)
	out := w.Bytes()
	if len(out) < headerSize {
		out = append(out, make([]byte, headerSize-len(out))...)
	}
	return out
}

// unmarshalHeader parses a headerSize-byte buffer into a Header. Callers
// are responsible for verifying len(b) >= headerSize first.
func unmarshalHeader(b []byte) Header {
	r := bytes.NewReader(b[:headerSize])
	var h Header
	var assetType uint32
	_ = binary.Read(r, binary.LittleEndian, &h.Magic)
	_ = binary.Read(r, binary.LittleEndian, &h.Version.Major)
	_ = binary.Read(r, binary.LittleEndian, &h.Version.Minor)
	_ = binary.Read(r, binary.LittleEndian, &h.Version.Patch)
	_ = binary.Read(r, binary.LittleEndian, &assetType)
	h.AssetType = AssetType(assetType)
	_ = binary.Read(r, binary.LittleEndian, &h.FeatureFlags)
	_ = binary.Read(r, binary.LittleEndian, &h.ChunkCount)
	_ = binary.Read(r, binary.LittleEndian, &h.DependencyCount)
	_ = binary.Read(r, binary.LittleEndian, &h.AIModelCount)
	_ = binary.Read(r, binary.LittleEndian, &h.TotalSize)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMin.X)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMin.Y)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMin.Z)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMax.X)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMax.Y)
	_ = binary.Read(r, binary.LittleEndian, &h.BoundsMax.Z)
	_ = binary.Read(r, binary.LittleEndian, &h.CreatedAt)
	_ = binary.Read(r, binary.LittleEndian, &h.Creator)
	_ = binary.Read(r, binary.LittleEndian, &h.Description)
	return h
}

// setFixedString truncates s to len(dst)-1 bytes and NUL-terminates it in
// place, matching set_creator/set_description's 63/127-byte contract.
func setFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(dst) - 1
	if len(s) < n {
		n = len(s)
	}
	copy(dst, s[:n])
}

func fixedString(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
