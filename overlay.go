package taf

import (
	"bytes"
	"encoding/binary"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// OverlayOpType is the closed set of overlay mutation operations (§4.4).
type OverlayOpType uint32

const (
	OpChunkReplace OverlayOpType = iota
	OpShaderReplace
	OpVertexColorChange
	OpMaterialReplace
	OpGeometryModify
	OpVertexPositionChange
	OpVertexAttributeChange
	OpGeometryTransform
	OpGeometryScale
	OpGeometryRotate
	OpGeometryTranslate
	OpUVModification
	OpNormalRecalculation
	OpVertexSubset
)

const overlayHeaderSize = 4 /*magic*/ + 2*3 /*version*/ + 8 /*feature flags*/ +
	4 /*op count*/ + 4 /*target count*/ + 8 /*total size*/

// overlayHeader is the fixed leading record of a TAFO file, mirroring
// Header's packed discipline but with an op/target count in place of a
// chunk directory.
type overlayHeader struct {
	Magic        [4]byte
	Version      Version
	FeatureFlags uint64
	OpCount      uint32
	TargetCount  uint32
	TotalSize    uint64
}

func (h overlayHeader) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(overlayHeaderSize)
	_ = binary.Write(buf, binary.LittleEndian, h.Magic)
	_ = binary.Write(buf, binary.LittleEndian, h.Version.Major)
	_ = binary.Write(buf, binary.LittleEndian, h.Version.Minor)
	_ = binary.Write(buf, binary.LittleEndian, h.Version.Patch)
	_ = binary.Write(buf, binary.LittleEndian, h.FeatureFlags)
	_ = binary.Write(buf, binary.LittleEndian, h.OpCount)
	_ = binary.Write(buf, binary.LittleEndian, h.TargetCount)
	_ = binary.Write(buf, binary.LittleEndian, h.TotalSize)
	return buf.Bytes()
}

func unmarshalOverlayHeader(b []byte) overlayHeader {
	r := bytes.NewReader(b[:overlayHeaderSize])
	var h overlayHeader
	_ = binary.Read(r, binary.LittleEndian, &h.Magic)
	_ = binary.Read(r, binary.LittleEndian, &h.Version.Major)
	_ = binary.Read(r, binary.LittleEndian, &h.Version.Minor)
	_ = binary.Read(r, binary.LittleEndian, &h.Version.Patch)
	_ = binary.Read(r, binary.LittleEndian, &h.FeatureFlags)
	_ = binary.Read(r, binary.LittleEndian, &h.OpCount)
	_ = binary.Read(r, binary.LittleEndian, &h.TargetCount)
	_ = binary.Read(r, binary.LittleEndian, &h.TotalSize)
	return h
}

// TargetAsset records one overlay target. TargetHash is recorded as zero;
// neither TargetsAsset nor Apply fills it in.
type TargetAsset struct {
	Path             string
	TargetHash       uint64
	SemverReq        string
	RequiredFeatures uint64
}

const targetAssetRecordSize = 128 /*path*/ + 8 /*target hash*/ + 32 /*semver req*/ + 8 /*required features*/

func (t TargetAsset) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(targetAssetRecordSize)
	buf.Write(nameFieldN(t.Path, 128))
	_ = binary.Write(buf, binary.LittleEndian, t.TargetHash)
	buf.Write(nameFieldN(t.SemverReq, 32))
	_ = binary.Write(buf, binary.LittleEndian, t.RequiredFeatures)
	return buf.Bytes()
}

func unmarshalTargetAsset(b []byte) TargetAsset {
	r := bytes.NewReader(b[:targetAssetRecordSize])
	pathBuf := make([]byte, 128)
	_, _ = r.Read(pathBuf)
	var hash uint64
	_ = binary.Read(r, binary.LittleEndian, &hash)
	semverBuf := make([]byte, 32)
	_, _ = r.Read(semverBuf)
	var features uint64
	_ = binary.Read(r, binary.LittleEndian, &features)
	return TargetAsset{
		Path:             fixedString(pathBuf),
		TargetHash:       hash,
		SemverReq:        fixedString(semverBuf),
		RequiredFeatures: features,
	}
}

func nameFieldN(s string, n int) []byte {
	b := make([]byte, n)
	l := len(s)
	if l > n {
		l = n
	}
	copy(b, s[:l])
	return b
}

const overlayOpRecordSize = 4 /*type*/ + 4 /*target chunk tag*/ + 8 /*target hash*/ +
	8 /*replacement hash*/ + 4 /*data offset*/ + 4 /*data size*/

// overlayOp is one entry in an Overlay's operation array. Interpreting
// DataOffset/DataSize against the data blob, and TargetHash/
// ReplacementHash according to the op's Type, is Apply's job.
type overlayOp struct {
	Type            OverlayOpType
	TargetChunk     ChunkTag
	TargetHash      uint64
	ReplacementHash uint64
	DataOffset      uint32
	DataSize        uint32
}

func (op overlayOp) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, uint32(op.Type))
	_ = binary.Write(w, binary.LittleEndian, uint32(op.TargetChunk))
	_ = binary.Write(w, binary.LittleEndian, op.TargetHash)
	_ = binary.Write(w, binary.LittleEndian, op.ReplacementHash)
	_ = binary.Write(w, binary.LittleEndian, op.DataOffset)
	_ = binary.Write(w, binary.LittleEndian, op.DataSize)
}

func unmarshalOverlayOp(b []byte) overlayOp {
	r := bytes.NewReader(b[:overlayOpRecordSize])
	var op overlayOp
	var opType, tag uint32
	_ = binary.Read(r, binary.LittleEndian, &opType)
	op.Type = OverlayOpType(opType)
	_ = binary.Read(r, binary.LittleEndian, &tag)
	op.TargetChunk = ChunkTag(tag)
	_ = binary.Read(r, binary.LittleEndian, &op.TargetHash)
	_ = binary.Read(r, binary.LittleEndian, &op.ReplacementHash)
	_ = binary.Read(r, binary.LittleEndian, &op.DataOffset)
	_ = binary.Read(r, binary.LittleEndian, &op.DataSize)
	return op
}

// Overlay is an in-memory TAFO container: target records, an ordered
// operation list, and the data blob those operations' windows address.
type Overlay struct {
	version      Version
	featureFlags uint64
	targets      []TargetAsset
	ops          []overlayOp
	data         []byte

	opts *Options
}

// NewOverlay constructs an empty overlay: magic TAFO, the engine's
// current version, and the hash-based-names feature required of any
// target it can apply to.
func NewOverlay(opts *Options) *Overlay {
	return &Overlay{
		version:      EngineVersion,
		featureFlags: uint64(FeatureHashBasedNames),
		opts:         opts,
	}
}

// AddTargetAsset records a target-asset record with a zero TargetHash.
// semverReq is stored and round-tripped through save/load but is not
// evaluated by TargetsAsset.
func (o *Overlay) AddTargetAsset(path, semverReq string) {
	o.targets = append(o.targets, TargetAsset{Path: path, SemverReq: semverReq, RequiredFeatures: o.featureFlags})
}

// TargetsAsset reports whether the overlay can apply to asset: the
// asset must advertise FeatureHashBasedNames, and the overlay's major
// version must be <= the engine's current major version. Path-based
// hash equality is reserved for a future revision.
func (o *Overlay) TargetsAsset(asset *Asset) bool {
	if !asset.HasFeature(FeatureHashBasedNames) {
		return false
	}
	overlayMajor := semver.Major(semverString(o.version))
	engineMajor := semver.Major(semverString(EngineVersion))
	return semver.Compare(overlayMajor, engineMajor) <= 0
}

// semverString renders a Version as a string golang.org/x/mod/semver
// accepts (it requires a leading "v").
func semverString(v Version) string {
	return "v" + strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." + strconv.Itoa(int(v.Patch))
}

func appendToDataBlob(o *Overlay, data []byte) (offset, size uint32) {
	offset = uint32(len(o.data))
	o.data = append(o.data, data...)
	size = uint32(len(data))
	return offset, size
}

// SaveToFile writes the overlay in its packed TAFO layout: header, then
// target records, then operation records, then the data blob.
func (o *Overlay) SaveToFile(path string) error {
	buf := new(bytes.Buffer)
	buf.Grow(overlayHeaderSize + len(o.targets)*targetAssetRecordSize + len(o.ops)*overlayOpRecordSize + len(o.data))

	h := overlayHeader{
		Magic:        MagicOverlay,
		Version:      o.version,
		FeatureFlags: o.featureFlags,
		OpCount:      uint32(len(o.ops)),
		TargetCount:  uint32(len(o.targets)),
	}
	h.TotalSize = uint64(overlayHeaderSize + len(o.targets)*targetAssetRecordSize + len(o.ops)*overlayOpRecordSize + len(o.data))
	buf.Write(h.marshal())
	for _, t := range o.targets {
		buf.Write(t.marshal())
	}
	for _, op := range o.ops {
		op.marshal(buf)
	}
	buf.Write(o.data)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(ErrWrite, "write overlay %s: %v", path, err)
	}
	return nil
}

// LoadOverlayFromFile reads and validates a TAFO file: magic, plausible
// version, and in-bounds op/target tables.
func LoadOverlayFromFile(path string, opts *Options) (*Overlay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrRead, "overlay: %v", err)
	}
	if len(raw) < overlayHeaderSize {
		return nil, errors.Wrapf(ErrValidation, "overlay file too small: %d bytes", len(raw))
	}
	h := unmarshalOverlayHeader(raw[:overlayHeaderSize])
	if h.Magic != MagicOverlay {
		return nil, errors.Wrapf(ErrValidation, "overlay magic mismatch: got %q", h.Magic)
	}
	if !h.Version.plausible() {
		return nil, errors.Wrapf(ErrValidation, "overlay version implausible: %+v", h.Version)
	}
	if uint64(len(raw)) != h.TotalSize {
		return nil, errors.Wrapf(ErrValidation, "overlay total_size %d != file size %d", h.TotalSize, len(raw))
	}

	cursor := overlayHeaderSize
	targets := make([]TargetAsset, h.TargetCount)
	for i := range targets {
		end := cursor + targetAssetRecordSize
		if end > len(raw) {
			return nil, errors.Wrapf(ErrValidation, "overlay target table overruns file")
		}
		targets[i] = unmarshalTargetAsset(raw[cursor:end])
		cursor = end
	}

	ops := make([]overlayOp, h.OpCount)
	for i := range ops {
		end := cursor + overlayOpRecordSize
		if end > len(raw) {
			return nil, errors.Wrapf(ErrValidation, "overlay op table overruns file")
		}
		ops[i] = unmarshalOverlayOp(raw[cursor:end])
		cursor = end
	}

	data := make([]byte, len(raw)-cursor)
	copy(data, raw[cursor:])

	return &Overlay{
		version:      h.Version,
		featureFlags: h.FeatureFlags,
		targets:      targets,
		ops:          ops,
		data:         data,
		opts:         opts,
	}, nil
}
