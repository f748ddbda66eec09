package taf

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// NodeType is the closed set of audio node kinds, with numeric tags
// stable across implementations (§4.5).
type NodeType uint32

const (
	NodeOscillator       NodeType = 0
	NodeWaveTablePlayer  NodeType = 1
	NodeNoiseGenerator   NodeType = 2
	NodeSampler          NodeType = 3
	NodeStreamingSampler NodeType = 4

	NodeFilter      NodeType = 10
	NodeAmplifier   NodeType = 11
	NodeEnvelope    NodeType = 12
	NodeLFO         NodeType = 13
	NodeDelay       NodeType = 14
	NodeReverb      NodeType = 15
	NodeDistortion  NodeType = 16
	NodeCompressor  NodeType = 17

	NodeMixer    NodeType = 20
	NodeSplitter NodeType = 21
	NodeMath     NodeType = 22

	NodeGameState       NodeType = 30
	NodeProximity       NodeType = 31
	NodeCombatIntensity NodeType = 32

	NodePatternPlayer NodeType = 40
	NodeParameter     NodeType = 41
	NodeRandom        NodeType = 42

	NodeVM NodeType = 100
)

// StreamingFormat discriminates the sample encoding of a StreamingAudio
// descriptor's chunk bytes.
type StreamingFormat uint32

const (
	StreamingFormatPCM   StreamingFormat = 0
	StreamingFormatFloat StreamingFormat = 1
)

const audioHeaderSize = 4*5 /*node/connection/pattern/sample/parameter counts*/ +
	4 /*sample rate*/ + 4 /*tick rate*/ + 4 /*streaming count*/ + 4 /*reserved*/

// AudioHeader is the fixed leading record of an AUDI chunk payload.
type AudioHeader struct {
	NodeCount       uint32
	ConnectionCount uint32
	PatternCount    uint32
	SampleCount     uint32 // wavetable count
	ParameterCount  uint32
	SampleRate      uint32
	TickRate        uint32
	StreamingCount  uint32
}

func (h AudioHeader) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, h.NodeCount)
	_ = binary.Write(w, binary.LittleEndian, h.ConnectionCount)
	_ = binary.Write(w, binary.LittleEndian, h.PatternCount)
	_ = binary.Write(w, binary.LittleEndian, h.SampleCount)
	_ = binary.Write(w, binary.LittleEndian, h.ParameterCount)
	_ = binary.Write(w, binary.LittleEndian, h.SampleRate)
	_ = binary.Write(w, binary.LittleEndian, h.TickRate)
	_ = binary.Write(w, binary.LittleEndian, h.StreamingCount)
	_ = binary.Write(w, binary.LittleEndian, uint32(0)) // reserved
}

func unmarshalAudioHeader(b []byte) AudioHeader {
	r := bytes.NewReader(b[:audioHeaderSize])
	var h AudioHeader
	var reserved uint32
	_ = binary.Read(r, binary.LittleEndian, &h.NodeCount)
	_ = binary.Read(r, binary.LittleEndian, &h.ConnectionCount)
	_ = binary.Read(r, binary.LittleEndian, &h.PatternCount)
	_ = binary.Read(r, binary.LittleEndian, &h.SampleCount)
	_ = binary.Read(r, binary.LittleEndian, &h.ParameterCount)
	_ = binary.Read(r, binary.LittleEndian, &h.SampleRate)
	_ = binary.Read(r, binary.LittleEndian, &h.TickRate)
	_ = binary.Read(r, binary.LittleEndian, &h.StreamingCount)
	_ = binary.Read(r, binary.LittleEndian, &reserved)
	return h
}

const nodeRecordSize = 4 + 4 + 8 + 4 + 4 + 4 + 4 + 4 + 4

// Node is one DSP node in the audio graph.
type Node struct {
	ID          uint32
	Type        NodeType
	NameHash    uint64
	PosX, PosY  float32
	InputCount  uint32
	OutputCount uint32
	ParamOffset uint32
	ParamCount  uint32
}

func (n Node) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, n.ID)
	_ = binary.Write(w, binary.LittleEndian, uint32(n.Type))
	_ = binary.Write(w, binary.LittleEndian, n.NameHash)
	_ = binary.Write(w, binary.LittleEndian, n.PosX)
	_ = binary.Write(w, binary.LittleEndian, n.PosY)
	_ = binary.Write(w, binary.LittleEndian, n.InputCount)
	_ = binary.Write(w, binary.LittleEndian, n.OutputCount)
	_ = binary.Write(w, binary.LittleEndian, n.ParamOffset)
	_ = binary.Write(w, binary.LittleEndian, n.ParamCount)
}

func unmarshalNode(b []byte) Node {
	r := bytes.NewReader(b[:nodeRecordSize])
	var n Node
	var t uint32
	_ = binary.Read(r, binary.LittleEndian, &n.ID)
	_ = binary.Read(r, binary.LittleEndian, &t)
	n.Type = NodeType(t)
	_ = binary.Read(r, binary.LittleEndian, &n.NameHash)
	_ = binary.Read(r, binary.LittleEndian, &n.PosX)
	_ = binary.Read(r, binary.LittleEndian, &n.PosY)
	_ = binary.Read(r, binary.LittleEndian, &n.InputCount)
	_ = binary.Read(r, binary.LittleEndian, &n.OutputCount)
	_ = binary.Read(r, binary.LittleEndian, &n.ParamOffset)
	_ = binary.Read(r, binary.LittleEndian, &n.ParamCount)
	return n
}

const connectionRecordSize = 4 + 4 + 4 + 4 + 4

// Connection is a directed edge between two nodes' ports. Strength in
// [0,1] scales the signal; 0.0 marks an edge present in the topology but
// gated off.
type Connection struct {
	SourceNode   uint32
	SourceOutput uint32
	DestNode     uint32
	DestInput    uint32
	Strength     float32
}

func (c Connection) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, c.SourceNode)
	_ = binary.Write(w, binary.LittleEndian, c.SourceOutput)
	_ = binary.Write(w, binary.LittleEndian, c.DestNode)
	_ = binary.Write(w, binary.LittleEndian, c.DestInput)
	_ = binary.Write(w, binary.LittleEndian, c.Strength)
}

func unmarshalConnection(b []byte) Connection {
	r := bytes.NewReader(b[:connectionRecordSize])
	var c Connection
	_ = binary.Read(r, binary.LittleEndian, &c.SourceNode)
	_ = binary.Read(r, binary.LittleEndian, &c.SourceOutput)
	_ = binary.Read(r, binary.LittleEndian, &c.DestNode)
	_ = binary.Read(r, binary.LittleEndian, &c.DestInput)
	_ = binary.Read(r, binary.LittleEndian, &c.Strength)
	return c
}

const parameterRecordSize = 8 + 4 + 4 + 4 + 4 + 4

// Parameter is one entry in the flat parameter array addressed by a
// node's [ParamOffset, ParamOffset+ParamCount) window. Evaluate(x) maps
// a normalized input in [0,1] to this parameter's value using
// min + (max-min)*x^curve; the builder never evaluates this itself.
type Parameter struct {
	NameHash uint64
	Default  float32
	Min      float32
	Max      float32
	Curve    float32
	Flags    uint32
}

// Evaluate maps a normalized input x in [0,1] to this parameter's value.
func (p Parameter) Evaluate(x float64) float64 {
	return float64(p.Min) + float64(p.Max-p.Min)*math.Pow(x, float64(p.Curve))
}

func (p Parameter) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, p.NameHash)
	_ = binary.Write(w, binary.LittleEndian, p.Default)
	_ = binary.Write(w, binary.LittleEndian, p.Min)
	_ = binary.Write(w, binary.LittleEndian, p.Max)
	_ = binary.Write(w, binary.LittleEndian, p.Curve)
	_ = binary.Write(w, binary.LittleEndian, p.Flags)
}

func unmarshalParameter(b []byte) Parameter {
	r := bytes.NewReader(b[:parameterRecordSize])
	var p Parameter
	_ = binary.Read(r, binary.LittleEndian, &p.NameHash)
	_ = binary.Read(r, binary.LittleEndian, &p.Default)
	_ = binary.Read(r, binary.LittleEndian, &p.Min)
	_ = binary.Read(r, binary.LittleEndian, &p.Max)
	_ = binary.Read(r, binary.LittleEndian, &p.Curve)
	_ = binary.Read(r, binary.LittleEndian, &p.Flags)
	return p
}

const wavetableRecordSize = 8 + 4 + 4 + 4 + 8 + 8 + 4 + 4 + 4

// Wavetable describes one embedded block of sample data. ByteOffset is
// relative to the start of the audio payload.
type Wavetable struct {
	NameHash      uint64
	SampleCount   uint32
	ChannelCount  uint32
	BitDepth      uint32
	ByteOffset    uint64
	ByteSize      uint64
	BaseFrequency float32
	LoopStart     uint32
	LoopEnd       uint32
}

func (wt Wavetable) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, wt.NameHash)
	_ = binary.Write(w, binary.LittleEndian, wt.SampleCount)
	_ = binary.Write(w, binary.LittleEndian, wt.ChannelCount)
	_ = binary.Write(w, binary.LittleEndian, wt.BitDepth)
	_ = binary.Write(w, binary.LittleEndian, wt.ByteOffset)
	_ = binary.Write(w, binary.LittleEndian, wt.ByteSize)
	_ = binary.Write(w, binary.LittleEndian, wt.BaseFrequency)
	_ = binary.Write(w, binary.LittleEndian, wt.LoopStart)
	_ = binary.Write(w, binary.LittleEndian, wt.LoopEnd)
}

func unmarshalWavetable(b []byte) Wavetable {
	r := bytes.NewReader(b[:wavetableRecordSize])
	var wt Wavetable
	_ = binary.Read(r, binary.LittleEndian, &wt.NameHash)
	_ = binary.Read(r, binary.LittleEndian, &wt.SampleCount)
	_ = binary.Read(r, binary.LittleEndian, &wt.ChannelCount)
	_ = binary.Read(r, binary.LittleEndian, &wt.BitDepth)
	_ = binary.Read(r, binary.LittleEndian, &wt.ByteOffset)
	_ = binary.Read(r, binary.LittleEndian, &wt.ByteSize)
	_ = binary.Read(r, binary.LittleEndian, &wt.BaseFrequency)
	_ = binary.Read(r, binary.LittleEndian, &wt.LoopStart)
	_ = binary.Read(r, binary.LittleEndian, &wt.LoopEnd)
	return wt
}

const streamingAudioRecordSize = 8 + 4 + 4 + 4 + 8 + 4 + 4 + 8 + 4 + 4

// StreamingAudio describes a chunked streaming audio source. Consumers
// read chunks sequentially, or seek to chunk i at
// DataOffset + i*SamplesPerChunk*bytesPerSample*ChannelCount.
type StreamingAudio struct {
	NameHash        uint64
	SampleRate      uint32
	ChannelCount    uint32
	BitDepth        uint32
	TotalSamples    uint64
	SamplesPerChunk uint32
	ChunkCount      uint32
	DataOffset      uint64
	Format          StreamingFormat
}

func (s StreamingAudio) marshal(w *bytes.Buffer) {
	_ = binary.Write(w, binary.LittleEndian, s.NameHash)
	_ = binary.Write(w, binary.LittleEndian, s.SampleRate)
	_ = binary.Write(w, binary.LittleEndian, s.ChannelCount)
	_ = binary.Write(w, binary.LittleEndian, s.BitDepth)
	_ = binary.Write(w, binary.LittleEndian, s.TotalSamples)
	_ = binary.Write(w, binary.LittleEndian, s.SamplesPerChunk)
	_ = binary.Write(w, binary.LittleEndian, s.ChunkCount)
	_ = binary.Write(w, binary.LittleEndian, s.DataOffset)
	_ = binary.Write(w, binary.LittleEndian, uint32(s.Format))
	_ = binary.Write(w, binary.LittleEndian, uint32(0)) // reserved
}

func unmarshalStreamingAudio(b []byte) StreamingAudio {
	r := bytes.NewReader(b[:streamingAudioRecordSize])
	var s StreamingAudio
	var format, reserved uint32
	_ = binary.Read(r, binary.LittleEndian, &s.NameHash)
	_ = binary.Read(r, binary.LittleEndian, &s.SampleRate)
	_ = binary.Read(r, binary.LittleEndian, &s.ChannelCount)
	_ = binary.Read(r, binary.LittleEndian, &s.BitDepth)
	_ = binary.Read(r, binary.LittleEndian, &s.TotalSamples)
	_ = binary.Read(r, binary.LittleEndian, &s.SamplesPerChunk)
	_ = binary.Read(r, binary.LittleEndian, &s.ChunkCount)
	_ = binary.Read(r, binary.LittleEndian, &s.DataOffset)
	_ = binary.Read(r, binary.LittleEndian, &format)
	s.Format = StreamingFormat(format)
	_ = binary.Read(r, binary.LittleEndian, &reserved)
	return s
}

// FloatToPCM16 converts a float sample in [-1,1] to the conventional
// 16-bit signed-integer storage form: clamp, multiply by 32767, truncate.
func FloatToPCM16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int16(sample * 32767)
}

// errInsufficientAudioData is returned by ParseAudioPayload when a
// wavetable's or streaming source's sample data would extend past the
// payload end. It does not wrap ErrValidation; table overruns from a
// declared count are reported as ErrValidation instead.
var errInsufficientAudioData = errors.New("taf: audio payload section overruns buffer")
