package taf

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// GraphBuilder assembles an AUDI chunk payload incrementally: nodes,
// connections and parameters first, then optional embedded wavetables,
// then optional streaming descriptors. Section offsets are computed at
// Build time from the accumulated section sizes, mirroring the
// two-pass discipline used by ChunkedWriter for whole-asset layout.
type GraphBuilder struct {
	sampleRate uint32
	tickRate   uint32

	nodes       []Node
	connections []Connection
	parameters  []Parameter

	wavetables     []Wavetable
	wavetableBytes [][]byte

	streaming     []StreamingAudio
	streamingData [][]byte

	err error
}

// NewGraphBuilder starts an audio graph with the given control-rate
// parameters.
func NewGraphBuilder(sampleRate, tickRate uint32) *GraphBuilder {
	return &GraphBuilder{sampleRate: sampleRate, tickRate: tickRate}
}

// AddNode appends a node and returns its assigned ID (its index in
// emission order).
func (b *GraphBuilder) AddNode(nodeType NodeType, nameHash uint64, posX, posY float32, params []Parameter) uint32 {
	id := uint32(len(b.nodes))
	n := Node{
		ID:          id,
		Type:        nodeType,
		NameHash:    nameHash,
		PosX:        posX,
		PosY:        posY,
		ParamOffset: uint32(len(b.parameters)),
		ParamCount:  uint32(len(params)),
	}
	b.parameters = append(b.parameters, params...)
	b.nodes = append(b.nodes, n)
	return id
}

// Connect records a directed edge between two previously added nodes'
// ports. It does not validate port indices against node input/output
// counts; Apply-time graph traversal is left to the consuming engine.
// sourceNode and destNode must name nodes already added with AddNode; an
// unknown node ID is recorded as the builder's first error and returned
// by Build, rather than panicking on an out-of-range node index.
func (b *GraphBuilder) Connect(sourceNode, sourceOutput, destNode, destInput uint32, strength float32) {
	if b.err != nil {
		return
	}
	if sourceNode >= uint32(len(b.nodes)) {
		b.err = errors.Errorf("audio graph: connect references unknown source node %d", sourceNode)
		return
	}
	if destNode >= uint32(len(b.nodes)) {
		b.err = errors.Errorf("audio graph: connect references unknown dest node %d", destNode)
		return
	}
	b.nodes[sourceNode].OutputCount++
	b.nodes[destNode].InputCount++
	b.connections = append(b.connections, Connection{
		SourceNode:   sourceNode,
		SourceOutput: sourceOutput,
		DestNode:     destNode,
		DestInput:    destInput,
		Strength:     strength,
	})
}

// AddWavetable embeds a block of float PCM samples as a 16-bit wavetable,
// converting each sample with FloatToPCM16.
func (b *GraphBuilder) AddWavetable(nameHash uint64, samples []float32, channelCount uint32, baseFrequency float32, loopStart, loopEnd uint32) {
	raw := new(bytes.Buffer)
	raw.Grow(len(samples) * 2)
	for _, s := range samples {
		_ = binary.Write(raw, binary.LittleEndian, FloatToPCM16(s))
	}
	b.wavetables = append(b.wavetables, Wavetable{
		NameHash:      nameHash,
		SampleCount:   uint32(len(samples)) / maxu32(channelCount, 1),
		ChannelCount:  channelCount,
		BitDepth:      16,
		ByteSize:      uint64(raw.Len()),
		BaseFrequency: baseFrequency,
		LoopStart:     loopStart,
		LoopEnd:       loopEnd,
	})
	b.wavetableBytes = append(b.wavetableBytes, raw.Bytes())
}

// AddStreamingAudio registers a streaming source whose chunk bytes are
// supplied pre-encoded (PCM16 or float32, per format).
func (b *GraphBuilder) AddStreamingAudio(nameHash uint64, sampleRate, channelCount, bitDepth uint32, totalSamples uint64, samplesPerChunk uint32, format StreamingFormat, data []byte) {
	chunkCount := uint32(0)
	if samplesPerChunk > 0 {
		chunkCount = uint32((totalSamples + uint64(samplesPerChunk) - 1) / uint64(samplesPerChunk))
	}
	b.streaming = append(b.streaming, StreamingAudio{
		NameHash:        nameHash,
		SampleRate:      sampleRate,
		ChannelCount:    channelCount,
		BitDepth:        bitDepth,
		TotalSamples:    totalSamples,
		SamplesPerChunk: samplesPerChunk,
		ChunkCount:      chunkCount,
		Format:          format,
	})
	b.streamingData = append(b.streamingData, data)
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Build assembles the final AUDI chunk payload: header, node array,
// connection array, parameter array, wavetable descriptor array + bytes,
// streaming descriptor array + bytes. ByteOffset/DataOffset fields are
// filled in relative to the start of the payload.
func (b *GraphBuilder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	header := AudioHeader{
		NodeCount:       uint32(len(b.nodes)),
		ConnectionCount: uint32(len(b.connections)),
		SampleCount:     uint32(len(b.wavetables)),
		ParameterCount:  uint32(len(b.parameters)),
		SampleRate:      b.sampleRate,
		TickRate:        b.tickRate,
		StreamingCount:  uint32(len(b.streaming)),
	}

	buf := new(bytes.Buffer)
	header.marshal(buf)
	for _, n := range b.nodes {
		n.marshal(buf)
	}
	for _, c := range b.connections {
		c.marshal(buf)
	}
	for _, p := range b.parameters {
		p.marshal(buf)
	}

	wtDescOffset := buf.Len()
	wtDescBytes := len(b.wavetables) * wavetableRecordSize
	cursor := uint64(wtDescOffset + wtDescBytes)
	for i := range b.wavetables {
		b.wavetables[i].ByteOffset = cursor
		cursor += b.wavetables[i].ByteSize
	}
	for _, wt := range b.wavetables {
		wt.marshal(buf)
	}
	for _, data := range b.wavetableBytes {
		buf.Write(data)
	}

	strDescBytes := len(b.streaming) * streamingAudioRecordSize
	cursor = uint64(buf.Len() + strDescBytes)
	for i := range b.streaming {
		b.streaming[i].DataOffset = cursor
		cursor += uint64(len(b.streamingData[i]))
	}
	for _, s := range b.streaming {
		s.marshal(buf)
	}
	for _, data := range b.streamingData {
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

// ParsedAudioGraph is the decoded form of an AUDI chunk payload.
type ParsedAudioGraph struct {
	Header      AudioHeader
	Nodes       []Node
	Connections []Connection
	Parameters  []Parameter
	Wavetables  []Wavetable
	WavetableData [][]byte
	Streaming     []StreamingAudio
	StreamingData [][]byte
}

// ParseAudioPayload decodes an AUDI chunk payload produced by
// GraphBuilder.Build.
func ParseAudioPayload(payload []byte) (*ParsedAudioGraph, error) {
	if len(payload) < audioHeaderSize {
		return nil, errors.Wrapf(ErrValidation, "audio payload too small: %d bytes", len(payload))
	}
	h := unmarshalAudioHeader(payload[:audioHeaderSize])

	cursor := audioHeaderSize
	nodes := make([]Node, h.NodeCount)
	for i := range nodes {
		end := cursor + nodeRecordSize
		if end > len(payload) {
			return nil, errors.Wrapf(ErrValidation, "audio node table overruns payload")
		}
		nodes[i] = unmarshalNode(payload[cursor:end])
		cursor = end
	}

	connections := make([]Connection, h.ConnectionCount)
	for i := range connections {
		end := cursor + connectionRecordSize
		if end > len(payload) {
			return nil, errors.Wrapf(ErrValidation, "audio connection table overruns payload")
		}
		connections[i] = unmarshalConnection(payload[cursor:end])
		cursor = end
	}

	parameters := make([]Parameter, h.ParameterCount)
	for i := range parameters {
		end := cursor + parameterRecordSize
		if end > len(payload) {
			return nil, errors.Wrapf(ErrValidation, "audio parameter table overruns payload")
		}
		parameters[i] = unmarshalParameter(payload[cursor:end])
		cursor = end
	}

	wavetables := make([]Wavetable, h.SampleCount)
	for i := range wavetables {
		end := cursor + wavetableRecordSize
		if end > len(payload) {
			return nil, errors.Wrapf(ErrValidation, "audio wavetable descriptor table overruns payload")
		}
		wavetables[i] = unmarshalWavetable(payload[cursor:end])
		cursor = end
	}
	wavetableData := make([][]byte, len(wavetables))
	for i, wt := range wavetables {
		end := wt.ByteOffset + wt.ByteSize
		if end > uint64(len(payload)) {
			return nil, errors.Wrapf(errInsufficientAudioData, "wavetable %d data extends past payload end", i)
		}
		data := make([]byte, wt.ByteSize)
		copy(data, payload[wt.ByteOffset:end])
		wavetableData[i] = data
	}
	if len(wavetables) > 0 {
		cursor = int(wavetables[len(wavetables)-1].ByteOffset + wavetables[len(wavetables)-1].ByteSize)
	}

	streaming := make([]StreamingAudio, h.StreamingCount)
	for i := range streaming {
		end := cursor + streamingAudioRecordSize
		if end > len(payload) {
			return nil, errors.Wrapf(ErrValidation, "audio streaming descriptor table overruns payload")
		}
		streaming[i] = unmarshalStreamingAudio(payload[cursor:end])
		cursor = end
	}
	streamingData := make([][]byte, len(streaming))
	for i, s := range streaming {
		byteCount := uint64(s.TotalSamples) * uint64(s.ChannelCount) * uint64(s.BitDepth/8)
		end := s.DataOffset + byteCount
		if end > uint64(len(payload)) {
			return nil, errors.Wrapf(errInsufficientAudioData, "streaming source %d data extends past payload end", i)
		}
		data := make([]byte, byteCount)
		copy(data, payload[s.DataOffset:end])
		streamingData[i] = data
	}

	return &ParsedAudioGraph{
		Header:        h,
		Nodes:         nodes,
		Connections:   connections,
		Parameters:    parameters,
		Wavetables:    wavetables,
		WavetableData: wavetableData,
		Streaming:     streaming,
		StreamingData: streamingData,
	}, nil
}
