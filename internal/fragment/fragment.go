// Package fragment splits encoded frames into UDP-sized chunks and parses
// them back on the receiving side.
//
// Wire format of one chunk:
//
//	"FRAME:" <frame_id> ":" <chunk_index> ":" <chunk_count> ":" <raw bytes>
//
// The three numbers are ASCII decimal. The payload is binary and may itself
// contain ':' bytes, so the header ends at the fourth colon of the packet.
// Packets without the marker are legacy single-packet frames.
package fragment

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const (
	// Marker prefixes every chunked packet
	Marker = "FRAME:"
	// DefaultChunkSize is the payload carried per chunk
	DefaultChunkSize = 8192
	// MaxChunks is the largest chunk_count the header can carry
	MaxChunks = 1<<16 - 1
	// maxHeaderLen bounds the colon scan so a malformed packet never walks the payload
	maxHeaderLen = len(Marker) + 10 + 1 + 5 + 1 + 5 + 1
)

var (
	// ErrMalformedHeader is returned for chunk packets whose header cannot be parsed
	ErrMalformedHeader = errors.New("fragment: malformed chunk header")
	// ErrNotChunk is returned by Parse for packets without the FRAME: marker
	ErrNotChunk = errors.New("fragment: not a chunk packet")
)

// Chunk is one fragment of an encoded frame
type Chunk struct {
	FrameID uint32
	Index   uint16
	Count   uint16
	Payload []byte
}

// Marshal returns the wire representation of the chunk
func (c Chunk) Marshal() []byte {
	header := fmt.Sprintf("%s%d:%d:%d:", Marker, c.FrameID, c.Index, c.Count)
	out := make([]byte, 0, len(header)+len(c.Payload))
	out = append(out, header...)
	return append(out, c.Payload...)
}

// Split cuts data into ceil(len/chunkSize) chunks tagged with frameID
func Split(frameID uint32, data []byte, chunkSize int) ([]Chunk, error) {
	if len(data) == 0 {
		return nil, errors.New("fragment: empty frame")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	count := (len(data) + chunkSize - 1) / chunkSize
	if count > MaxChunks {
		return nil, fmt.Errorf("fragment: frame of %d bytes needs %d chunks (max %d)", len(data), count, MaxChunks)
	}

	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, Chunk{
			FrameID: frameID,
			Index:   uint16(i),
			Count:   uint16(count),
			Payload: data[start:end],
		})
	}
	return chunks, nil
}

// IsChunk reports whether packet carries the chunk marker
func IsChunk(packet []byte) bool {
	return bytes.HasPrefix(packet, []byte(Marker))
}

// Parse decodes a chunk packet. The returned payload aliases packet.
func Parse(packet []byte) (Chunk, error) {
	if !IsChunk(packet) {
		return Chunk{}, ErrNotChunk
	}

	// The marker holds the first colon; find the other three.
	var colons [3]int
	found := 0
	limit := len(packet)
	if limit > maxHeaderLen {
		limit = maxHeaderLen
	}
	for i := len(Marker); i < limit && found < len(colons); i++ {
		if packet[i] == ':' {
			colons[found] = i
			found++
		}
	}
	if found < len(colons) {
		return Chunk{}, fmt.Errorf("%w: header not terminated", ErrMalformedHeader)
	}

	frameID, err := strconv.ParseUint(string(packet[len(Marker):colons[0]]), 10, 32)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: frame id: %v", ErrMalformedHeader, err)
	}
	index, err := strconv.ParseUint(string(packet[colons[0]+1:colons[1]]), 10, 16)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: chunk index: %v", ErrMalformedHeader, err)
	}
	count, err := strconv.ParseUint(string(packet[colons[1]+1:colons[2]]), 10, 16)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: chunk count: %v", ErrMalformedHeader, err)
	}
	if count == 0 || index >= count {
		return Chunk{}, fmt.Errorf("%w: index %d out of range for count %d", ErrMalformedHeader, index, count)
	}

	return Chunk{
		FrameID: uint32(frameID),
		Index:   uint16(index),
		Count:   uint16(count),
		Payload: packet[colons[2]+1:],
	}, nil
}
