package recorder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Artifact container format: a fixed header followed by length-prefixed
// chunks, zstd-compressed as a whole. Each chunk is one encoder flush
// interval worth of length-prefixed JPEG frames.
var artifactMagic = []byte{'P', 'R', 'C', 'V', 1}

func assembleArtifact(chunks [][]byte) []byte {
	var buf bytes.Buffer
	buf.Write(artifactMagic)

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(chunks)))
	buf.Write(count[:])

	var size [4]byte
	for _, chunk := range chunks {
		binary.BigEndian.PutUint32(size[:], uint32(len(chunk)))
		buf.Write(size[:])
		buf.Write(chunk)
	}
	return buf.Bytes()
}

func compressArtifact(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress artifact: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArtifact splits a finalized artifact back into its chunk sequence.
func DecodeArtifact(data []byte) ([][]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress artifact: %w", err)
	}

	if len(raw) < len(artifactMagic)+4 || !bytes.Equal(raw[:len(artifactMagic)], artifactMagic) {
		return nil, fmt.Errorf("not a composite recording artifact")
	}
	off := len(artifactMagic)
	count := int(binary.BigEndian.Uint32(raw[off:]))
	off += 4

	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("artifact truncated at chunk %d", i)
		}
		size := int(binary.BigEndian.Uint32(raw[off:]))
		off += 4
		if off+size > len(raw) {
			return nil, fmt.Errorf("artifact truncated inside chunk %d", i)
		}
		chunks = append(chunks, raw[off:off+size])
		off += size
	}
	return chunks, nil
}
