package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// EncodeEmbedding packs a vector as little-endian float32s.
func EncodeEmbedding(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// EncodeMetadata returns nil for empty metadata so it is stored as NULL.
func EncodeMetadata(md model.Metadata) (*string, error) {
	if len(md) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	s := string(b)
	return &s, nil
}

func DecodeMetadata(s *string) (model.Metadata, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var md model.Metadata
	if err := json.Unmarshal([]byte(*s), &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}
