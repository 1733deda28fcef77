package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionZstd is the only algorithm objects are written with.
const CompressionZstd = "zstd"

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Compress encodes data with zstd.
func Compress(data []byte) []byte {
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress decodes data written with the named algorithm.
func Decompress(alg string, data []byte) ([]byte, error) {
	switch alg {
	case "":
		return data, nil
	case CompressionZstd:
		out, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", alg)
	}
}
