package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/nexuslog/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// maxLZ4DecodedSize caps how far the decompression buffer may grow. The lz4
// block format does not record the original size, so the buffer is doubled
// until the block fits or this limit is hit.
const maxLZ4DecodedSize = 64 * 1024 * 1024

// LZ4Compressor implements the Compressor interface using LZ4 block
// compression.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

// compressBlock encodes src as a single lz4 block. Incompressible input
// makes CompressBlock report zero bytes written, which this format cannot
// represent, so that case is an error.
func compressBlock(src []byte) ([]byte, error) {
	block := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, block, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(src) > 0 {
		return nil, errors.New("lz4: input is incompressible as a block")
	}
	return block[:n], nil
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	return compressBlock(data)
}

// CompressTo compresses src into the provided buffer.
func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	block, err := compressBlock(src)
	if err != nil {
		return err
	}
	dst.Reset()
	dst.Write(block)
	return nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	if len(data) == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	size := len(data) * 4
	if size < 4096 {
		size = 4096
	}
	for ; size <= maxLZ4DecodedSize; size *= 2 {
		decoded := make([]byte, size)
		n, err := lz4.UncompressBlock(data, decoded)
		if err == nil {
			return io.NopCloser(bytes.NewReader(decoded[:n])), nil
		}
		if !errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			return nil, fmt.Errorf("lz4 decompress error: %w", err)
		}
	}
	return nil, fmt.Errorf("lz4: decoded block exceeds %d bytes", maxLZ4DecodedSize)
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
