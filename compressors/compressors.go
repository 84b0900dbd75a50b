// Package compressors provides the Compressor implementations used for
// archived WAL segments: none, snappy, lz4 and zstd. The codec an archive
// file was written with is recorded in its file extension, so archives can
// be decompressed later without out-of-band metadata.
package compressors

import (
	"fmt"

	"github.com/INLOpen/nexuslog/core"
)

// ForName returns the compressor registered under the given name, as used
// in configuration files and archive file extensions.
func ForName(name string) (core.Compressor, error) {
	switch name {
	case core.CompressionNone.String():
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy.String():
		return &SnappyCompressor{}, nil
	case core.CompressionLZ4.String():
		return NewLz4Compressor(), nil
	case core.CompressionZSTD.String():
		return NewZstdCompressor(), nil
	}
	return nil, fmt.Errorf("unknown compression type %q", name)
}
