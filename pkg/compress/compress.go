// Package compress decompresses zstd and gzip wrapped scan reports.
//
// Uploaded reports are sometimes compressed before transfer. The factory
// sniffs the preview, unwraps the stream with NewReader and detects the
// format again on the decompressed bytes.
//
// Supported algorithms:
//   - ZSTD (Zstandard)
//   - Gzip
//
// Example usage:
//
//	rc, err := compress.NewReader(file, compress.AlgorithmZSTD)
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is the Zstandard compression algorithm.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is the gzip compression algorithm.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone indicates no compression.
	AlgorithmNone Algorithm = "none"
)

// ParseAlgorithm maps a detector format name to an algorithm.
func ParseAlgorithm(s string) (Algorithm, bool) {
	switch Algorithm(s) {
	case AlgorithmZSTD, AlgorithmGzip, AlgorithmNone:
		return Algorithm(s), true
	}
	return AlgorithmNone, false
}

// maxWindow bounds the zstd decoder window so a crafted frame header cannot
// force a huge allocation.
const maxWindow = 64 << 20

// NewReader returns a reader that decompresses r. AlgorithmNone returns r
// unchanged with a no-op Close.
func NewReader(r io.Reader, algorithm Algorithm) (io.ReadCloser, error) {
	switch algorithm {
	case AlgorithmZSTD:
		dec, err := zstd.NewReader(r,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxWindow(maxWindow),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd reader error: %w", err)
		}
		return dec.IOReadCloser(), nil
	case AlgorithmGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader error: %w", err)
		}
		return gz, nil
	case AlgorithmNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}
