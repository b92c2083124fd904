package compress

import (
	"bytes"
	"errors"
	"io"
)

// DefaultMaxDecompressedSize caps how much a compressed upload may expand to
// (1 GiB).
const DefaultMaxDecompressedSize int64 = 1 << 30

// ErrDecompressedTooLarge is returned once a decompressed stream exceeds
// its limit.
var ErrDecompressedTooLarge = errors.New("decompressed input exceeds size limit")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff returns the algorithm that produced preview, judged by its magic
// bytes, or AlgorithmNone.
func Sniff(preview []byte) Algorithm {
	switch {
	case bytes.HasPrefix(preview, zstdMagic):
		return AlgorithmZSTD
	case bytes.HasPrefix(preview, gzipMagic):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// LimitedReader fails with ErrDecompressedTooLarge when more than Max bytes
// are read from R. Unlike io.LimitedReader it reports the overflow instead
// of a silent EOF.
type LimitedReader struct {
	R    io.Reader
	Max  int64
	read int64
}

// NewLimitedReader wraps r. A max of 0 or less uses DefaultMaxDecompressedSize.
func NewLimitedReader(r io.Reader, max int64) *LimitedReader {
	if max <= 0 {
		max = DefaultMaxDecompressedSize
	}
	return &LimitedReader{R: r, Max: max}
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.read > l.Max {
		return 0, ErrDecompressedTooLarge
	}
	if remaining := l.Max + 1 - l.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.R.Read(p)
	l.read += int64(n)
	if l.read > l.Max {
		return n - int(l.read-l.Max), ErrDecompressedTooLarge
	}
	return n, err
}

// BytesRead returns the number of decompressed bytes delivered so far.
func (l *LimitedReader) BytesRead() int64 {
	if l.read > l.Max {
		return l.Max
	}
	return l.read
}
