package core

import (
	"bytes"
	"io"

	serrors "github.com/exploopio/scanlens/pkg/errors"
)

// DefaultChunkSize is the read size used by chunk sources (1 MiB).
const DefaultChunkSize = 1 << 20

// ErrTooLarge is returned when an input exceeds a parser's MaxFileSize.
var ErrTooLarge = &serrors.Error{Kind: serrors.KindInvalidInput, Message: "input exceeds parser size limit"}

// =============================================================================
// Chunk Sources
// =============================================================================

// ReaderSource reads fixed-size chunks from an io.Reader.
type ReaderSource struct {
	r     io.Reader
	size  int
	total int64
	err   error
}

// NewReaderSource creates a chunk source over r. total is the input size if
// known, else 0.
func NewReaderSource(r io.Reader, chunkSize int, total int64) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderSource{r: r, size: chunkSize, total: total}
}

// NextChunk returns the next chunk. The returned slice is freshly allocated.
func (s *ReaderSource) NextChunk() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch err {
	case nil:
		return buf[:n], nil
	case io.ErrUnexpectedEOF, io.EOF:
		s.err = io.EOF
		if n == 0 {
			return nil, io.EOF
		}
		return buf[:n], nil
	default:
		s.err = err
		return buf[:n], err
	}
}

// TotalBytes implements SizedSource.
func (s *ReaderSource) TotalBytes() int64 {
	return s.total
}

// NewBytesSource creates a chunk source over an in-memory buffer.
func NewBytesSource(b []byte, chunkSize int) *ReaderSource {
	return NewReaderSource(bytes.NewReader(b), chunkSize, int64(len(b)))
}

// PrefixedSource replays already-read bytes before continuing with src.
// The factory uses it to hand the detection preview back to the parser.
type PrefixedSource struct {
	prefix []byte
	src    ChunkSource
	total  int64
}

// NewPrefixedSource creates a source that yields prefix and then src.
func NewPrefixedSource(prefix []byte, src ChunkSource, total int64) *PrefixedSource {
	return &PrefixedSource{prefix: prefix, src: src, total: total}
}

// NextChunk implements ChunkSource.
func (s *PrefixedSource) NextChunk() ([]byte, error) {
	if len(s.prefix) > 0 {
		p := s.prefix
		s.prefix = nil
		return p, nil
	}
	return s.src.NextChunk()
}

// TotalBytes implements SizedSource.
func (s *PrefixedSource) TotalBytes() int64 {
	return s.total
}

// =============================================================================
// Chunk Reader
// =============================================================================

// ChunkReader adapts a ChunkSource to io.Reader and counts consumed bytes.
type ChunkReader struct {
	src   ChunkSource
	buf   []byte
	count int64
	err   error
}

// NewChunkReader creates an io.Reader over src.
func NewChunkReader(src ChunkSource) *ChunkReader {
	return &ChunkReader{src: src}
}

// Read implements io.Reader.
func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err := r.src.NextChunk()
		r.buf = chunk
		if err != nil {
			r.err = err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.count += int64(n)
	return n, nil
}

// BytesRead returns the number of bytes handed out so far.
func (r *ChunkReader) BytesRead() int64 {
	return r.count
}
