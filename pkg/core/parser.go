package core

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/exploopio/scanlens/pkg/finding"
)

// =============================================================================
// Parser Contract
// =============================================================================

// Default parser limits.
const (
	// DefaultConfidenceThreshold is the selection threshold used when a parser
	// does not declare one.
	DefaultConfidenceThreshold = 0.7

	// DefaultMemoryLimit is the working-set target of a parser (10 MiB).
	DefaultMemoryLimit int64 = 10 << 20
)

// Parser is implemented by every format- or tool-specific parser.
type Parser interface {
	// CanParse estimates how well this parser fits the input, in [0,1].
	// It must be side-effect free and never panic on malformed input;
	// internal failures return 0.
	CanParse(preview []byte, filename string) float64

	// ParseStream consumes the chunk sequence and returns a pull stream of
	// findings. The stream is finite and not restartable. progress may be nil.
	ParseStream(ctx context.Context, chunks ChunkSource, progress ProgressFunc) Stream

	// Metadata returns the parser's declared capabilities.
	Metadata() ParserMetadata
}

// FormatValidator is implemented by parsers that can list problems with an
// input before parsing it.
type FormatValidator interface {
	ValidateFormat(preview []byte) []string
}

// MetadataExtractor is implemented by parsers that can pull report-level
// metadata (tool version, scan date) out of a preview.
type MetadataExtractor interface {
	ExtractMetadata(preview []byte) map[string]any
}

// MemoryLimiter is implemented by parsers with a non-default working-set target.
type MemoryLimiter interface {
	MemoryLimit() int64
}

// ValidateFormat returns the parser's warnings for preview, or nil when the
// parser does not validate.
func ValidateFormat(p Parser, preview []byte) []string {
	if v, ok := p.(FormatValidator); ok {
		return v.ValidateFormat(preview)
	}
	return nil
}

// ExtractMetadata returns report-level metadata, or an empty map.
func ExtractMetadata(p Parser, preview []byte) map[string]any {
	if e, ok := p.(MetadataExtractor); ok {
		if m := e.ExtractMetadata(preview); m != nil {
			return m
		}
	}
	return map[string]any{}
}

// MemoryLimit returns the parser's working-set target.
func MemoryLimit(p Parser) int64 {
	if m, ok := p.(MemoryLimiter); ok && m.MemoryLimit() > 0 {
		return m.MemoryLimit()
	}
	return DefaultMemoryLimit
}

// Stream is a pull iterator over findings.
// Next returns io.EOF once the stream is exhausted.
type Stream interface {
	Next() (*finding.Finding, error)
}

// ChunkSource supplies the input as ordered byte chunks.
// NextChunk returns io.EOF after the last chunk.
type ChunkSource interface {
	NextChunk() ([]byte, error)
}

// SizedSource is implemented by chunk sources that know the total input size.
type SizedSource interface {
	TotalBytes() int64
}

// TotalBytes returns the total size of src, or 0 when unknown.
func TotalBytes(src ChunkSource) int64 {
	if s, ok := src.(SizedSource); ok {
		return s.TotalBytes()
	}
	return 0
}

// =============================================================================
// Parser Metadata
// =============================================================================

// Capability is a bit in a parser's capability set.
type Capability uint8

const (
	CapStreaming Capability = 1 << iota
	CapBatch
	CapIncremental
	CapValidation
	CapMetadata
	CapFiltering
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapStreaming, "streaming"},
	{CapBatch, "batch"},
	{CapIncremental, "incremental"},
	{CapValidation, "validation"},
	{CapMetadata, "metadata"},
	{CapFiltering, "filtering"},
}

// Has reports whether c contains every bit of other.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Names lists the capabilities set in c.
func (c Capability) Names() []string {
	var out []string
	for _, cn := range capabilityNames {
		if c.Has(cn.c) {
			out = append(out, cn.name)
		}
	}
	return out
}

func (c Capability) String() string {
	return strings.Join(c.Names(), ",")
}

// ParserMetadata describes a parser to the registry and the factory.
type ParserMetadata struct {
	ToolName    string
	Description string

	// SupportedVersions lists tool versions the parser understands.
	// Empty means any version.
	SupportedVersions []string

	// FileExtensions lists lower-case extensions including the dot.
	FileExtensions []string

	Capabilities Capability

	// MaxFileSize is the largest input accepted, in bytes. 0 means unlimited.
	MaxFileSize int64

	// ConfidenceThreshold is the minimum CanParse score at which this parser
	// is selected without a degraded-selection warning.
	ConfidenceThreshold float64
}

// Threshold returns the confidence threshold, defaulting to
// DefaultConfidenceThreshold when unset.
func (m ParserMetadata) Threshold() float64 {
	if m.ConfidenceThreshold <= 0 {
		return DefaultConfidenceThreshold
	}
	return m.ConfidenceThreshold
}

// SupportsVersion reports whether version is declared as supported.
// A declared "1.7" also accepts "1.7.5".
func (m ParserMetadata) SupportsVersion(version string) bool {
	if len(m.SupportedVersions) == 0 {
		return true
	}
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	for _, v := range m.SupportedVersions {
		if version == v || strings.HasPrefix(version, v+".") {
			return true
		}
	}
	return false
}

// SupportsExtension reports whether filename carries a declared extension.
func (m ParserMetadata) SupportsExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, e := range m.FileExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// =============================================================================
// Progress
// =============================================================================

// ParseProgress is reported by parsers at a parser-chosen cadence and once
// at completion.
type ParseProgress struct {
	BytesProcessed int64
	TotalBytes     int64 // 0 when unknown
	FindingsCount  int
	CurrentSection string
	Done           bool
}

// Percentage returns the completed share in [0,100]. The boolean is false
// when the total size is unknown.
func (p ParseProgress) Percentage() (float64, bool) {
	if p.TotalBytes <= 0 {
		return 0, false
	}
	pct := float64(p.BytesProcessed) / float64(p.TotalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// ProgressFunc receives progress notifications.
type ProgressFunc func(ParseProgress)

// Reporter invokes a ProgressFunc every Every findings and once on Done.
// A nil Reporter or a Reporter with a nil func is a no-op.
type Reporter struct {
	fn      ProgressFunc
	every   int
	count   int
	bytes   func() int64
	total   int64
	section string
	done    bool
}

// NewReporter creates a reporter. bytes, when non-nil, reports the number of
// input bytes consumed so far.
func NewReporter(fn ProgressFunc, every int, total int64, bytes func() int64) *Reporter {
	if every <= 0 {
		every = 100
	}
	return &Reporter{fn: fn, every: every, total: total, bytes: bytes}
}

// SetSection sets the label reported as CurrentSection.
func (r *Reporter) SetSection(s string) {
	if r != nil {
		r.section = s
	}
}

// Count returns the number of findings reported so far.
func (r *Reporter) Count() int {
	if r == nil {
		return 0
	}
	return r.count
}

// Add records n more findings, notifying whenever a cadence boundary is crossed.
func (r *Reporter) Add(n int) {
	if r == nil || n <= 0 {
		return
	}
	before := r.count / r.every
	r.count += n
	if r.count/r.every != before {
		r.emit(false)
	}
}

// Flush notifies with the current count regardless of cadence.
func (r *Reporter) Flush() {
	if r != nil {
		r.emit(false)
	}
}

// Done sends the completion notification. Later calls are ignored.
func (r *Reporter) Done() {
	if r == nil || r.done {
		return
	}
	r.done = true
	r.emit(true)
}

func (r *Reporter) emit(done bool) {
	if r.fn == nil {
		return
	}
	p := ParseProgress{
		TotalBytes:     r.total,
		FindingsCount:  r.count,
		CurrentSection: r.section,
		Done:           done,
	}
	if r.bytes != nil {
		p.BytesProcessed = r.bytes()
	}
	r.fn(p)
}

// ReadAll reads every chunk from src. When limit > 0 and the input grows
// beyond it, ReadAll stops and returns ErrTooLarge.
func ReadAll(src ChunkSource, limit int64) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := src.NextChunk()
		buf = append(buf, chunk...)
		if limit > 0 && int64(len(buf)) > limit {
			return nil, ErrTooLarge
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}
