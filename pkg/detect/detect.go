// Package detect classifies raw report bytes into a format guess with a
// confidence score, independent of any specific parser.
package detect

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/exploopio/scanlens/pkg/textenc"
)

// Format types reported by the detector.
const (
	FormatJSON    = "json"
	FormatXML     = "xml"
	FormatHTML    = "html"
	FormatPDF     = "pdf"
	FormatZIP     = "zip"
	FormatXLSX    = "xlsx"
	FormatXLS     = "xls"
	FormatDOCX    = "docx"
	FormatYAML    = "yaml"
	FormatCSV     = "csv"
	FormatText    = "text"
	FormatGzip    = "gzip"
	FormatZstd    = "zstd"
	FormatUnknown = "unknown"
)

// Fixed confidence levels.
const (
	ConfidenceStructured = 0.95 // JSON parsed cleanly
	ConfidenceMarkup     = 0.9  // XML/YAML parsed cleanly, or JSON prefix of a truncated preview
	ConfidenceMagic      = 0.8  // binary/tabular signature hit
	ConfidenceExtension  = 0.6  // extension only
	ConfidenceDegraded   = 0.3  // signature hit but content failed to parse
)

// EncodingBinary is reported for non-text formats.
const EncodingBinary = "binary"

// WarnExtensionOnly is the warning attached to extension-only detections.
const WarnExtensionOnly = "format detected by extension only"

// DefaultPreviewSize is the preview length callers are expected to pass (1 MiB).
const DefaultPreviewSize = 1 << 20

// FormatInfo is the detector output for one input.
type FormatInfo struct {
	FormatType string         `json:"format_type"`
	Confidence float64        `json:"confidence"`
	Encoding   string         `json:"encoding"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

func newInfo(format string, confidence float64, encoding string) FormatInfo {
	return FormatInfo{FormatType: format, Confidence: confidence, Encoding: encoding, Metadata: map[string]any{}}
}

func (fi *FormatInfo) warn(msg string) {
	fi.Warnings = append(fi.Warnings, msg)
}

// IsCompressed reports whether the input is a compressed container that must
// be decompressed and detected again.
func (fi FormatInfo) IsCompressed() bool {
	return fi.FormatType == FormatGzip || fi.FormatType == FormatZstd
}

// =============================================================================
// Magic bytes
// =============================================================================

type signature struct {
	magic  []byte
	format string
}

// binarySignatures are matched against the raw preview, before any text
// decoding. Order matters: most specific first.
var binarySignatures = []signature{
	{[]byte("%PDF"), FormatPDF},
	{[]byte("PK\x03\x04"), FormatZIP},
	{[]byte{0x1f, 0x8b}, FormatGzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, FormatZstd},
}

// textSignatures are matched against the decoded text with leading
// whitespace removed.
var textSignatures = []signature{
	{[]byte("<?xml"), FormatXML},
	{[]byte("<!DOCTYPE html"), FormatHTML},
	{[]byte("<!doctype html"), FormatHTML},
	{[]byte("<html"), FormatHTML},
	{[]byte("<HTML"), FormatHTML},
	{[]byte(`{"`), FormatJSON},
	{[]byte("[{"), FormatJSON},
	{[]byte("---\n"), FormatYAML},
	{[]byte("---\r\n"), FormatYAML},
	{[]byte("severity,"), FormatCSV},
	{[]byte("SEVERITY,"), FormatCSV},
	{[]byte(`"severity",`), FormatCSV},
}

// csvCommaThreshold is the comma count in the first KiB above which an
// unrecognized input is treated as CSV.
const csvCommaThreshold = 5

// Detector classifies report previews. The zero value is not usable; use New.
type Detector struct {
	// PreviewSize is the preview length the caller reads. A JSON or XML
	// preview at least this long that ends mid-document is analysed as a
	// truncated prefix instead of a parse failure.
	PreviewSize int
}

// New creates a detector for DefaultPreviewSize previews.
func New() *Detector {
	return &Detector{PreviewSize: DefaultPreviewSize}
}

// DetectByMagic returns the format named by a leading signature of the raw
// bytes, the comma heuristic, or "" when nothing matches.
func (d *Detector) DetectByMagic(content []byte) string {
	for _, s := range binarySignatures {
		if bytes.HasPrefix(content, s.magic) {
			return s.format
		}
	}
	return detectText(content)
}

func detectText(content []byte) string {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	for _, s := range textSignatures {
		if bytes.HasPrefix(trimmed, s.magic) {
			return s.format
		}
	}
	if isJSONOpener(trimmed) {
		return FormatJSON
	}

	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Count(head, []byte(",")) > csvCommaThreshold {
		return FormatCSV
	}
	return ""
}

// isJSONOpener matches "{" or "[" followed by whitespace or the matching
// closer, which the literal table cannot express.
func isJSONOpener(b []byte) bool {
	if len(b) < 2 || (b[0] != '{' && b[0] != '[') {
		return false
	}
	switch b[1] {
	case ' ', '\t', '\r', '\n':
		return true
	case '}':
		return b[0] == '{'
	case ']':
		return b[0] == '['
	}
	return false
}

// DetectEncoding returns the text encoding of content.
func (d *Detector) DetectEncoding(content []byte) string {
	return textenc.Detect(content)
}

// =============================================================================
// Detection
// =============================================================================

// Detect classifies preview, using filename only when the content is
// inconclusive.
func (d *Detector) Detect(preview []byte, filename string) FormatInfo {
	// Binary signatures never go through text decoding.
	for _, s := range binarySignatures {
		if bytes.HasPrefix(preview, s.magic) {
			return d.binary(s.format, preview, filename)
		}
	}

	encoding := textenc.Detect(preview)
	text, err := textenc.Decode(preview, encoding)
	if err != nil {
		info := newInfo(FormatUnknown, 0, encoding)
		info.warn("decode error: " + err.Error())
		return info
	}
	content := []byte(text)

	switch detectText(content) {
	case FormatJSON:
		return d.analyzeJSON(content, encoding)
	case FormatXML:
		return d.analyzeXML(content, encoding)
	case FormatYAML:
		return d.analyzeYAML(content, encoding)
	case FormatHTML:
		return newInfo(FormatHTML, ConfidenceMagic, encoding)
	case FormatCSV:
		return analyzeCSV(content, encoding)
	}

	return d.byExtension(content, encoding, filename)
}

func (d *Detector) binary(format string, preview []byte, filename string) FormatInfo {
	switch format {
	case FormatPDF:
		info := newInfo(FormatPDF, ConfidenceMagic, EncodingBinary)
		if m := pdfVersion.FindSubmatch(preview); m != nil {
			info.Metadata["pdf_version"] = string(m[1])
		}
		return info
	case FormatZIP:
		return newInfo(refineZip(preview, filename), ConfidenceMagic, EncodingBinary)
	default:
		info := newInfo(format, ConfidenceMagic, EncodingBinary)
		info.Metadata["compressed"] = true
		return info
	}
}

var pdfVersion = regexp.MustCompile(`^%PDF-(\d\.\d)`)

// refineZip resolves the zip ambiguity using Office part names visible in
// the local file headers, then the extension.
func refineZip(preview []byte, filename string) string {
	switch {
	case bytes.Contains(preview, []byte("word/")):
		return FormatDOCX
	case bytes.Contains(preview, []byte("xl/")):
		return FormatXLSX
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return FormatDOCX
	case ".xlsx", ".xlsm":
		return FormatXLSX
	}
	return FormatZIP
}

func analyzeCSV(content []byte, encoding string) FormatInfo {
	info := newInfo(FormatCSV, ConfidenceMagic, encoding)
	line := content
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	r := csv.NewReader(bytes.NewReader(line))
	r.LazyQuotes = true
	if header, err := r.Read(); err == nil {
		info.Metadata["columns"] = len(header)
		info.Metadata["header"] = header
	}
	return info
}

var extensionFormats = map[string]string{
	".csv":  FormatCSV,
	".tsv":  FormatCSV,
	".pdf":  FormatPDF,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
	".docx": FormatDOCX,
	".txt":  FormatText,
	".log":  FormatText,
	".md":   FormatText,
	".html": FormatHTML,
	".htm":  FormatHTML,
}

func (d *Detector) byExtension(content []byte, encoding, filename string) FormatInfo {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json", ".sarif":
		return d.analyzeJSON(content, encoding)
	case ".xml":
		return d.analyzeXML(content, encoding)
	case ".yaml", ".yml":
		return d.analyzeYAML(content, encoding)
	}
	if format, ok := extensionFormats[ext]; ok {
		info := newInfo(format, ConfidenceExtension, encoding)
		info.warn(WarnExtensionOnly)
		return info
	}

	info := newInfo(FormatUnknown, 0, encoding)
	info.warn("could not detect file format")
	return info
}
