package core

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// =============================================================================
// Base Parser - embed for common defaults
// =============================================================================

// BaseParser provides default implementations of the optional parser
// methods and small helpers shared by concrete parsers.
type BaseParser struct {
	Meta ParserMetadata
}

// Metadata returns the parser metadata.
func (b *BaseParser) Metadata() ParserMetadata {
	return b.Meta
}

// ToolName returns the declared tool name.
func (b *BaseParser) ToolName() string {
	return b.Meta.ToolName
}

// ValidateFormat returns no warnings.
func (b *BaseParser) ValidateFormat(preview []byte) []string {
	return nil
}

// ExtractMetadata returns an empty map.
func (b *BaseParser) ExtractMetadata(preview []byte) map[string]any {
	return map[string]any{}
}

// MemoryLimit returns the default working-set target.
func (b *BaseParser) MemoryLimit() int64 {
	return DefaultMemoryLimit
}

// HasExtension reports whether filename carries one of the declared extensions.
func (b *BaseParser) HasExtension(filename string) bool {
	return b.Meta.SupportsExtension(filename)
}

// NameContains reports whether the base file name contains any of the
// given lower-case fragments.
func NameContains(filename string, fragments ...string) bool {
	base := strings.ToLower(filepath.Base(filename))
	for _, f := range fragments {
		if strings.Contains(base, f) {
			return true
		}
	}
	return false
}

// PreviewContains reports whether preview contains every given marker.
func PreviewContains(preview []byte, markers ...string) bool {
	for _, m := range markers {
		if !bytes.Contains(preview, []byte(m)) {
			return false
		}
	}
	return true
}

// NewFinding creates a finding attributed to this parser's tool.
func (b *BaseParser) NewFinding(sev severity.Level, title, description string) *finding.Finding {
	return finding.New(b.Meta.ToolName, sev, title, description)
}

// Clamp limits a confidence score to [0,1].
func Clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
