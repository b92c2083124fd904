// Package sarif parses generic SARIF 2.1.0 logs from any producing tool.
package sarif

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/sarif"
)

// ToolName is the registered tool name. Findings carry the lower-cased
// driver name of their run as tool_source.
const ToolName = "sarif"

// MaxFileSize bounds whole-document parsing (100 MiB).
const MaxFileSize int64 = 100 << 20

const progressEvery = 100

// Parser converts SARIF logs to findings.
type Parser struct {
	core.BaseParser
}

// NewParser creates a generic SARIF parser.
func NewParser() *Parser {
	return &Parser{BaseParser: core.BaseParser{Meta: core.ParserMetadata{
		ToolName:          ToolName,
		Description:       "Generic SARIF 2.1.0 parser",
		SupportedVersions: []string{"2.1.0"},
		FileExtensions:    []string{".sarif", ".json"},
		Capabilities:      core.CapBatch | core.CapValidation | core.CapMetadata,
		MaxFileSize:       MaxFileSize,
	}}}
}

func (p *Parser) CanParse(preview []byte, filename string) float64 {
	score := 0.0
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".sarif":
		score += 0.3
	case ".json":
		score += 0.1
	}
	if sarif.LooksLikeSARIF(preview) {
		score += 0.3
	}
	if core.PreviewContains(preview, `"runs"`) {
		score += 0.1
	}
	if core.PreviewContains(preview, `"2.1.0"`) {
		score += 0.1
	}
	return core.Clamp(score)
}

// ValidateFormat warns when the preview carries no SARIF markers.
func (p *Parser) ValidateFormat(preview []byte) []string {
	if sarif.LooksLikeSARIF(preview) {
		return nil
	}
	return []string{"sarif: preview has no $schema or runs/driver markers"}
}

// ParseStream reads the whole log, bounded by MaxFileSize, and converts
// every result of every run.
func (p *Parser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	var read int64
	reporter := core.NewReporter(progress, progressEvery, core.TotalBytes(chunks), func() int64 { return read })
	reporter.SetSection("runs")

	return core.NewDeferredStream(ctx, func(ctx context.Context) ([]*finding.Finding, error) {
		data, err := core.ReadAll(chunks, p.Meta.MaxFileSize)
		read = int64(len(data))
		if err != nil {
			return nil, serrors.NewParseError(ToolName, "failed to read SARIF log", err)
		}
		log, err := sarif.Parse(data)
		if err != nil {
			return nil, serrors.NewParseError(ToolName, "failed to parse SARIF log", err)
		}
		return sarif.Convert(log, sarif.ConvertOptions{Category: finding.CategorySecurity}), nil
	}, reporter)
}

var _ core.Parser = (*Parser)(nil)
