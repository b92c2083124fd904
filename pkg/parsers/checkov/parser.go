// Package checkov parses Checkov infrastructure-as-code reports in Checkov
// JSON and SARIF form.
package checkov

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/sarif"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// ToolName is the registered tool name.
const ToolName = "checkov"

// MaxFileSize bounds whole-document parsing (100 MiB).
const MaxFileSize int64 = 100 << 20

const progressEvery = 50

// Parser converts Checkov output to findings.
type Parser struct {
	core.BaseParser
}

// NewParser creates a Checkov parser.
func NewParser() *Parser {
	return &Parser{BaseParser: core.BaseParser{Meta: core.ParserMetadata{
		ToolName:          ToolName,
		Description:       "Checkov parser for JSON and SARIF formats",
		SupportedVersions: []string{"2.0", "2.1", "2.2", "2.3", "2.4", "2.5"},
		FileExtensions:    []string{".json", ".sarif"},
		Capabilities:      core.CapBatch | core.CapStreaming | core.CapValidation | core.CapMetadata,
		MaxFileSize:       MaxFileSize,
	}}}
}

func (p *Parser) CanParse(preview []byte, filename string) float64 {
	score := 0.0
	if core.NameContains(filename, "checkov") {
		score += 0.4
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".sarif":
		score += 0.2
	}
	if core.PreviewContains(preview, `"check_type"`) {
		score += 0.3
	}
	if core.PreviewContains(preview, `"failed_checks"`) || core.PreviewContains(preview, `"passed_checks"`) {
		score += 0.2
	}
	for _, marker := range []string{`"CKV_`, `"CKV2_`, `"BC_`} {
		if core.PreviewContains(preview, marker) {
			score += 0.2
			break
		}
	}
	if core.PreviewContains(preview, `"$schema"`) && bytes.Contains(bytes.ToLower(preview), []byte("sarif")) {
		score += 0.2
		if core.PreviewContains(preview, `"tool"`, `"Checkov"`) {
			score += 0.2
		}
	}
	return core.Clamp(score)
}

// ValidateFormat warns when neither Checkov JSON nor SARIF markers appear.
func (p *Parser) ValidateFormat(preview []byte) []string {
	if core.PreviewContains(preview, `"check_type"`) || sarif.LooksLikeSARIF(preview) {
		return nil
	}
	return []string{"checkov: preview has neither check_type nor SARIF markers"}
}

// ParseStream reads the whole document, bounded by MaxFileSize, and emits
// the failed checks.
func (p *Parser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	var read int64
	reporter := core.NewReporter(progress, progressEvery, core.TotalBytes(chunks), func() int64 { return read })

	return core.NewDeferredStream(ctx, func(ctx context.Context) ([]*finding.Finding, error) {
		data, err := core.ReadAll(chunks, p.Meta.MaxFileSize)
		read = int64(len(data))
		if err != nil {
			return nil, serrors.NewParseError(ToolName, "failed to read report", err)
		}
		if isSARIF(data) {
			reporter.SetSection("sarif")
			return p.parseSARIF(data)
		}
		reporter.SetSection("failed_checks")
		return p.parseJSON(data)
	}, reporter)
}

func isSARIF(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	return bytes.Contains(head, []byte(`"$schema"`)) && bytes.Contains(bytes.ToLower(head), []byte("sarif"))
}

func (p *Parser) parseSARIF(data []byte) ([]*finding.Finding, error) {
	log, err := sarif.Parse(data)
	if err != nil {
		return nil, serrors.NewParseError(ToolName, "failed to parse Checkov SARIF report", err)
	}
	return sarif.Convert(log, sarif.ConvertOptions{
		ToolSource:      ToolName,
		Category:        finding.CategoryInfrastructure,
		TitleFromRuleID: true,
	}), nil
}

func (p *Parser) parseJSON(data []byte) ([]*finding.Finding, error) {
	reports, err := ParseReports(data)
	if err != nil {
		return nil, serrors.NewParseError(ToolName, "failed to parse Checkov report", err)
	}
	var out []*finding.Finding
	for _, r := range reports {
		checkType := r.CheckType
		if checkType == "" {
			checkType = "unknown"
		}
		for i := range r.Results.FailedChecks {
			out = append(out, p.convertCheck(&r.Results.FailedChecks[i], checkType, r.Summary.CheckovVersion))
		}
	}
	return out, nil
}

func (p *Parser) convertCheck(c *Check, checkType, version string) *finding.Finding {
	sev := severity.Medium
	if c.Severity != nil {
		sev = severity.FromString(*c.Severity)
	}

	title := c.CheckName
	if title == "" {
		title = c.CheckID
	}
	if title == "" {
		title = "Unknown Check"
	}

	f := p.NewFinding(sev, title, c.Description)
	f.Category = finding.CategoryInfrastructure
	f.ToolFindingID = c.CheckID
	f.ResourceName = c.Resource
	f.ResourceType = c.ResourceType
	if f.ResourceType == "" {
		f.ResourceType = checkType
	}
	f.FilePath = c.FilePath
	if len(c.FileLineRange) > 0 {
		f.LineNumber = c.FileLineRange[0]
	}
	if c.Guideline != "" {
		f.References = append(f.References, c.Guideline)
	}

	setIf(f, "check_id", c.CheckID)
	setIf(f, "bc_check_id", c.BCCheckID)
	setIf(f, "resource", c.Resource)
	setIf(f, "file_path", c.FilePath)
	setIf(f, "guideline", c.Guideline)
	setIf(f, "checkov_version", version)
	f.SetMeta("check_type", checkType)
	f.SetMeta("resource_type", f.ResourceType)
	if len(c.FileLineRange) > 0 {
		f.SetMeta("file_line_range", c.FileLineRange)
	}
	if snippet := formatCodeBlock(c.CodeBlock); snippet != "" {
		f.SetMeta("code_snippet", snippet)
	}
	return f.Normalize()
}

// formatCodeBlock renders Checkov's [[line, text], ...] pairs as "line: text".
func formatCodeBlock(block [][]any) string {
	var lines []string
	for _, pair := range block {
		if len(pair) < 2 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%v: %v", pair[0], strings.TrimRight(fmt.Sprint(pair[1]), "\n")))
	}
	return strings.Join(lines, "\n")
}

func setIf(f *finding.Finding, key, value string) {
	if value != "" {
		f.SetMeta(key, value)
	}
}

var _ core.Parser = (*Parser)(nil)
