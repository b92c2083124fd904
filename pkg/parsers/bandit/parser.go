// Package bandit parses Bandit (Python SAST) JSON reports.
package bandit

import (
	"context"
	"regexp"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
	"github.com/exploopio/scanlens/pkg/stream"
)

// ToolName is the registered tool name.
const ToolName = "bandit"

// progressEvery is the number of findings between progress notifications.
const progressEvery = 50

// Parser converts Bandit JSON output to findings.
type Parser struct {
	core.BaseParser
	logger core.Logger
}

// NewParser creates a Bandit parser.
func NewParser(logger core.Logger) *Parser {
	if logger == nil {
		logger = core.GetDefaultLogger()
	}
	return &Parser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:          ToolName,
			Description:       "Bandit Python security scanner parser with code sanitization",
			SupportedVersions: []string{"1.0", "1.1", "1.2", "1.3", "1.4", "1.5", "1.6", "1.7"},
			FileExtensions:    []string{".json"},
			Capabilities:      core.CapBatch | core.CapStreaming | core.CapValidation | core.CapMetadata,
		}},
		logger: logger,
	}
}

// CanParse scores file name hints and Bandit-specific keys in the preview.
func (p *Parser) CanParse(preview []byte, filename string) float64 {
	score := 0.0
	if core.NameContains(filename, "bandit") {
		score += 0.4
	}
	if strings.HasSuffix(strings.ToLower(filename), ".json") {
		score += 0.1
	}
	if core.PreviewContains(preview, `"generated_at"`) {
		score += 0.2
	}
	if core.PreviewContains(preview, `"metrics"`, `"results"`) {
		score += 0.3
	}
	for _, marker := range []string{`"B301"`, `"B105"`, `"B307"`, `"test_id"`} {
		if core.PreviewContains(preview, marker) {
			score += 0.2
			break
		}
	}
	if core.PreviewContains(preview, `"issue_confidence"`, `"issue_severity"`) {
		score += 0.2
	}
	return core.Clamp(score)
}

// ValidateFormat warns when the preview lacks a results array.
func (p *Parser) ValidateFormat(preview []byte) []string {
	if !core.PreviewContains(preview, `"results"`) {
		return []string{"bandit: no \"results\" key in preview"}
	}
	return nil
}

var generatedAt = regexp.MustCompile(`"generated_at"\s*:\s*"([^"]+)"`)

// ExtractMetadata returns the report timestamp when present.
func (p *Parser) ExtractMetadata(preview []byte) map[string]any {
	meta := map[string]any{"tool": ToolName}
	if m := generatedAt.FindSubmatch(preview); m != nil {
		meta["scan_date"] = string(m[1])
	}
	return meta
}

// ParseStream decodes the results array incrementally.
func (p *Parser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return stream.NewDecoder(ctx, chunks, stream.Config{
		Tool:      ToolName,
		Path:      []string{"results"},
		BatchSize: progressEvery,
		Convert:   p.convert,
		Progress:  progress,
		Section:   "results",
		Logger:    p.logger,
	})
}

func (p *Parser) convert(rec stream.Record, ctx stream.Context) (*finding.Finding, error) {
	sev, ok := severity.Parse(rec.String("issue_severity"))
	if !ok {
		sev = severity.Medium
	}

	testID := rec.String("test_id")
	title := rec.StringOr("test_name", testID)
	if title == "" {
		title = "Unknown Test"
	}

	f := p.NewFinding(sev, title, rec.String("issue_text"))
	f.Category = finding.CategorySecurity
	f.ToolFindingID = testID
	f.FilePath = rec.String("filename")
	if line, ok := rec.Int("line_number"); ok && line > 0 {
		f.LineNumber = line
	}
	if f.FilePath != "" {
		f.ResourceType = "source_file"
		f.ResourceName = f.FilePath
	}

	setIf(f, "test_id", testID)
	setIf(f, "test_name", rec.String("test_name"))
	setIf(f, "filename", f.FilePath)
	if v, ok := rec["line_number"]; ok && v != nil {
		f.SetMeta("line_number", v)
	}
	if v, ok := rec["line_range"]; ok && v != nil {
		f.SetMeta("line_range", v)
	}
	f.SetMeta("confidence", rec.StringOr("issue_confidence", "MEDIUM"))
	if code := rec.String("code"); code != "" {
		f.SetMeta("code_snippet", Sanitize(code))
	}

	if cwe := rec.Map("issue_cwe"); cwe != nil {
		if id := stream.Record(cwe).String("id"); id != "" && id != "0" {
			f.SetMeta("cwe_id", id)
			f.Tags = append(f.Tags, "CWE-"+id)
		}
		if link := stream.Record(cwe).String("link"); link != "" {
			f.SetMeta("cwe_link", link)
			f.References = append(f.References, link)
		}
	}
	if info := rec.String("more_info"); info != "" {
		f.References = append(f.References, info)
	}
	if at := ctx.String("generated_at"); at != "" {
		f.SetMeta("scan_date", at)
	}

	return f.Normalize(), nil
}

func setIf(f *finding.Finding, key, value string) {
	if value != "" {
		f.SetMeta(key, value)
	}
}

var _ core.Parser = (*Parser)(nil)
