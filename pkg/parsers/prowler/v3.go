package prowler

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/stream"
)

// v3BatchSize is the decoder flush size and progress cadence.
const v3BatchSize = 1000

// V3Parser converts Prowler 3.x JSON reports, keeping the compliance
// framework mappings of each check.
type V3Parser struct {
	core.BaseParser
	logger core.Logger
}

// NewV3Parser creates a Prowler 3.x parser.
func NewV3Parser(logger core.Logger) *V3Parser {
	if logger == nil {
		logger = core.GetDefaultLogger()
	}
	return &V3Parser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:          ToolName,
			Description:       "Prowler v3.x JSON format parser with compliance mapping support",
			SupportedVersions: []string{"3.0", "3.1", "3.2", "3.3"},
			FileExtensions:    []string{".json"},
			Capabilities:      core.CapBatch | core.CapStreaming | core.CapValidation | core.CapMetadata,
		}},
		logger: logger,
	}
}

func (p *V3Parser) CanParse(preview []byte, filename string) float64 {
	score := 0.0
	if core.NameContains(filename, "prowler") {
		score += 0.3
	}
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		score += 0.2
	}
	if core.PreviewContains(preview, `"prowler_version"`) {
		score += 0.3
		for _, v := range []string{`"3.0`, `"3.1`, `"3.2`, `"3.3`} {
			if core.PreviewContains(preview, v) {
				score += 0.2
				break
			}
		}
	}
	if core.PreviewContains(preview, `"findings"`) {
		score += 0.1
	}
	for _, marker := range []string{`"severity"`, `"check_id"`, `"compliance"`} {
		if core.PreviewContains(preview, marker) {
			score += 0.1
			break
		}
	}
	return core.Clamp(score)
}

// ValidateFormat warns when the preview has no findings array.
func (p *V3Parser) ValidateFormat(preview []byte) []string {
	if !core.PreviewContains(preview, `"findings"`) {
		return []string{"prowler v3: no \"findings\" key in preview"}
	}
	return nil
}

// ParseStream decodes the findings array incrementally, collecting each
// record's compliance object as framework -> requirement ids.
func (p *V3Parser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return stream.NewDecoder(ctx, chunks, stream.Config{
		Tool:        ToolName,
		Path:        []string{"findings"},
		GroupedKeys: []string{"compliance"},
		BatchSize:   v3BatchSize,
		Skip:        func(rec stream.Record) bool { return isPass(rec.String("status")) },
		Convert:     p.convert,
		Progress:    progress,
		Section:     "findings",
		Logger:      p.logger,
	})
}

func (p *V3Parser) convert(rec stream.Record, ctx stream.Context) (*finding.Finding, error) {
	checkID := rec.String("check_id")
	title := rec.StringOr("check_title", checkID)
	if title == "" {
		title = "Unknown Check"
	}

	f := p.NewFinding(mapSeverity(rec.StringOr("severity", "medium")), title, rec.String("description"))
	f.Category = finding.CategoryCompliance
	f.ToolFindingID = checkID
	f.ResourceName = rec.String("resource_id")
	f.ResourceType = rec.String("resource_type")
	f.Remediation = remediationText(rec["remediation"])

	setIf(f, "check_id", checkID)
	setIf(f, "service_name", rec.String("service_name"))
	setIf(f, "resource_id", f.ResourceName)
	setIf(f, "resource_type", f.ResourceType)
	f.SetMeta("region", rec.StringOr("region", "global"))
	f.SetMeta("provider", rec.StringOr("provider", "aws"))
	setIf(f, "status", rec.String("status"))
	setIf(f, "risk", rec.String("risk"))
	if v := rec["remediation"]; v != nil {
		f.SetMeta("remediation", v)
	}
	if v := rec.Map("resource_details"); v != nil {
		f.SetMeta("resource_details", v)
	}
	setIf(f, "prowler_version", ctx.String("prowler_version"))

	compliance := rec.Grouped("compliance")
	if compliance == nil {
		compliance = map[string][]string{}
	}
	f.SetMeta("compliance", compliance)
	frameworks := make([]string, 0, len(compliance))
	for name := range compliance {
		frameworks = append(frameworks, name)
	}
	sort.Strings(frameworks)
	f.Tags = append(f.Tags, frameworks...)

	return f.Normalize(), nil
}

// remediationText extracts a readable recommendation from Prowler's
// remediation value, which is either text or an object with a nested
// recommendation.
func remediationText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		rec := stream.Record(t)
		if r := rec.Map("recommendation"); r != nil {
			return stream.Record(r).String("text")
		}
		return rec.String("text")
	}
	return ""
}

var _ core.Parser = (*V3Parser)(nil)
