package prowler

import (
	"bufio"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/stream"
)

// v2ProgressEvery is the number of findings between progress notifications.
const v2ProgressEvery = 100

// V2Parser converts Prowler 2.x JSON and CSV reports.
type V2Parser struct {
	core.BaseParser
	logger core.Logger
}

// NewV2Parser creates a Prowler 2.x parser.
func NewV2Parser(logger core.Logger) *V2Parser {
	if logger == nil {
		logger = core.GetDefaultLogger()
	}
	return &V2Parser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:          ToolName,
			Description:       "Prowler v2.x legacy format parser (JSON and CSV)",
			SupportedVersions: []string{"2.0", "2.1", "2.2", "2.3", "2.4", "2.5", "2.6", "2.7", "2.8", "2.9"},
			FileExtensions:    []string{".json", ".csv"},
			Capabilities:      core.CapBatch | core.CapStreaming | core.CapValidation | core.CapMetadata,
		}},
		logger: logger,
	}
}

func (p *V2Parser) CanParse(preview []byte, filename string) float64 {
	score := 0.0
	if core.NameContains(filename, "prowler") {
		score += 0.3
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		score += 0.1
		if core.PreviewContains(preview, `"prowler_version"`, `"2.`) {
			score += 0.4
		}
		for _, marker := range []string{`"level"`, `"scored"`, `"result_extended"`} {
			if core.PreviewContains(preview, marker) {
				score += 0.2
				break
			}
		}
	case ".csv":
		score += 0.1
		if core.PreviewContains(preview, "CHECK_ID", "LEVEL", "SERVICE") {
			score += 0.5
		}
	}
	return core.Clamp(score)
}

// ValidateFormat warns when the preview is neither a findings document nor a
// Prowler CSV header.
func (p *V2Parser) ValidateFormat(preview []byte) []string {
	if core.PreviewContains(preview, `"findings"`) || core.PreviewContains(preview, "CHECK_ID") {
		return nil
	}
	return []string{"prowler v2: preview has neither a findings array nor a CHECK_ID column"}
}

// ParseStream picks JSON or CSV from the first significant byte and streams
// the failed checks.
func (p *V2Parser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	var inner core.Stream
	return core.StreamFunc(func() (*finding.Finding, error) {
		if inner == nil {
			inner = p.open(ctx, chunks, progress)
		}
		return inner.Next()
	})
}

func (p *V2Parser) open(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	total := core.TotalBytes(chunks)
	br := bufio.NewReader(core.NewChunkReader(chunks))
	first, err := firstSignificant(br)
	if err == io.EOF {
		reporter := core.NewReporter(progress, v2ProgressEvery, total, nil)
		return core.NewDeferredStream(ctx, func(context.Context) ([]*finding.Finding, error) { return nil, nil }, reporter)
	}
	if err != nil {
		return core.ErrStream(serrors.NewParseError(ToolName, "failed to read report", err))
	}

	src := core.NewReaderSource(br, 0, total)
	if first == '{' {
		return stream.NewDecoder(ctx, src, stream.Config{
			Tool:      ToolName,
			Path:      []string{"findings"},
			BatchSize: v2ProgressEvery,
			Skip:      func(rec stream.Record) bool { return isPass(rec.String("status")) },
			Convert:   p.convertJSON,
			Progress:  progress,
			Section:   "findings",
			Logger:    p.logger,
		})
	}
	return newCSVStream(ctx, src, progress, p.convertRow)
}

// firstSignificant peeks past whitespace and a UTF-8 byte order mark.
func firstSignificant(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.Discard(1)
		case 0xEF:
			if bom, _ := br.Peek(3); len(bom) == 3 && bom[1] == 0xBB && bom[2] == 0xBF {
				_, _ = br.Discard(3)
				continue
			}
			return b[0], nil
		default:
			return b[0], nil
		}
	}
}

func (p *V2Parser) convertJSON(rec stream.Record, ctx stream.Context) (*finding.Finding, error) {
	checkID := rec.String("check_id")
	title := rec.StringOr("check_title", checkID)
	if title == "" {
		title = "Unknown Check"
	}

	f := p.NewFinding(mapSeverity(rec.StringOr("level", "Medium")), title, rec.String("result_extended"))
	f.Category = finding.CategoryCompliance
	f.ToolFindingID = checkID

	region := rec.StringOr("region", "global")
	f.ResourceName = region
	f.ResourceType = "cloud_region"

	setIf(f, "check_id", checkID)
	setIf(f, "service", rec.String("service"))
	f.SetMeta("region", region)
	setIf(f, "account_id", rec.String("account_id"))
	f.SetMeta("scored", rec.Bool("scored", true))
	setIf(f, "status", rec.String("status"))
	setIf(f, "result_extended", rec.String("result_extended"))
	setIf(f, "prowler_version", ctx.String("prowler_version"))
	f.SetMeta("v2_format", true)
	return f.Normalize(), nil
}

func (p *V2Parser) convertRow(row map[string]string) *finding.Finding {
	checkID := row["CHECK_ID"]
	title := row["CHECK_TITLE"]
	if title == "" {
		title = checkID
	}
	if title == "" {
		title = "Unknown Check"
	}
	level := row["LEVEL"]
	if level == "" {
		level = "Medium"
	}

	f := p.NewFinding(mapSeverity(level), title, row["RESULT_EXTENDED"])
	f.Category = finding.CategoryCompliance
	f.ToolFindingID = checkID

	region := row["REGION"]
	if region == "" {
		region = "global"
	}
	f.ResourceName = region
	f.ResourceType = "cloud_region"

	setIf(f, "check_id", checkID)
	setIf(f, "service", row["SERVICE"])
	f.SetMeta("region", region)
	setIf(f, "account_id", row["ACCOUNT_ID"])
	setIf(f, "status", row["STATUS"])
	setIf(f, "result_extended", row["RESULT_EXTENDED"])
	f.SetMeta("v2_format", true)
	f.SetMeta("csv_format", true)
	return f.Normalize()
}

var _ core.Parser = (*V2Parser)(nil)
