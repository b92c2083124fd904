package document

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/patterns"
	"github.com/exploopio/scanlens/pkg/textenc"
)

// SpreadsheetTool is the registered tool name of the spreadsheet parser.
const SpreadsheetTool = "spreadsheet"

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// delimiters are the CSV separators tried, in tie-break order.
var delimiters = []rune{',', ';', '\t', '|'}

const delimiterSample = 1000

// SpreadsheetParser extracts findings from CSV exports and Excel workbooks.
// Sheets with a recognizable header row are read as finding tables; others
// fall back to line matching over the cell text.
type SpreadsheetParser struct {
	core.BaseParser
	x extractor
}

// NewSpreadsheetParser creates a spreadsheet parser.
func NewSpreadsheetParser(logger core.Logger) *SpreadsheetParser {
	return &SpreadsheetParser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:            SpreadsheetTool,
			Description:         "CSV and XLSX security report parser",
			FileExtensions:      []string{".csv", ".tsv", ".xlsx", ".xls"},
			Capabilities:        core.CapBatch | core.CapValidation,
			MaxFileSize:         MaxFileSize,
			ConfidenceThreshold: 0.5,
		}},
		x: newExtractor(logger),
	}
}

// CanParse stays below the tool-specific CSV parsers so that a generic
// spreadsheet reading only wins when nothing else recognizes the file.
func (p *SpreadsheetParser) CanParse(preview []byte, filename string) float64 {
	switch extension(filename) {
	case ".csv", ".tsv":
		sample := preview
		if len(sample) > delimiterSample {
			sample = sample[:delimiterSample]
		}
		if bytes.ContainsAny(sample, ",;\t|") {
			return 0.6
		}
		return 0.5
	case ".xlsx", ".xls":
		if bytes.HasPrefix(preview, zipMagic) || bytes.HasPrefix(preview, oleMagic) {
			return 0.9
		}
		return 0.7
	}
	if bytes.HasPrefix(preview, zipMagic) && bytes.Contains(preview, []byte("xl/")) {
		return 0.85
	}
	return 0
}

func (p *SpreadsheetParser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return wholeDocument(ctx, SpreadsheetTool, p.Meta.MaxFileSize, chunks, progress, p.load)
}

func (p *SpreadsheetParser) load(ctx context.Context, data []byte) ([]*finding.Finding, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return p.loadWorkbook(ctx, data)
	case bytes.HasPrefix(data, oleMagic):
		return nil, &serrors.ParseError{
			Kind:      serrors.KindFormat,
			Processor: SpreadsheetTool,
			Message:   "legacy .xls (OLE2) workbooks are not supported, export as .xlsx or .csv",
		}
	}
	return p.loadCSV(data)
}

func (p *SpreadsheetParser) loadWorkbook(ctx context.Context, data []byte) ([]*finding.Finding, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, serrors.NewParseError(SpreadsheetTool, "failed to open workbook", err)
	}
	defer func() { _ = wb.Close() }()

	var out []*finding.Finding
	for _, sheet := range wb.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := wb.GetRows(sheet)
		if err != nil {
			p.x.logger.Warn("spreadsheet: skipping sheet %q: %v", sheet, err)
			continue
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			continue
		}
		for _, f := range p.x.finalize(SpreadsheetTool, p.extractRows(rows, "sheet "+sheet), "Sheet: "+sheet) {
			f.SetMeta("sheet", sheet)
			out = append(out, f)
		}
	}
	return out, nil
}

func (p *SpreadsheetParser) loadCSV(data []byte) ([]*finding.Finding, error) {
	text, _, err := textenc.DecodeAuto(data)
	if err != nil {
		return nil, serrors.NewParseError(SpreadsheetTool, "failed to decode CSV", err)
	}
	text = strings.TrimPrefix(text, "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = detectDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		pe := serrors.NewParseError(SpreadsheetTool, "malformed CSV", err)
		var ce *csv.ParseError
		if errors.As(err, &ce) {
			pe.Line = ce.Line
		}
		return nil, pe
	}
	rows = trimEmptyRows(rows)
	if len(rows) == 0 {
		return nil, nil
	}
	return p.x.finalize(SpreadsheetTool, p.extractRows(rows, "csv"), "Spreadsheet"), nil
}

// extractRows reads rows as a finding table when the first row is a
// recognizable header, else matches the joined cell text line by line.
func (p *SpreadsheetParser) extractRows(rows [][]string, source string) []patterns.Extracted {
	if p.x.hasContentColumn(rows[0]) {
		return p.x.tables.Extract(rows, source)
	}
	var b strings.Builder
	for _, row := range rows {
		var cells []string
		for _, c := range row {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, " "))
			b.WriteByte('\n')
		}
	}
	out := p.x.matcher.ExtractFindings(b.String())
	for i := range out {
		out[i].Source = source
	}
	return out
}

// detectDelimiter picks the most frequent separator in the leading sample.
func detectDelimiter(text string) rune {
	sample := []rune(text)
	if len(sample) > delimiterSample {
		sample = sample[:delimiterSample]
	}
	counts := make(map[rune]int, len(delimiters))
	for _, r := range sample {
		counts[r]++
	}
	best := delimiters[0]
	for _, d := range delimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

var _ core.Parser = (*SpreadsheetParser)(nil)
