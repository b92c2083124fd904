package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/patterns"
)

// PDFTool is the registered tool name of the PDF parser.
const PDFTool = "pdf"

var pdfMagic = []byte("%PDF-")

// PDFParser extracts findings from the text layer of PDF reports. Scanned
// documents without a text layer yield nothing.
type PDFParser struct {
	core.BaseParser
	x extractor
}

// NewPDFParser creates a PDF parser.
func NewPDFParser(logger core.Logger) *PDFParser {
	return &PDFParser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:            PDFTool,
			Description:         "PDF security report parser",
			FileExtensions:      []string{".pdf"},
			Capabilities:        core.CapBatch | core.CapValidation,
			MaxFileSize:         MaxFileSize,
			ConfidenceThreshold: 0.7,
		}},
		x: newExtractor(logger),
	}
}

func (p *PDFParser) CanParse(preview []byte, filename string) float64 {
	if bytes.HasPrefix(preview, pdfMagic) {
		return 0.95
	}
	if extension(filename) == ".pdf" {
		return 0.8
	}
	return 0
}

// ValidateFormat warns when the PDF header is missing.
func (p *PDFParser) ValidateFormat(preview []byte) []string {
	if !bytes.HasPrefix(preview, pdfMagic) {
		return []string{"pdf: missing %PDF- header"}
	}
	return nil
}

func (p *PDFParser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return wholeDocument(ctx, PDFTool, p.Meta.MaxFileSize, chunks, progress, p.load)
}

func (p *PDFParser) load(ctx context.Context, data []byte) ([]*finding.Finding, error) {
	pages, err := pageTexts(data)
	if err != nil {
		return nil, serrors.NewParseError(PDFTool, "failed to read PDF", err)
	}
	if len(pages) == 0 {
		p.x.logger.Warn("pdf: no text layer found")
	}
	var cands []patterns.Extracted
	for i, text := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands = append(cands, p.x.text(text, fmt.Sprintf("page %d", i+1))...)
	}
	return p.x.finalize(PDFTool, cands, "Document"), nil
}

// pageTexts returns the plain text of every page in order. Pages that fail
// to render keep an empty slot so page numbers stay aligned.
func pageTexts(data []byte) (texts []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	texts = make([]string, n)
	nonEmpty := false
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = strings.TrimSpace(text)
		nonEmpty = nonEmpty || texts[i-1] != ""
	}
	if !nonEmpty {
		return nil, nil
	}
	return texts, nil
}

var _ core.Parser = (*PDFParser)(nil)
