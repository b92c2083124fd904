package document

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/patterns"
)

// DOCXTool is the registered tool name of the Word parser.
const DOCXTool = "docx"

var zipMagic = []byte("PK\x03\x04")

// DOCXParser extracts findings from Word reports: free paragraphs, tables
// and heading-structured finding sections.
type DOCXParser struct {
	core.BaseParser
	x extractor
}

// NewDOCXParser creates a Word parser.
func NewDOCXParser(logger core.Logger) *DOCXParser {
	return &DOCXParser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:            DOCXTool,
			Description:         "DOCX (Word) security report parser",
			FileExtensions:      []string{".docx"},
			Capabilities:        core.CapBatch | core.CapValidation,
			MaxFileSize:         MaxFileSize,
			ConfidenceThreshold: 0.7,
		}},
		x: newExtractor(logger),
	}
}

func (p *DOCXParser) CanParse(preview []byte, filename string) float64 {
	docx := extension(filename) == ".docx"
	if bytes.HasPrefix(preview, zipMagic) {
		switch {
		case docx:
			return 0.95
		case bytes.Contains(preview, []byte("word/")):
			return 0.9
		}
		return 0.3
	}
	if docx {
		return 0.7
	}
	return 0
}

// ValidateFormat warns when the input is not a zip container.
func (p *DOCXParser) ValidateFormat(preview []byte) []string {
	if !bytes.HasPrefix(preview, zipMagic) {
		return []string{"docx: input is not a zip container"}
	}
	return nil
}

func (p *DOCXParser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return wholeDocument(ctx, DOCXTool, p.Meta.MaxFileSize, chunks, progress, p.load)
}

func (p *DOCXParser) load(ctx context.Context, data []byte) ([]*finding.Finding, error) {
	body, err := readDocxBody(data)
	if err != nil {
		return nil, serrors.NewParseError(DOCXTool, "failed to read document", err)
	}

	var (
		text   strings.Builder
		blocks []patterns.Block
		cands  []patterns.Extracted
		tables int
	)
	for _, el := range body {
		if el.table != nil {
			tables++
			cands = append(cands, p.x.tables.Extract(el.table, fmt.Sprintf("table %d", tables))...)
			continue
		}
		if el.text == "" {
			continue
		}
		text.WriteString(el.text)
		text.WriteByte('\n')
		blocks = append(blocks, patterns.Block{Text: el.text, Heading: el.heading})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := p.x.matcher.ExtractSections(blocks, "sections")
	for _, e := range p.x.matcher.ExtractFindings(text.String()) {
		// Heading-structured reports are already covered by their sections.
		if e.Method == patterns.MethodNarrative && len(sections) > 0 {
			continue
		}
		e.Source = "body"
		cands = append(cands, e)
	}
	cands = append(cands, sections...)

	return p.x.finalize(DOCXTool, cands, "Document"), nil
}

// =============================================================================
// WordprocessingML
// =============================================================================

type docxPara struct {
	PPr        *docxParaPr     `xml:"pPr"`
	Runs       []docxRun       `xml:"r"`
	Hyperlinks []docxHyperlink `xml:"hyperlink"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxHyperlink struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

func (p *docxPara) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
	for _, h := range p.Hyperlinks {
		for _, r := range h.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func (p *docxPara) isHeading() bool {
	if p.PPr == nil || p.PPr.PStyle == nil {
		return false
	}
	style := strings.ToLower(p.PPr.PStyle.Val)
	return strings.HasPrefix(style, "heading") || strings.HasPrefix(style, "title")
}

func (t *docxTable) rows() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			parts := make([]string, 0, len(cell.Paras))
			for i := range cell.Paras {
				if s := cell.Paras[i].text(); s != "" {
					parts = append(parts, s)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		out = append(out, cells)
	}
	return out
}

// bodyElement is a paragraph or a table, in document order.
type bodyElement struct {
	text    string
	heading bool
	table   [][]string
}

// readDocxBody returns the top-level paragraphs and tables of
// word/document.xml in reading order.
func readDocxBody(data []byte) ([]bodyElement, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	if err := seekElement(dec, "body"); err != nil {
		return nil, err
	}

	var out []bodyElement
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unterminated document body")
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				var para docxPara
				if err := dec.DecodeElement(&para, &t); err != nil {
					return nil, err
				}
				out = append(out, bodyElement{text: para.text(), heading: para.isHeading()})
			case "tbl":
				var tbl docxTable
				if err := dec.DecodeElement(&tbl, &t); err != nil {
					return nil, err
				}
				out = append(out, bodyElement{table: tbl.rows()})
			default:
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "body" {
				return out, nil
			}
		}
	}
}

func seekElement(dec *xml.Decoder, local string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("<%s> not found", local)
			}
			return err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == local {
			return nil
		}
	}
}

var _ core.Parser = (*DOCXParser)(nil)
