package document

import (
	"bytes"
	"context"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/textenc"
)

// TextTool is the registered tool name of the plain-text parser.
const TextTool = "text"

// TextMaxFileSize bounds plain-text parsing (50 MiB).
const TextMaxFileSize int64 = 50 << 20

// TextParser extracts findings from plain-text, log and Markdown reports.
type TextParser struct {
	core.BaseParser
	x extractor
}

// NewTextParser creates a plain-text parser.
func NewTextParser(logger core.Logger) *TextParser {
	return &TextParser{
		BaseParser: core.BaseParser{Meta: core.ParserMetadata{
			ToolName:            TextTool,
			Description:         "Plain text security report parser",
			FileExtensions:      []string{".txt", ".log", ".md"},
			Capabilities:        core.CapBatch,
			MaxFileSize:         TextMaxFileSize,
			ConfidenceThreshold: 0.5,
		}},
		x: newExtractor(logger),
	}
}

// CanParse favors text files whose preview already shows severity-prefixed
// lines. Binary previews score zero.
func (p *TextParser) CanParse(preview []byte, filename string) float64 {
	if bytes.IndexByte(preview, 0) >= 0 {
		if enc, _ := textenc.DetectBOM(preview); enc != textenc.UTF16LE && enc != textenc.UTF16BE {
			return 0
		}
	}
	score := 0.0
	switch extension(filename) {
	case ".txt", ".log", ".md":
		score += 0.5
	}
	if score == 0 {
		return 0
	}
	text, _, err := textenc.DecodeAuto(preview)
	if err == nil {
		for _, e := range p.x.matcher.ExtractFindings(text) {
			if e.LineInText > 0 {
				score += 0.3
				break
			}
		}
	}
	return core.Clamp(score)
}

func (p *TextParser) ParseStream(ctx context.Context, chunks core.ChunkSource, progress core.ProgressFunc) core.Stream {
	return wholeDocument(ctx, TextTool, p.Meta.MaxFileSize, chunks, progress, p.load)
}

func (p *TextParser) load(_ context.Context, data []byte) ([]*finding.Finding, error) {
	text, enc, err := textenc.DecodeAuto(data)
	if err != nil {
		return nil, serrors.NewParseError(TextTool, "failed to decode text", err)
	}
	findings := p.x.finalize(TextTool, p.x.text(text, "text"), "Document")
	for _, f := range findings {
		f.SetMeta("encoding", enc)
	}
	return findings, nil
}

var _ core.Parser = (*TextParser)(nil)
