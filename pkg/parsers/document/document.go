// Package document recovers findings from human-written security reports:
// PDF, Word, spreadsheets and plain text.
//
// Every parser reduces its input to text lines, tables and heading-structured
// blocks and runs them through the pattern engine. Each candidate is scored
// for completeness; candidates below patterns.DefaultDiscardThreshold are
// dropped and the rest carry their score in the "confidence" metadata key.
package document

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/patterns"
)

// MaxFileSize bounds whole-document parsing (100 MiB).
const MaxFileSize int64 = 100 << 20

// DefaultTitle names candidates that carried no title.
const DefaultTitle = "Security Finding"

const progressEvery = 50

// extractor bundles the pattern engine shared by the document parsers.
type extractor struct {
	matcher   *patterns.Matcher
	tables    *patterns.TableExtractor
	scorer    *patterns.ConfidenceScorer
	threshold float64
	logger    core.Logger
}

func newExtractor(logger core.Logger) extractor {
	if logger == nil {
		logger = core.GetDefaultLogger()
	}
	return extractor{
		matcher:   patterns.NewMatcher(),
		tables:    patterns.NewTableExtractor(),
		scorer:    patterns.NewConfidenceScorer(),
		threshold: patterns.DefaultDiscardThreshold,
		logger:    logger,
	}
}

// text runs the line matcher over free text and the table extractor over any
// aligned tables found in it.
func (x extractor) text(text, source string) []patterns.Extracted {
	tables, rest := patterns.SplitTextTables(text)
	var out []patterns.Extracted
	for _, t := range tables {
		out = append(out, x.tables.Extract(t, source)...)
	}
	if strings.TrimSpace(rest) == "" {
		return out
	}
	for _, e := range x.matcher.ExtractFindings(rest) {
		if e.Source == "" {
			e.Source = source
		}
		out = append(out, e)
	}
	return out
}

// finalize scores candidates, drops the weak ones and converts the rest.
// fallbackResource names the document when a candidate has no location.
func (x extractor) finalize(tool string, cands []patterns.Extracted, fallbackResource string) []*finding.Finding {
	out := make([]*finding.Finding, 0, len(cands))
	dropped := 0
	for i := range cands {
		e := &cands[i]
		score := x.scorer.Score(e)
		if score < x.threshold {
			dropped++
			continue
		}
		if e.Title == "" {
			e.Title = DefaultTitle
		}
		if e.Resource == "" && len(e.Files) == 0 {
			e.Resource = fallbackResource
		}
		out = append(out, e.ToFinding(tool, score))
	}
	if dropped > 0 {
		x.logger.Debug("%s: dropped %d of %d candidates below confidence %.2f", tool, dropped, len(cands), x.threshold)
	}
	return out
}

// hasContentColumn reports whether a header row maps a title or description.
func (x extractor) hasContentColumn(header []string) bool {
	for _, field := range x.tables.MapHeaders(header) {
		if field == patterns.FieldTitle || field == patterns.FieldDescription {
			return true
		}
	}
	return false
}

// loadFunc parses a whole document already read into memory.
type loadFunc func(ctx context.Context, data []byte) ([]*finding.Finding, error)

// wholeDocument reads chunks up to limit and hands the bytes to load.
func wholeDocument(ctx context.Context, tool string, limit int64, chunks core.ChunkSource, progress core.ProgressFunc, load loadFunc) core.Stream {
	var read int64
	reporter := core.NewReporter(progress, progressEvery, core.TotalBytes(chunks), func() int64 { return read })
	reporter.SetSection("document")

	return core.NewDeferredStream(ctx, func(ctx context.Context) ([]*finding.Finding, error) {
		data, err := core.ReadAll(chunks, limit)
		read = int64(len(data))
		if err != nil {
			return nil, serrors.NewParseError(tool, "failed to read document", err)
		}
		return load(ctx, data)
	}, reporter)
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
