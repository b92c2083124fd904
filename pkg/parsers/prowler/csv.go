package prowler

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
)

// csvStream converts Prowler CSV rows one at a time. Columns are addressed by
// their upper-cased header names.
type csvStream struct {
	ctx      context.Context
	reader   *core.ChunkReader
	csv      *csv.Reader
	reporter *core.Reporter
	convert  func(map[string]string) *finding.Finding

	header   []string
	finished bool
}

func newCSVStream(ctx context.Context, src core.ChunkSource, progress core.ProgressFunc, convert func(map[string]string) *finding.Finding) *csvStream {
	reader := core.NewChunkReader(src)
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	reporter := core.NewReporter(progress, v2ProgressEvery, core.TotalBytes(src), reader.BytesRead)
	reporter.SetSection("csv")

	return &csvStream{ctx: ctx, reader: reader, csv: r, reporter: reporter, convert: convert}
}

// Next implements core.Stream.
func (s *csvStream) Next() (*finding.Finding, error) {
	if s.finished {
		return nil, io.EOF
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.finished = true
			return nil, err
		}
		fields, err := s.csv.Read()
		if err == io.EOF {
			s.finished = true
			s.reporter.Done()
			return nil, io.EOF
		}
		if err != nil {
			s.finished = true
			return nil, s.wrap(err)
		}
		if s.header == nil {
			s.header = make([]string, len(fields))
			for i, h := range fields {
				s.header[i] = strings.ToUpper(strings.TrimSpace(h))
			}
			continue
		}

		row := make(map[string]string, len(s.header))
		for i, v := range fields {
			if i < len(s.header) {
				row[s.header[i]] = strings.TrimSpace(v)
			}
		}
		if isPass(row["STATUS"]) {
			continue
		}
		f := s.convert(row)
		if f == nil {
			continue
		}
		s.reporter.Add(1)
		return f, nil
	}
}

func (s *csvStream) wrap(err error) error {
	pe := serrors.NewParseError(ToolName, "malformed CSV report", err)
	var ce *csv.ParseError
	if errors.As(err, &ce) {
		pe.Line = ce.Line
	}
	return pe
}
