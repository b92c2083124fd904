package core

import (
	"context"
	"io"

	"github.com/exploopio/scanlens/pkg/finding"
)

// =============================================================================
// Stream helpers
// =============================================================================

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func() (*finding.Finding, error)

// Next implements Stream.
func (f StreamFunc) Next() (*finding.Finding, error) { return f() }

// ErrStream returns a stream that fails immediately with err.
func ErrStream(err error) Stream {
	return StreamFunc(func() (*finding.Finding, error) { return nil, err })
}

// SliceStream returns a stream over already materialised findings.
func SliceStream(items []*finding.Finding) Stream {
	i := 0
	return StreamFunc(func() (*finding.Finding, error) {
		if i >= len(items) {
			return nil, io.EOF
		}
		f := items[i]
		i++
		return f, nil
	})
}

// LoadFunc produces every finding of an input at once. Parsers whose format
// cannot be read incrementally (whole-document JSON, DOCX, XLSX, PDF) use it
// together with a MaxFileSize bound.
type LoadFunc func(ctx context.Context) ([]*finding.Finding, error)

type deferredStream struct {
	ctx      context.Context
	load     LoadFunc
	reporter *Reporter

	loaded   bool
	finished bool
	items    []*finding.Finding
	err      error
}

// NewDeferredStream creates a stream that runs load on the first Next call
// and then hands findings out one at a time, reporting progress through
// reporter. If load fails after producing findings, those findings are
// emitted before the error.
func NewDeferredStream(ctx context.Context, load LoadFunc, reporter *Reporter) Stream {
	return &deferredStream{ctx: ctx, load: load, reporter: reporter}
}

func (s *deferredStream) Next() (*finding.Finding, error) {
	if !s.loaded {
		s.loaded = true
		s.items, s.err = s.load(s.ctx)
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.items) > 0 {
		f := s.items[0]
		s.items[0] = nil
		s.items = s.items[1:]
		s.reporter.Add(1)
		return f, nil
	}
	if s.finished {
		return nil, io.EOF
	}
	s.finished = true
	if s.err != nil {
		return nil, s.err
	}
	s.reporter.Done()
	return nil, io.EOF
}

// Collect drains a stream. It returns the findings read before the first
// error together with that error.
func Collect(s Stream) ([]*finding.Finding, error) {
	var out []*finding.Finding
	for {
		f, err := s.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
