package core

import (
	"context"
	"fmt"
	"io"
	"math"

	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
)

// SafeCanParse calls p.CanParse, turning a panic into 0 and clamping the
// result to [0,1]. NaN scores are treated as 0.
func SafeCanParse(p Parser, preview []byte, filename string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = 0
			err = fmt.Errorf("CanParse panicked: %v", r)
		}
	}()
	score = p.CanParse(preview, filename)
	switch {
	case math.IsNaN(score) || score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return score, nil
}

// =============================================================================
// Recovering stream
// =============================================================================

// Status is the post-hoc outcome of a recovering parse.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// RecoveringStream forwards findings from an underlying stream and ends
// cleanly on the first error. Callers that need strict failure inspect Err
// or Status after the stream returns io.EOF.
type RecoveringStream struct {
	inner  Stream
	tool   string
	logger Logger

	count    int
	finished bool
	err      error
}

// ParseWithRecovery drives p.ParseStream and absorbs any error it raises,
// including panics. Findings produced before the failure are kept.
func ParseWithRecovery(ctx context.Context, p Parser, chunks ChunkSource, progress ProgressFunc, logger Logger) *RecoveringStream {
	if logger == nil {
		logger = GetDefaultLogger()
	}
	tool := p.Metadata().ToolName

	rs := &RecoveringStream{tool: tool, logger: logger}
	func() {
		defer func() {
			if r := recover(); r != nil {
				rs.inner = ErrStream(serrors.NewParseError(tool, "parser panicked", fmt.Errorf("%v", r)))
			}
		}()
		rs.inner = p.ParseStream(ctx, chunks, progress)
	}()
	return rs
}

// Next implements Stream. It never returns an error other than io.EOF.
func (s *RecoveringStream) Next() (f *finding.Finding, err error) {
	if s.finished {
		return nil, io.EOF
	}
	defer func() {
		if r := recover(); r != nil {
			s.fail(serrors.NewParseError(s.tool, "parser panicked", fmt.Errorf("%v", r)))
			f, err = nil, io.EOF
		}
	}()

	f, err = s.inner.Next()
	switch {
	case err == nil:
		s.count++
		return f, nil
	case err == io.EOF:
		s.finished = true
		return nil, io.EOF
	default:
		s.fail(err)
		return nil, io.EOF
	}
}

func (s *RecoveringStream) fail(err error) {
	s.finished = true
	s.err = err
	s.logger.Error("%s: parse failed after %d findings: %v", s.tool, s.count, err)
}

// Err returns the error that ended the stream, if any.
func (s *RecoveringStream) Err() error {
	return s.err
}

// Count returns the number of findings forwarded so far.
func (s *RecoveringStream) Count() int {
	return s.count
}

// Status reports the outcome. Before the stream ends it is StatusRunning.
func (s *RecoveringStream) Status() Status {
	switch {
	case !s.finished:
		return StatusRunning
	case s.err == nil:
		return StatusSuccess
	case s.count > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
