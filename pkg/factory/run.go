package factory

import (
	"io"
	"time"

	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/detect"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/metrics"
)

// Run is one parse in progress. It implements core.Stream; Next never
// returns an error other than io.EOF, and Status and Err report the outcome
// once the stream has ended.
type Run struct {
	RunID     string
	Format    detect.FormatInfo
	Selection Selection

	factory *Factory
	stream  *core.RecoveringStream
	closer  io.Closer

	timer   *metrics.Timer
	elapsed time.Duration
	closed  bool
}

// Next returns the next finding.
func (r *Run) Next() (*finding.Finding, error) {
	if r.closed {
		return nil, io.EOF
	}
	f, err := r.stream.Next()
	if err != nil {
		r.finish()
		return nil, err
	}
	r.factory.cfg.Collector.CounterInc(metrics.ParserFindingsTotal.Name,
		"tool", r.Selection.Tool, "severity", string(f.Severity))
	return f, nil
}

// Status reports the outcome. A run closed before its stream ended reports
// the status at the time it was closed.
func (r *Run) Status() core.Status {
	if s := r.stream.Status(); s != core.StatusRunning || !r.closed {
		return s
	}
	if r.stream.Count() > 0 {
		return core.StatusPartial
	}
	return core.StatusSuccess
}

// Err returns the parser error that ended the stream, if any.
func (r *Run) Err() error {
	return r.stream.Err()
}

// Count returns the number of findings produced so far.
func (r *Run) Count() int {
	return r.stream.Count()
}

// Elapsed returns the run time, final once the run has ended.
func (r *Run) Elapsed() time.Duration {
	if r.closed {
		return r.elapsed
	}
	return r.timer.Elapsed()
}

// Close ends the run and releases the input. It is safe to call twice.
func (r *Run) Close() error {
	r.finish()
	return nil
}

func (r *Run) finish() {
	if r.closed {
		return
	}
	r.closed = true
	r.elapsed = r.timer.ObserveDuration()
	if r.closer != nil {
		r.closer.Close()
	}

	f := r.factory
	tool := r.Selection.Tool
	ok := r.stream.Err() == nil
	f.TrackMetrics(tool, r.elapsed, ok)

	c := f.cfg.Collector
	c.GaugeDec(metrics.ParserActiveParses.Name, "tool", tool)
	c.CounterInc(metrics.ParserParsesTotal.Name, "tool", tool, "status", string(r.Status()))

	if ok {
		f.cfg.Logger.Debug("factory: %s produced %d findings in %s", tool, r.stream.Count(), r.elapsed)
	}
}

var _ core.Stream = (*Run)(nil)
