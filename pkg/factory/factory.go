// Package factory selects a parser for an input and drives it.
//
// The factory owns no parsers; it asks the registry for ranked candidates,
// applies the selection policy and runs the chosen parser through
// core.ParseWithRecovery so that callers always get the findings produced
// before any failure together with a status.
package factory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exploopio/scanlens/pkg/compress"
	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/detect"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/metrics"
	"github.com/exploopio/scanlens/pkg/options"
)

// Selection is the outcome of parser selection.
type Selection struct {
	Parser     core.Parser `json:"-"`
	Tool       string      `json:"tool"`
	Confidence float64     `json:"confidence"`

	// Degraded is set when no candidate cleared its own threshold and the
	// best one was chosen anyway.
	Degraded bool   `json:"degraded,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// ToolMetrics is the per-tool usage record kept by the factory.
type ToolMetrics struct {
	ParseCount int           `json:"parse_count"`
	TotalTime  time.Duration `json:"total_time"`
	ErrorCount int           `json:"error_count"`
	LastUsed   time.Time     `json:"last_used"`
}

// AverageTime returns the mean elapsed time per parse.
func (m ToolMetrics) AverageTime() time.Duration {
	if m.ParseCount == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.ParseCount)
}

// Factory detects formats, selects parsers and runs them.
// It is safe for concurrent use.
type Factory struct {
	cfg *options.FactoryConfig

	mu    sync.Mutex
	stats map[string]*ToolMetrics
}

// New creates a factory. Without options it uses the default registry,
// a new detector and the default logger and collector.
func New(opts ...options.FactoryOption) *Factory {
	cfg := options.DefaultFactoryConfig()
	options.ApplyFactoryOptions(cfg, opts...)
	return &Factory{
		cfg:   cfg,
		stats: make(map[string]*ToolMetrics),
	}
}

// DetectFormat classifies the preview.
func (f *Factory) DetectFormat(preview []byte, filename string) detect.FormatInfo {
	info := f.cfg.Detector.Detect(preview, filename)
	f.cfg.Collector.CounterInc(metrics.DetectorDetectionsTotal.Name, "format", info.FormatType)
	return info
}

// GetParser selects a parser for the preview.
//
// A preferred tool is used only when its own score clears its own
// threshold. Otherwise the ranked candidates are walked and the first that
// clears its threshold wins. When none does, the best candidate is returned
// with Degraded set. serrors.ErrNoParser is returned only when no parser
// scored above zero.
func (f *Factory) GetParser(preview []byte, filename, preferredTool string) (Selection, error) {
	if preferredTool != "" {
		if sel, ok := f.preferred(preview, filename, preferredTool); ok {
			return sel, nil
		}
	}

	candidates := f.cfg.Registry.CompatibleParsers(preview, filename)
	if len(candidates) == 0 {
		f.cfg.Logger.Warn("factory: no parser found for file: %s", filename)
		return Selection{}, &serrors.Error{
			Kind:    serrors.KindNoParser,
			Op:      "factory.GetParser",
			Message: fmt.Sprintf("no compatible parser for %q", filename),
		}
	}

	for _, c := range candidates {
		if c.Confidence >= c.Metadata.Threshold() {
			f.cfg.Logger.Debug("factory: selected %s for %s (confidence %.2f)", c.Metadata.ToolName, filename, c.Confidence)
			return Selection{Parser: c.Parser, Tool: c.Metadata.ToolName, Confidence: c.Confidence}, nil
		}
	}

	best := candidates[0]
	warning := fmt.Sprintf("no parser reached its confidence threshold; using %s with confidence %.2f (threshold %.2f)",
		best.Metadata.ToolName, best.Confidence, best.Metadata.Threshold())
	f.cfg.Logger.Warn("factory: %s: %s", filename, warning)
	f.cfg.Collector.CounterInc(metrics.ParserDegradedSelections.Name, "tool", best.Metadata.ToolName)

	return Selection{
		Parser:     best.Parser,
		Tool:       best.Metadata.ToolName,
		Confidence: best.Confidence,
		Degraded:   true,
		Warning:    warning,
	}, nil
}

func (f *Factory) preferred(preview []byte, filename, tool string) (Selection, bool) {
	p, ok := f.cfg.Registry.ParserForTool(tool, "")
	if !ok {
		f.cfg.Logger.Warn("factory: preferred tool %q is not registered", tool)
		return Selection{}, false
	}
	meta := p.Metadata()
	score, err := core.SafeCanParse(p, preview, filename)
	if err != nil {
		f.cfg.Logger.Warn("factory: preferred parser %s failed to score: %v", meta.ToolName, err)
		return Selection{}, false
	}
	if score < meta.Threshold() {
		f.cfg.Logger.Info("factory: preferred parser %s scored %.2f below threshold %.2f, falling back",
			meta.ToolName, score, meta.Threshold())
		return Selection{}, false
	}
	return Selection{Parser: p, Tool: meta.ToolName, Confidence: score}, true
}

// =============================================================================
// Metrics
// =============================================================================

// TrackMetrics records one parse run for tool. It logs a warning when the
// tool's average elapsed time exceeds the slow threshold; it never blocks.
func (f *Factory) TrackMetrics(tool string, elapsed time.Duration, ok bool) {
	f.mu.Lock()
	m, exists := f.stats[tool]
	if !exists {
		m = &ToolMetrics{}
		f.stats[tool] = m
	}
	m.ParseCount++
	m.TotalTime += elapsed
	if !ok {
		m.ErrorCount++
	}
	m.LastUsed = time.Now()
	avg := m.AverageTime()
	count := m.ParseCount
	f.mu.Unlock()

	if avg > f.cfg.SlowThreshold {
		f.cfg.Logger.Warn("factory: parser %s is slow: average %s over %d parses", tool, avg.Round(time.Millisecond), count)
	}
}

// Metrics returns a snapshot of the per-tool usage table.
func (f *Factory) Metrics() map[string]ToolMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]ToolMetrics, len(f.stats))
	for tool, m := range f.stats {
		out[tool] = *m
	}
	return out
}

// Tools returns the tools with recorded metrics, sorted.
func (f *Factory) Tools() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	tools := make([]string, 0, len(f.stats))
	for tool := range f.stats {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

// =============================================================================
// Orchestration
// =============================================================================

// Result is the outcome of a complete parse run.
type Result struct {
	RunID     string             `json:"run_id"`
	Tool      string             `json:"tool"`
	Format    detect.FormatInfo  `json:"format"`
	Selection Selection          `json:"selection"`
	Findings  []*finding.Finding `json:"findings"`
	Status    core.Status        `json:"status"`
	Err       error              `json:"-"`
	Elapsed   time.Duration      `json:"elapsed"`
}

// ParseFile parses the file at path and collects every finding.
func (f *Factory) ParseFile(ctx context.Context, path string, opts ...options.ParseOption) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, serrors.Wrap(err, "factory.ParseFile")
	}
	defer file.Close()

	var total int64
	if st, err := file.Stat(); err == nil {
		total = st.Size()
	}
	return f.parse(ctx, file, filepath.Base(path), total, opts...)
}

// ParseReader parses r, named filename, and collects every finding.
func (f *Factory) ParseReader(ctx context.Context, r io.Reader, filename string, opts ...options.ParseOption) (*Result, error) {
	return f.parse(ctx, r, filename, 0, opts...)
}

func (f *Factory) parse(ctx context.Context, r io.Reader, filename string, total int64, opts ...options.ParseOption) (*Result, error) {
	run, err := f.open(ctx, r, filename, total, options.ApplyParseOptions(opts...))
	if err != nil {
		return nil, err
	}

	findings, _ := core.Collect(run)
	run.Close()

	return &Result{
		RunID:     run.RunID,
		Tool:      run.Selection.Tool,
		Format:    run.Format,
		Selection: run.Selection,
		Findings:  findings,
		Status:    run.Status(),
		Err:       run.Err(),
		Elapsed:   run.Elapsed(),
	}, nil
}

// Open prepares a parse run over r and returns it as a stream. Findings are
// produced as the caller pulls them; the caller must Close the run.
func (f *Factory) Open(ctx context.Context, r io.Reader, filename string, opts ...options.ParseOption) (*Run, error) {
	return f.open(ctx, r, filename, 0, options.ApplyParseOptions(opts...))
}

func (f *Factory) open(ctx context.Context, r io.Reader, filename string, total int64, pc *options.ParseConfig) (*Run, error) {
	preview, err := readPreview(r, f.cfg.PreviewSize)
	if err != nil {
		return nil, serrors.Wrap(err, "factory.preview")
	}
	info := f.DetectFormat(preview, filename)

	var closer io.Closer
	if info.IsCompressed() {
		alg := compress.Sniff(preview)
		if alg == compress.AlgorithmNone {
			alg, _ = compress.ParseAlgorithm(info.FormatType)
		}
		rc, err := compress.NewReader(io.MultiReader(bytes.NewReader(preview), r), alg)
		if err != nil {
			return nil, serrors.NewParseError("factory", "cannot open compressed input", err).WithFile(filename)
		}
		closer = rc
		r = compress.NewLimitedReader(rc, f.cfg.MaxDecompressedSize)
		filename = stripCompressionExt(filename)
		total = 0

		if preview, err = readPreview(r, f.cfg.PreviewSize); err != nil {
			rc.Close()
			return nil, serrors.NewParseError("factory", "cannot decompress input", err).WithFile(filename)
		}
		info = f.DetectFormat(preview, filename)
		f.cfg.Logger.Debug("factory: decompressed %s input, detected %s", alg, info.FormatType)
	}

	sel, err := f.GetParser(preview, filename, pc.PreferredTool)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	for _, w := range core.ValidateFormat(sel.Parser, preview) {
		f.cfg.Logger.Warn("factory: %s: %s", filename, w)
	}

	meta := sel.Parser.Metadata()
	if meta.MaxFileSize > 0 && total > meta.MaxFileSize {
		if closer != nil {
			closer.Close()
		}
		return nil, serrors.NewParseError(meta.ToolName,
			fmt.Sprintf("file size %d exceeds parser limit %d", total, meta.MaxFileSize), core.ErrTooLarge).WithFile(filename)
	}

	chunks := core.NewPrefixedSource(preview, core.NewReaderSource(r, f.cfg.ChunkSize, 0), total)

	run := &Run{
		RunID:     uuid.New().String(),
		Format:    info,
		Selection: sel,
		factory:   f,
		closer:    closer,
		timer:     metrics.NewTimer(f.cfg.Collector, metrics.ParserParseDuration.Name, "tool", sel.Tool),
	}
	f.cfg.Collector.GaugeInc(metrics.ParserActiveParses.Name, "tool", sel.Tool)
	run.stream = core.ParseWithRecovery(ctx, sel.Parser, chunks, pc.Progress, f.cfg.Logger)
	return run, nil
}

// readPreview reads up to n bytes. A short input is not an error.
func readPreview(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:read], err
}

var compressionExts = []string{".gz", ".gzip", ".zst", ".zstd"}

func stripCompressionExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range compressionExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
