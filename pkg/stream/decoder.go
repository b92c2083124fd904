// Package stream decodes large JSON reports incrementally.
//
// A Decoder walks a document token by token to the array of records named by
// Config.Path and converts each record as soon as its object closes. Findings
// are buffered into batches of Config.BatchSize and handed out in arrival
// order, so peak memory is one batch plus the record being accumulated,
// whatever the size of the input.
//
// Position in the document is tracked with an explicit stack of typed frames:
//
//	frameNavigate        object on the way to the record array
//	frameInArray         the record array itself
//	frameInRecord        one record object, with its field accumulator
//	frameInGroupedList   a grouped sub-object of a record (name -> list)
//	frameInGroupedChild  one named scalar list inside a grouped sub-object
//
// When the input turns out to be malformed, every finding already converted
// is emitted before the error.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
)

// DefaultBatchSize is the flush size used when Config.BatchSize is unset.
const DefaultBatchSize = 1000

// ConvertFunc turns one record into a finding. A nil finding drops the
// record; an error drops it and is logged.
type ConvertFunc func(rec Record, ctx Context) (*finding.Finding, error)

// Config describes the document shape and the conversion.
type Config struct {
	// Tool names the processor in errors and logs.
	Tool string

	// Path lists the object keys leading from the document root to the
	// record array. An empty Path means the root itself is the array.
	Path []string

	// GroupedKeys are record fields whose values are objects of scalar
	// lists, e.g. {"CIS": ["1.1", "1.2"], "PCI": ["7.1"]}.
	GroupedKeys []string

	BatchSize int

	// Skip discards records that are not findings (e.g. passed checks).
	Skip func(Record) bool

	Convert ConvertFunc

	// Progress is invoked with the cumulative count at every flush and once
	// at completion.
	Progress core.ProgressFunc
	Section  string

	Logger core.Logger
}

type frameKind uint8

const (
	frameNavigate frameKind = iota
	frameInArray
	frameInRecord
	frameInGroupedList
	frameInGroupedChild
)

func (k frameKind) String() string {
	switch k {
	case frameNavigate:
		return "navigate"
	case frameInArray:
		return "array"
	case frameInRecord:
		return "record"
	case frameInGroupedList:
		return "grouped-list"
	case frameInGroupedChild:
		return "grouped-child"
	default:
		return "unknown"
	}
}

type frame struct {
	kind  frameKind
	depth int              // frameNavigate: index into Config.Path
	name  string           // grouped list or child name
	rec   Record           // frameInRecord
	group map[string][]any // frameInGroupedList
	items []any            // frameInGroupedChild
}

// Decoder is a core.Stream over the records of one JSON document.
type Decoder struct {
	ctx      context.Context
	cfg      Config
	dec      *json.Decoder
	reader   *core.ChunkReader
	reporter *core.Reporter
	logger   core.Logger
	grouped  map[string]struct{}

	stack   []frame
	context Context
	batch   []*finding.Finding
	pos     int
	records int

	started  bool
	done     bool
	finished bool
	err      error
}

// NewDecoder creates a decoder reading chunks. Nothing is read until the
// first call to Next.
func NewDecoder(ctx context.Context, chunks core.ChunkSource, cfg Config) *Decoder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.GetDefaultLogger()
	}
	grouped := make(map[string]struct{}, len(cfg.GroupedKeys))
	for _, k := range cfg.GroupedKeys {
		grouped[k] = struct{}{}
	}

	reader := core.NewChunkReader(chunks)
	dec := json.NewDecoder(reader)
	dec.UseNumber()

	reporter := core.NewReporter(cfg.Progress, cfg.BatchSize, core.TotalBytes(chunks), reader.BytesRead)
	reporter.SetSection(cfg.Section)

	return &Decoder{
		ctx:      ctx,
		cfg:      cfg,
		dec:      dec,
		reader:   reader,
		reporter: reporter,
		logger:   logger,
		grouped:  grouped,
		context:  make(Context),
		batch:    make([]*finding.Finding, 0, cfg.BatchSize),
	}
}

// Next implements core.Stream.
func (d *Decoder) Next() (*finding.Finding, error) {
	for {
		if d.pos < len(d.batch) {
			f := d.batch[d.pos]
			d.batch[d.pos] = nil
			d.pos++
			return f, nil
		}
		d.batch, d.pos = d.batch[:0], 0

		if d.finished {
			return nil, io.EOF
		}
		if d.err != nil {
			d.finished = true
			return nil, d.err
		}
		if d.done {
			d.finished = true
			d.reporter.Done()
			return nil, io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			d.finished = true
			return nil, err
		}
		d.fill()
	}
}

// Records returns the number of record objects closed so far, including
// skipped ones.
func (d *Decoder) Records() int {
	return d.records
}

// Context returns the scalars captured along the record path so far.
func (d *Decoder) Context() Context {
	return d.context
}

// fill advances until a batch is full, the document ends or decoding fails.
func (d *Decoder) fill() {
	for len(d.batch) < d.cfg.BatchSize && !d.done {
		if err := d.step(); err != nil {
			d.err = d.wrap(err)
			break
		}
	}
	// Flush: the buffered findings are handed out before the error, if any.
	d.reporter.Add(len(d.batch))
}

func (d *Decoder) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	msg := fmt.Sprintf("malformed JSON at offset %d after %d records", d.dec.InputOffset(), d.records)
	return serrors.NewParseError(d.cfg.Tool, msg, err)
}

// step consumes one structural unit of input.
func (d *Decoder) step() error {
	if len(d.stack) == 0 {
		if d.started {
			d.done = true
			return nil
		}
		d.started = true
		return d.open()
	}

	switch top := &d.stack[len(d.stack)-1]; top.kind {
	case frameNavigate:
		return d.navigate(top)
	case frameInArray:
		return d.inArray()
	case frameInRecord:
		return d.inRecord(top)
	case frameInGroupedList:
		return d.inGroupedList(top)
	case frameInGroupedChild:
		return d.inGroupedChild(top)
	default:
		return fmt.Errorf("unexpected frame %s", top.kind)
	}
}

func (d *Decoder) open() error {
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}
	if len(d.cfg.Path) == 0 {
		if tok != json.Delim('[') {
			return fmt.Errorf("document root is %v, want an array", tok)
		}
		d.push(frame{kind: frameInArray})
		return nil
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("document root is %v, want an object", tok)
	}
	d.push(frame{kind: frameNavigate})
	return nil
}

func (d *Decoder) navigate(top *frame) error {
	if !d.dec.More() {
		return d.close()
	}
	key, err := d.key()
	if err != nil {
		return err
	}
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}

	if key == d.cfg.Path[top.depth] {
		last := top.depth == len(d.cfg.Path)-1
		switch {
		case last && tok == json.Delim('['):
			d.push(frame{kind: frameInArray})
			return nil
		case !last && tok == json.Delim('{'):
			d.push(frame{kind: frameNavigate, depth: top.depth + 1})
			return nil
		}
		return d.skip(tok)
	}

	if _, ok := tok.(json.Delim); ok {
		return d.skip(tok)
	}
	d.context[key] = tok
	return nil
}

func (d *Decoder) inArray() error {
	if !d.dec.More() {
		return d.close()
	}
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}
	if tok == json.Delim('{') {
		d.push(frame{kind: frameInRecord, rec: make(Record)})
		return nil
	}
	return d.skip(tok)
}

func (d *Decoder) inRecord(top *frame) error {
	if !d.dec.More() {
		rec := top.rec
		if err := d.close(); err != nil {
			return err
		}
		d.complete(rec)
		return nil
	}
	key, err := d.key()
	if err != nil {
		return err
	}

	if _, ok := d.grouped[key]; ok {
		tok, err := d.dec.Token()
		if err != nil {
			return err
		}
		if tok == json.Delim('{') {
			d.push(frame{kind: frameInGroupedList, name: key, group: make(map[string][]any)})
			return nil
		}
		if _, ok := tok.(json.Delim); ok {
			return d.skip(tok)
		}
		top.rec[key] = tok
		return nil
	}

	var v any
	if err := d.dec.Decode(&v); err != nil {
		return err
	}
	top.rec[key] = v
	return nil
}

func (d *Decoder) inGroupedList(top *frame) error {
	if !d.dec.More() {
		name, group := top.name, top.group
		if err := d.close(); err != nil {
			return err
		}
		d.top().rec[name] = group
		return nil
	}
	key, err := d.key()
	if err != nil {
		return err
	}
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}
	if tok == json.Delim('[') {
		d.push(frame{kind: frameInGroupedChild, name: key, items: []any{}})
		return nil
	}
	if _, ok := tok.(json.Delim); ok {
		return d.skip(tok)
	}
	top.group[key] = []any{tok}
	return nil
}

func (d *Decoder) inGroupedChild(top *frame) error {
	if !d.dec.More() {
		name, items := top.name, top.items
		if err := d.close(); err != nil {
			return err
		}
		d.top().group[name] = items
		return nil
	}
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}
	if _, ok := tok.(json.Delim); ok {
		return d.skip(tok)
	}
	top.items = append(top.items, tok)
	return nil
}

// complete applies Skip and Convert to a closed record.
func (d *Decoder) complete(rec Record) {
	d.records++
	if d.cfg.Skip != nil && d.cfg.Skip(rec) {
		return
	}
	if d.cfg.Convert == nil {
		return
	}
	f, err := d.cfg.Convert(rec, d.context)
	if err != nil {
		d.logger.Warn("%s: record %d dropped: %v", d.cfg.Tool, d.records, err)
		return
	}
	if f != nil {
		d.batch = append(d.batch, f)
	}
}

func (d *Decoder) key() (string, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

// close consumes the closing delimiter of the top frame and pops it.
func (d *Decoder) close() error {
	if _, err := d.dec.Token(); err != nil {
		return err
	}
	d.stack = d.stack[:len(d.stack)-1]
	return nil
}

// skip discards the rest of a value whose first token is tok.
func (d *Decoder) skip(tok json.Token) error {
	delim, ok := tok.(json.Delim)
	if !ok || delim == '}' || delim == ']' {
		return nil
	}
	for depth := 1; depth > 0; {
		t, err := d.dec.Token()
		if err != nil {
			return err
		}
		if dl, ok := t.(json.Delim); ok {
			if dl == '{' || dl == '[' {
				depth++
			} else {
				depth--
			}
		}
	}
	return nil
}

func (d *Decoder) push(f frame) {
	d.stack = append(d.stack, f)
}

func (d *Decoder) top() *frame {
	return &d.stack[len(d.stack)-1]
}

var _ core.Stream = (*Decoder)(nil)
