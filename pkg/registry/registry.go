// Package registry holds the table of parser implementations and ranks them
// against an input preview.
package registry

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
)

// =============================================================================
// Parser Registry
// =============================================================================

type entry struct {
	parser   core.Parser
	meta     core.ParserMetadata
	identity string
}

// Candidate is a parser that scored above zero for an input.
type Candidate struct {
	Parser     core.Parser
	Metadata   core.ParserMetadata
	Confidence float64
}

// Registry manages registered parsers in registration order.
//
// Registration is expected at startup. Lookups may run concurrently with
// each other and with registration.
type Registry struct {
	entries []entry
	logger  core.Logger
	mu      sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report excluded candidates.
func WithLogger(l core.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{logger: core.GetDefaultLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Identity names a parser implementation by its dynamic type.
func Identity(p core.Parser) string {
	return reflect.TypeOf(p).String()
}

// Register validates p and adds it. Registering the same implementation for
// the same tool twice is an error and leaves the registry unchanged.
func (r *Registry) Register(p core.Parser) error {
	if p == nil || reflect.ValueOf(p).Kind() == reflect.Ptr && reflect.ValueOf(p).IsNil() {
		return serrors.NewRegistrationError("", "parser is nil")
	}

	meta, err := safeMetadata(p)
	if err != nil {
		return serrors.NewRegistrationError(Identity(p), err.Error())
	}
	if strings.TrimSpace(meta.ToolName) == "" {
		return serrors.NewRegistrationError(Identity(p), "metadata has an empty tool name")
	}
	if t := meta.ConfidenceThreshold; math.IsNaN(t) || t < 0 || t > 1 {
		return serrors.NewRegistrationError(meta.ToolName, fmt.Sprintf("confidence threshold %v is outside [0,1]", t))
	}

	id := Identity(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.meta.ToolName == meta.ToolName && e.identity == id {
			return serrors.NewRegistrationError(meta.ToolName, fmt.Sprintf("%s is already registered", id))
		}
	}
	r.entries = append(r.entries, entry{parser: p, meta: meta, identity: id})
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(p core.Parser) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Unregister removes the entry for p's tool and implementation. It reports
// whether an entry was removed.
func (r *Registry) Unregister(p core.Parser) bool {
	if p == nil {
		return false
	}
	id := Identity(p)
	tool := p.Metadata().ToolName

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.meta.ToolName == tool && e.identity == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func safeMetadata(p core.Parser) (meta core.ParserMetadata, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("Metadata panicked: %v", rec)
		}
	}()
	return p.Metadata(), nil
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// CompatibleParsers scores every parser against the preview and returns
// those above zero, best first. Ties keep registration order. A parser that
// panics while scoring is logged and left out.
func (r *Registry) CompatibleParsers(preview []byte, filename string) []Candidate {
	var out []Candidate
	for _, e := range r.snapshot() {
		score, err := core.SafeCanParse(e.parser, preview, filename)
		if err != nil {
			r.logger.Warn("registry: %s (%s) excluded: %v", e.meta.ToolName, e.identity, err)
			continue
		}
		if score > 0 {
			out = append(out, Candidate{Parser: e.parser, Metadata: e.meta, Confidence: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// ParserForTool returns the first parser registered for tool. With a
// version, it returns the first whose supported versions include it.
func (r *Registry) ParserForTool(tool, version string) (core.Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if !strings.EqualFold(e.meta.ToolName, tool) {
			continue
		}
		if version == "" || e.meta.SupportsVersion(version) {
			return e.parser, true
		}
	}
	return nil, false
}

// List returns the metadata of every parser in registration order.
func (r *Registry) List() []core.ParserMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.ParserMetadata, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.meta
	}
	return out
}

// SupportedTools returns the registered tool names, sorted and unique.
func (r *Registry) SupportedTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []string
	for _, e := range r.entries {
		tools = append(tools, e.meta.ToolName)
	}
	return sortedUnique(tools)
}

// SupportedExtensions returns every declared file extension, lowercased,
// sorted and unique.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exts []string
	for _, e := range r.entries {
		for _, ext := range e.meta.FileExtensions {
			exts = append(exts, strings.ToLower(ext))
		}
	}
	return sortedUnique(exts)
}

// Len returns the number of registered parsers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func sortedUnique(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for _, s := range in {
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}
