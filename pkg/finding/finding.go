// Package finding defines the normalized security-issue record produced by
// every parser.
package finding

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/exploopio/scanlens/pkg/shared/fingerprint"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// Field limits applied by Normalize.
const (
	MaxTitleLength        = 500
	MaxResourceTypeLength = 100
	MaxResourceNameLength = 255
	MaxFilePathLength     = 500
	MaxTagLength          = 50

	// UntitledTitle replaces an empty title.
	UntitledTitle = "Untitled finding"
)

// Categories assigned by the built-in parsers.
const (
	CategorySecurity       = "security"
	CategoryInfrastructure = "infrastructure"
	CategoryCompliance     = "compliance"
	CategoryDocument       = "document"
)

// Finding is the normalized output unit of every parser.
type Finding struct {
	// Unique identifier assigned at creation
	ID string `json:"id"`

	// Severity is always one of the four canonical levels after Normalize.
	Severity severity.Level `json:"severity"`

	// Short title (required, non-empty)
	Title string `json:"title"`

	// Detailed description (required, non-empty)
	Description string `json:"description"`

	// Resource identifiers
	ResourceType string `json:"resource_type,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	LineNumber   int    `json:"line_number,omitempty"`

	// Tool that produced the finding and its internal identifier
	ToolSource    string `json:"tool_source"`
	ToolFindingID string `json:"tool_finding_id,omitempty"`

	// Tool-specific detail. Keys never shadow the fields above.
	Metadata map[string]any `json:"tool_metadata,omitempty"`

	Category    string   `json:"category,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	References  []string `json:"references,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Deduplication key, see package fingerprint
	Fingerprint string `json:"fingerprint,omitempty"`
}

// reservedKeys are the JSON names of the normalized fields.
var reservedKeys = map[string]struct{}{
	"id": {}, "severity": {}, "title": {}, "description": {},
	"resource_type": {}, "resource_name": {}, "file_path": {}, "line_number": {},
	"tool_source": {}, "tool_finding_id": {}, "tool_metadata": {},
	"category": {}, "remediation": {}, "references": {}, "tags": {},
	"fingerprint": {},
}

// IsReservedKey reports whether a metadata key would shadow a normalized field.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[strings.ToLower(key)]
	return ok
}

// New creates a finding with a fresh ID and an empty metadata map.
func New(tool string, sev severity.Level, title, description string) *Finding {
	return &Finding{
		ID:          uuid.New().String(),
		Severity:    sev,
		Title:       title,
		Description: description,
		ToolSource:  tool,
		Metadata:    make(map[string]any),
	}
}

// SetMeta stores a tool-specific value. Reserved keys are prefixed with "tool_".
// Nil values are ignored.
func (f *Finding) SetMeta(key string, value any) {
	if value == nil || key == "" {
		return
	}
	if f.Metadata == nil {
		f.Metadata = make(map[string]any)
	}
	if IsReservedKey(key) {
		key = "tool_" + key
	}
	f.Metadata[key] = value
}

// Meta returns a metadata value.
func (f *Finding) Meta(key string) (any, bool) {
	v, ok := f.Metadata[key]
	return v, ok
}

// Normalize enforces the record invariants: canonical severity, non-empty
// title and description, bounded field lengths, unshadowed metadata,
// normalized tags and references, an ID and a fingerprint.
func (f *Finding) Normalize() *Finding {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if !f.Severity.IsValid() {
		f.Severity = severity.FromString(string(f.Severity))
	}

	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		f.Title = UntitledTitle
	}
	f.Title = truncate(f.Title, MaxTitleLength)

	f.Description = strings.TrimSpace(f.Description)
	if f.Description == "" {
		f.Description = f.Title
	}

	f.ResourceType = truncate(strings.TrimSpace(f.ResourceType), MaxResourceTypeLength)
	f.ResourceName = truncate(strings.TrimSpace(f.ResourceName), MaxResourceNameLength)
	f.FilePath = truncate(strings.TrimSpace(f.FilePath), MaxFilePathLength)
	if f.LineNumber < 0 {
		f.LineNumber = 0
	}

	if len(f.Metadata) > 0 {
		clean := make(map[string]any, len(f.Metadata))
		for k, v := range f.Metadata {
			if IsReservedKey(k) {
				k = "tool_" + k
			}
			clean[k] = v
		}
		f.Metadata = clean
	}

	f.Tags = NormalizeTags(f.Tags)
	f.References = NormalizeReferences(f.References)

	if f.Fingerprint == "" {
		f.Fingerprint = f.computeFingerprint()
	}
	return f
}

func (f *Finding) computeFingerprint() string {
	in := fingerprint.Input{
		Tool:         f.ToolSource,
		RuleID:       f.ToolFindingID,
		FilePath:     f.FilePath,
		Line:         f.LineNumber,
		ResourceType: f.ResourceType,
		ResourceName: f.ResourceName,
		Title:        f.Title,
		Message:      f.Description,
	}
	if v, ok := f.Metadata["account_id"].(string); ok {
		in.Account = v
	}
	if v, ok := f.Metadata["region"].(string); ok {
		in.Region = v
	}
	return fingerprint.GenerateAuto(in)
}

// Validate reports whether the finding satisfies the record invariants
// without modifying it.
func (f *Finding) Validate() error {
	if !f.Severity.IsValid() {
		return fmt.Errorf("severity %q is not canonical", f.Severity)
	}
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("title is empty")
	}
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("description is empty")
	}
	if f.ToolSource == "" {
		return fmt.Errorf("tool_source is empty")
	}
	for k := range f.Metadata {
		if IsReservedKey(k) {
			return fmt.Errorf("metadata key %q shadows a normalized field", k)
		}
	}
	return nil
}

// NormalizeTags lowercases tags, replaces spaces with dashes, drops empty or
// over-long tags and removes duplicates. The result is sorted.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "-")
		if t == "" || len(t) > MaxTagLength {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NormalizeReferences keeps http(s) URLs as-is and prefixes anything else
// with "REF: ". Empty entries and duplicates are dropped; order is kept.
func NormalizeReferences(refs []string) []string {
	if len(refs) == 0 {
		return refs
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !isURL(r) && !strings.HasPrefix(r, "REF:") {
			r = "REF: " + r
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// SortBySeverity orders findings highest severity first; equal severities
// keep their relative order.
func SortBySeverity(fs []*Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		return severity.Compare(fs[i].Severity, fs[j].Severity) > 0
	})
}

// Summary counts findings per severity.
func Summary(fs []*Finding) severity.CountBySeverity {
	var c severity.CountBySeverity
	for _, f := range fs {
		c.Increment(f.Severity)
	}
	return c
}
