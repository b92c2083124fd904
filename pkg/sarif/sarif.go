// Package sarif holds SARIF 2.1.0 document types and their conversion to
// normalized findings.
package sarif

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// =============================================================================
// SARIF Types
// =============================================================================

// Log is the root SARIF document.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single run of a tool.
type Run struct {
	Tool        Tool         `json:"tool"`
	Results     []Result     `json:"results"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	Invocations []Invocation `json:"invocations,omitempty"`
}

// Tool describes the tool.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains tool metadata.
type Driver struct {
	Name            string `json:"name"`
	Version         string `json:"version,omitempty"`
	SemanticVersion string `json:"semanticVersion,omitempty"`
	InformationURI  string `json:"informationUri,omitempty"`
	Rules           []Rule `json:"rules,omitempty"`
}

// Rule describes a rule/check.
type Rule struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	ShortDescription     *Message       `json:"shortDescription,omitempty"`
	FullDescription      *Message       `json:"fullDescription,omitempty"`
	HelpURI              string         `json:"helpUri,omitempty"`
	Help                 *Message       `json:"help,omitempty"`
	DefaultConfiguration *RuleConfig    `json:"defaultConfiguration,omitempty"`
	Properties           map[string]any `json:"properties,omitempty"`
}

// RuleConfig holds rule configuration.
type RuleConfig struct {
	Level string `json:"level,omitempty"`
}

// Result represents one reported issue.
type Result struct {
	RuleID       string            `json:"ruleId"`
	RuleIndex    *int              `json:"ruleIndex,omitempty"`
	Level        string            `json:"level,omitempty"`
	Message      Message           `json:"message"`
	Locations    []Location        `json:"locations,omitempty"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	Properties   map[string]any    `json:"properties,omitempty"`
}

// Message holds text.
type Message struct {
	Text     string `json:"text"`
	Markdown string `json:"markdown,omitempty"`
}

// Location represents a code location.
type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
}

// PhysicalLocation contains file/region info.
type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
	Region           *Region           `json:"region,omitempty"`
}

// ArtifactLocation contains file path.
type ArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

// Region contains line/column info.
type Region struct {
	StartLine   int      `json:"startLine,omitempty"`
	EndLine     int      `json:"endLine,omitempty"`
	StartColumn int      `json:"startColumn,omitempty"`
	EndColumn   int      `json:"endColumn,omitempty"`
	Snippet     *Snippet `json:"snippet,omitempty"`
}

// Snippet contains a code snippet.
type Snippet struct {
	Text string `json:"text"`
}

// Artifact represents a scanned file.
type Artifact struct {
	Location ArtifactLocation `json:"location"`
}

// Invocation contains execution details.
type Invocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	CommandLine         string `json:"commandLine,omitempty"`
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes a SARIF document.
func Parse(data []byte) (*Log, error) {
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parse sarif: %w", err)
	}
	if len(log.Runs) == 0 && log.Version == "" && log.Schema == "" {
		return nil, fmt.Errorf("parse sarif: document has no version, schema or runs")
	}
	return &log, nil
}

// LooksLikeSARIF reports whether a preview carries SARIF markers.
func LooksLikeSARIF(preview []byte) bool {
	lower := bytes.ToLower(preview)
	if bytes.Contains(lower, []byte(`"$schema"`)) && bytes.Contains(lower, []byte("sarif")) {
		return true
	}
	return bytes.Contains(preview, []byte(`"runs"`)) && bytes.Contains(preview, []byte(`"version"`)) &&
		bytes.Contains(preview, []byte(`"driver"`))
}

// ToolName returns the driver name of the first run.
func (l *Log) ToolName() string {
	if len(l.Runs) == 0 {
		return ""
	}
	return l.Runs[0].Tool.Driver.Name
}

// =============================================================================
// SARIF to Finding Conversion
// =============================================================================

// ConvertOptions configures SARIF to finding conversion.
type ConvertOptions struct {
	// ToolSource overrides the driver name as the findings' tool_source.
	ToolSource string

	// Category is applied to every finding.
	Category string

	// TitleFromRuleID uses the rule id as title, as Checkov reports expect.
	TitleFromRuleID bool
}

// Convert turns every result of every run into a normalized finding.
func Convert(log *Log, opts ConvertOptions) []*finding.Finding {
	var out []*finding.Finding
	for i := range log.Runs {
		out = append(out, ConvertRun(&log.Runs[i], opts)...)
	}
	return out
}

// ConvertRun converts the results of one run.
func ConvertRun(run *Run, opts ConvertOptions) []*finding.Finding {
	tool := opts.ToolSource
	if tool == "" {
		tool = strings.ToLower(run.Tool.Driver.Name)
	}
	if tool == "" {
		tool = "sarif"
	}

	ruleMap := make(map[string]*Rule, len(run.Tool.Driver.Rules))
	for i := range run.Tool.Driver.Rules {
		rule := &run.Tool.Driver.Rules[i]
		ruleMap[rule.ID] = rule
	}

	out := make([]*finding.Finding, 0, len(run.Results))
	for i := range run.Results {
		res := &run.Results[i]
		rule := ruleMap[res.RuleID]
		if rule == nil && res.RuleIndex != nil && *res.RuleIndex >= 0 && *res.RuleIndex < len(run.Tool.Driver.Rules) {
			rule = &run.Tool.Driver.Rules[*res.RuleIndex]
		}
		out = append(out, convertResult(res, rule, tool, opts))
	}
	return out
}

func convertResult(res *Result, rule *Rule, tool string, opts ConvertOptions) *finding.Finding {
	f := finding.New(tool, ResultSeverity(res, rule), resultTitle(res, rule, opts), res.Message.Text)
	f.ToolFindingID = res.RuleID
	f.Category = opts.Category

	if f.Description == "" && rule != nil && rule.FullDescription != nil {
		f.Description = rule.FullDescription.Text
	}

	if len(res.Locations) > 0 && res.Locations[0].PhysicalLocation != nil {
		loc := res.Locations[0].PhysicalLocation
		if loc.ArtifactLocation != nil {
			f.FilePath = loc.ArtifactLocation.URI
		}
		if loc.Region != nil {
			f.LineNumber = loc.Region.StartLine
			if loc.Region.EndLine > 0 {
				f.SetMeta("end_line", loc.Region.EndLine)
			}
			if loc.Region.Snippet != nil && loc.Region.Snippet.Text != "" {
				f.SetMeta("code_snippet", loc.Region.Snippet.Text)
			}
		}
	}

	if rule != nil {
		if rule.Name != "" {
			f.SetMeta("rule_name", rule.Name)
		}
		if rule.HelpURI != "" {
			f.References = append(f.References, rule.HelpURI)
		}
		if rule.Help != nil && rule.Help.Text != "" {
			f.Remediation = rule.Help.Text
		}
		f.References = append(f.References, ruleCWEs(rule)...)
	}

	for key, value := range res.Properties {
		if key == "severity" {
			continue
		}
		if key == "resource" {
			if s, ok := value.(string); ok {
				f.ResourceName = s
				continue
			}
		}
		f.SetMeta(key, value)
	}

	for _, fp := range res.Fingerprints {
		// Long fingerprints are hashed to a fixed width.
		if len(fp) > 64 {
			sum := sha256.Sum256([]byte(fp))
			fp = hex.EncodeToString(sum[:])
		}
		f.SetMeta("sarif_fingerprint", fp)
		break
	}

	f.SetMeta("rule_id", res.RuleID)
	f.SetMeta("format", "sarif")
	return f.Normalize()
}

// ResultSeverity resolves a result's severity: a "severity" property wins,
// then the result level, then the rule's default level, else Medium.
func ResultSeverity(res *Result, rule *Rule) severity.Level {
	if s, ok := res.Properties["severity"].(string); ok {
		if l, ok := severity.Parse(s); ok {
			return l
		}
	}
	if res.Level != "" {
		return MapLevel(res.Level)
	}
	if rule != nil && rule.DefaultConfiguration != nil && rule.DefaultConfiguration.Level != "" {
		return MapLevel(rule.DefaultConfiguration.Level)
	}
	return severity.Medium
}

// MapLevel converts a SARIF level to a severity.
func MapLevel(level string) severity.Level {
	switch strings.ToLower(level) {
	case "error":
		return severity.High
	case "warning":
		return severity.Medium
	case "note", "none":
		return severity.Low
	default:
		return severity.Medium
	}
}

func resultTitle(res *Result, rule *Rule, opts ConvertOptions) string {
	if opts.TitleFromRuleID && res.RuleID != "" {
		return res.RuleID
	}
	if rule != nil {
		if rule.ShortDescription != nil && rule.ShortDescription.Text != "" {
			return rule.ShortDescription.Text
		}
		if rule.Name != "" {
			return rule.Name
		}
	}
	if res.RuleID != "" {
		return res.RuleID
	}
	return res.Message.Text
}

// ruleCWEs collects CWE identifiers from a rule's "cwe" property and tags.
func ruleCWEs(rule *Rule) []string {
	var out []string
	if cwe, ok := rule.Properties["cwe"].(string); ok && cwe != "" {
		out = append(out, cwe)
	}
	if tags, ok := rule.Properties["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok && strings.HasPrefix(strings.ToUpper(s), "CWE-") {
				out = append(out, strings.ToUpper(s))
			}
		}
	}
	return out
}
