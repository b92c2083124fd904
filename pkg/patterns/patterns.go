// Package patterns holds the heuristics shared by document-oriented parsers:
// line, table and narrative matching, free-text severity mapping and
// extraction confidence scoring.
//
// Everything here is stateless and safe for concurrent use.
package patterns

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// DefaultDiscardThreshold is the extraction confidence below which the
// built-in document parsers drop a candidate. The scorer itself never
// applies it.
const DefaultDiscardThreshold = 0.5

// Extraction methods recorded on findings.
const (
	MethodLine      = "line_pattern"
	MethodNarrative = "narrative"
	MethodTable     = "table"
	MethodKeyValue  = "key_value_table"
	MethodSection   = "section"
)

var (
	findingStart = regexp.MustCompile(
		`(?i)^(?:[-*•]\s*|\d+[.)]\s*)?[\[(]?(?P<severity>critical|high|medium|low|informational|info)[\])]?\s*[:\-\s]+\s*(?P<title>.+?)(?:\s*[\-:]\s+(?P<desc>.+))?$`)

	vulnerabilityTerm = regexp.MustCompile(`(?i)\b(vulnerability|vulnerabilities|vuln|weakness|flaw|exposure|risk|threat|attack|exploit)\b`)

	fileReference = regexp.MustCompile(`\b([A-Za-z0-9_\-][A-Za-z0-9_\-./]*\.(?:php|py|js|ts|java|cs|cpp|c|rb|go|rs|asp|aspx|jsp|tf))\b`)
	lineNumber    = regexp.MustCompile(`(?i)\b(?:line|ln)\s*[#:]?\s*(\d+)\b`)
	cwePattern    = regexp.MustCompile(`(?i)\bcwe[\-\s]?(\d+)\b`)
	cvePattern    = regexp.MustCompile(`(?i)\bcve[\-\s]?(\d{4})[\-\s]?(\d+)\b`)
	owaspPattern  = regexp.MustCompile(`(?i)\b(?:owasp\s*top\s*(\d+)|a(\d{1,2}):(\d{4}))\b`)

	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
)

// vulnType is one entry of the fixed vulnerability vocabulary.
type vulnType struct {
	key     string
	title   string
	pattern *regexp.Regexp
}

// vulnTypes is checked in order; the first match wins.
var vulnTypes = []vulnType{
	{"sql_injection", "SQL Injection", regexp.MustCompile(`(?i)\b(sql\s*injection|sqli)\b`)},
	{"xss", "Cross-Site Scripting", regexp.MustCompile(`(?i)\b(cross[\-\s]*site[\-\s]*scripting|xss)\b`)},
	{"csrf", "CSRF", regexp.MustCompile(`(?i)\b(cross[\-\s]*site[\-\s]*request[\-\s]*forgery|csrf|xsrf)\b`)},
	{"rce", "Remote Code Execution", regexp.MustCompile(`(?i)\b(remote\s*code\s*execution|rce|code\s*injection)\b`)},
	{"auth_bypass", "Authentication Bypass", regexp.MustCompile(`(?i)\b(auth[a-z]*\s*bypass)\b`)},
	{"hardcoded_secret", "Hardcoded Credentials", regexp.MustCompile(`(?i)\bhard[\-\s]*coded\s*(password|credential|credentials|secret|key)s?\b`)},
}

// ClassifyVulnerability returns the key and display title of the first
// vulnerability type mentioned in text.
func ClassifyVulnerability(text string) (key, title string, ok bool) {
	for _, vt := range vulnTypes {
		if vt.pattern.MatchString(text) {
			return vt.key, vt.title, true
		}
	}
	return "", "", false
}

// =============================================================================
// Extracted candidate
// =============================================================================

// Extracted is a candidate finding recovered from a document before it is
// scored and normalized.
type Extracted struct {
	Title          string
	Description    string
	Recommendation string
	Resource       string

	// Severity is empty when the source gave no indication.
	Severity severity.Level

	Files       []string
	LineNumbers []int
	CWEs        []string
	CVEs        []string
	References  []string

	VulnerabilityType string

	// LineInText is the 1-based line of the match, for line-pattern findings.
	LineInText int

	// Source locates the candidate in the document, e.g. "page 3".
	Source string
	Method string
}

// HasLocation reports whether any file, line or resource was found.
func (e *Extracted) HasLocation() bool {
	return len(e.Files) > 0 || len(e.LineNumbers) > 0 || e.Resource != ""
}

// HasReferences reports whether any CWE, CVE or free reference was found.
func (e *Extracted) HasReferences() bool {
	return len(e.CWEs) > 0 || len(e.CVEs) > 0 || len(e.References) > 0
}

// ExtractSignals scans text for auxiliary signals and merges them into e:
// file references, line numbers, CWE/CVE identifiers, OWASP references and
// the vulnerability type (kept if already set).
func (e *Extracted) ExtractSignals(text string) {
	for _, m := range fileReference.FindAllStringSubmatch(text, -1) {
		e.Files = appendUnique(e.Files, m[1])
	}
	for _, m := range lineNumber.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			e.LineNumbers = append(e.LineNumbers, n)
		}
	}
	for _, m := range cwePattern.FindAllStringSubmatch(text, -1) {
		e.CWEs = appendUnique(e.CWEs, "CWE-"+m[1])
	}
	for _, m := range cvePattern.FindAllStringSubmatch(text, -1) {
		e.CVEs = appendUnique(e.CVEs, "CVE-"+m[1]+"-"+m[2])
	}
	for _, m := range owaspPattern.FindAllStringSubmatch(text, -1) {
		ref := "OWASP Top " + m[1]
		if m[1] == "" {
			ref = "OWASP A" + m[2] + ":" + m[3]
		}
		e.References = appendUnique(e.References, ref)
	}
	if e.VulnerabilityType == "" {
		if key, _, ok := ClassifyVulnerability(text); ok {
			e.VulnerabilityType = key
		}
	}
}

// ToFinding converts the candidate into a normalized finding for tool,
// recording the extraction confidence and method in metadata.
func (e *Extracted) ToFinding(tool string, confidence float64) *finding.Finding {
	sev := e.Severity
	if !sev.IsValid() {
		sev = severity.Default
	}

	desc := strings.TrimSpace(e.Description)
	if rec := strings.TrimSpace(e.Recommendation); rec != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += "Recommendation: " + rec
	}

	f := finding.New(tool, sev, e.Title, desc)
	f.Category = finding.CategoryDocument
	f.Remediation = strings.TrimSpace(e.Recommendation)
	f.ResourceName = e.Resource
	if len(e.Files) > 0 {
		f.FilePath = e.Files[0]
	}
	if len(e.LineNumbers) > 0 {
		f.LineNumber = e.LineNumbers[0]
	}

	f.References = append(f.References, e.CWEs...)
	f.References = append(f.References, e.CVEs...)
	f.References = append(f.References, e.References...)
	if e.VulnerabilityType != "" {
		f.Tags = append(f.Tags, e.VulnerabilityType)
		f.SetMeta("vulnerability_type", e.VulnerabilityType)
	}

	f.SetMeta("confidence", confidence)
	f.SetMeta("extraction_method", e.Method)
	if e.Source != "" {
		f.SetMeta("source", e.Source)
	}
	if e.LineInText > 0 {
		f.SetMeta("line_in_text", e.LineInText)
	}
	if len(e.Files) > 1 {
		f.SetMeta("files", e.Files)
	}
	if len(e.LineNumbers) > 1 {
		f.SetMeta("line_numbers", e.LineNumbers)
	}
	return f.Normalize()
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
