package patterns

import (
	"regexp"
	"strings"
)

// Canonical table fields.
const (
	FieldSeverity       = "severity"
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldResource       = "resource"
	FieldRecommendation = "recommendation"
	FieldReferences     = "references"
)

// headerAliases maps canonical fields to header synonyms, in field priority
// order. A column maps to at most one field; the first field that claims it wins.
var headerAliases = []struct {
	field   string
	aliases []string
}{
	{FieldSeverity, []string{"severity", "risk", "risk level", "priority", "criticality", "level", "rating", "score", "impact"}},
	{FieldTitle, []string{"title", "finding", "issue", "vulnerability", "name", "summary", "heading", "finding title", "issue name"}},
	{FieldDescription, []string{"description", "details", "detail", "summary", "explanation", "desc", "finding description", "issue description", "notes"}},
	{FieldResource, []string{"resource", "file", "filename", "location", "path", "affected resource", "component", "asset", "target"}},
	{FieldRecommendation, []string{"recommendation", "remediation", "fix", "solution", "mitigation", "action", "resolution", "suggested fix"}},
	{FieldReferences, []string{"reference", "references", "cwe", "cve", "link", "url", "source", "standard", "compliance"}},
}

// Label fragments used by the key/value fallback.
var (
	kvStartLabels          = []string{"finding", "issue", "vulnerability", "title"}
	kvSeverityLabels       = []string{"severity", "risk", "priority"}
	kvDescriptionLabels    = []string{"description", "details", "summary"}
	kvRecommendationLabels = []string{"recommendation", "remediation", "fix"}
	kvResourceLabels       = []string{"file", "resource", "location"}
)

var referenceSplit = regexp.MustCompile(`[,;\n]+`)

// TableExtractor turns tabular sections into candidates.
type TableExtractor struct {
	severity *SeverityMapper
}

// NewTableExtractor creates a table extractor.
func NewTableExtractor() *TableExtractor {
	return &TableExtractor{severity: NewSeverityMapper()}
}

// MapHeaders maps column indexes to canonical fields using case-insensitive
// substring matching in both directions. Empty headers are never mapped.
func (t *TableExtractor) MapHeaders(headers []string) map[int]string {
	clean := make([]string, len(headers))
	for i, h := range headers {
		clean[i] = strings.ToLower(strings.Join(strings.Fields(h), " "))
	}

	mapping := make(map[int]string)
	for _, fa := range headerAliases {
		for i, h := range clean {
			if h == "" {
				continue
			}
			if _, taken := mapping[i]; taken {
				continue
			}
			if matchesAny(h, fa.aliases) {
				mapping[i] = fa.field
				break
			}
		}
	}
	return mapping
}

func matchesAny(header string, aliases []string) bool {
	for _, a := range aliases {
		if strings.Contains(header, a) || strings.Contains(a, header) {
			return true
		}
	}
	return false
}

// resolvesContent reports whether mapping includes a title or description column.
func resolvesContent(mapping map[int]string) bool {
	for _, f := range mapping {
		if f == FieldTitle || f == FieldDescription {
			return true
		}
	}
	return false
}

// Extract reads a table whose first row is the header. When the header does
// not resolve a title or description column, the rows are read as
// label/value pairs instead.
func (t *TableExtractor) Extract(rows [][]string, source string) []Extracted {
	if len(rows) == 0 {
		return nil
	}
	mapping := t.MapHeaders(rows[0])
	if !resolvesContent(mapping) {
		return t.ExtractKeyValue(rows, source)
	}

	var out []Extracted
	for _, row := range rows[1:] {
		e := Extracted{Method: MethodTable, Source: source}
		for i, cell := range row {
			field, ok := mapping[i]
			value := strings.TrimSpace(cell)
			if !ok || value == "" {
				continue
			}
			t.assign(&e, field, value)
		}
		if e.Title == "" && e.Description == "" {
			continue
		}
		e.ExtractSignals(strings.Join(append([]string{e.Title, e.Description, e.Resource}, e.References...), " "))
		out = append(out, e)
	}
	return out
}

func (t *TableExtractor) assign(e *Extracted, field, value string) {
	switch field {
	case FieldSeverity:
		e.Severity = t.severity.Map(value)
	case FieldTitle:
		e.Title = value
	case FieldDescription:
		e.Description = value
	case FieldResource:
		e.Resource = value
	case FieldRecommendation:
		e.Recommendation = value
	case FieldReferences:
		for _, r := range referenceSplit.Split(value, -1) {
			if r = strings.TrimSpace(r); r != "" {
				e.References = appendUnique(e.References, r)
			}
		}
	}
}

// ExtractKeyValue reads two-column rows as label/value pairs. A label naming
// a finding, issue, vulnerability or title starts a new candidate; later
// labeled rows fill it until the next such label.
func (t *TableExtractor) ExtractKeyValue(rows [][]string, source string) []Extracted {
	var out []Extracted
	var cur *Extracted

	flush := func() {
		if cur != nil && (cur.Title != "" || cur.Description != "") {
			cur.ExtractSignals(cur.Title + " " + cur.Description + " " + cur.Resource)
			out = append(out, *cur)
		}
	}

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(row[0]))
		value := strings.TrimSpace(row[1])
		if label == "" || value == "" {
			continue
		}

		if containsAny(label, kvStartLabels) {
			flush()
			cur = &Extracted{Title: value, Method: MethodKeyValue, Source: source}
			continue
		}
		if cur == nil {
			cur = &Extracted{Method: MethodKeyValue, Source: source}
		}
		switch {
		case containsAny(label, kvSeverityLabels):
			cur.Severity = t.severity.Map(value)
		case containsAny(label, kvDescriptionLabels):
			cur.Description = value
		case containsAny(label, kvRecommendationLabels):
			cur.Recommendation = value
		case containsAny(label, kvResourceLabels):
			cur.Resource = value
		}
	}
	flush()
	return out
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// =============================================================================
// Text tables
// =============================================================================

var (
	columnGap = regexp.MustCompile(`\t+|\s{2,}`)
	pipeRule  = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
)

// minTableRows is the number of consecutive same-width lines (header
// included) that make a text table.
const minTableRows = 2

// SplitTextTables finds tables in extracted plain text: runs of consecutive
// lines that split into the same number (at least two) of columns, either on
// "|" separators or on gaps of two or more spaces. It returns the tables and
// the remaining non-table text.
func SplitTextTables(text string) ([][][]string, string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var tables [][][]string
	var rest []string
	var run [][]string
	var runLines []string

	end := func() {
		if len(run) >= minTableRows {
			tables = append(tables, run)
		} else {
			rest = append(rest, runLines...)
		}
		run, runLines = nil, nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if pipeRule.MatchString(trimmed) && len(run) > 0 {
			runLines = append(runLines, line)
			continue
		}
		cells := splitColumns(trimmed)
		if len(cells) < 2 {
			end()
			rest = append(rest, line)
			continue
		}
		if len(run) > 0 && len(cells) != len(run[0]) {
			end()
		}
		run = append(run, cells)
		runLines = append(runLines, line)
	}
	end()
	return tables, strings.Join(rest, "\n")
}

func splitColumns(line string) []string {
	if line == "" {
		return nil
	}
	var cells []string
	if strings.Count(line, "|") >= 2 {
		parts := strings.Split(strings.Trim(line, "|"), "|")
		for _, p := range parts {
			cells = append(cells, strings.TrimSpace(p))
		}
		return cells
	}
	for _, p := range columnGap.Split(line, -1) {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
