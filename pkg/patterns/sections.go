package patterns

import "strings"

// Block is one paragraph of a document in reading order.
type Block struct {
	Text    string
	Heading bool
}

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionFinding
	sectionSeverity
	sectionDescription
	sectionRecommendation
)

// ExtractSections reads heading-structured reports: a heading that names a
// finding, issue or vulnerability opens a candidate, and sub-headings for
// severity, description and recommendation route the following paragraphs
// into the matching field.
func (m *Matcher) ExtractSections(blocks []Block, source string) []Extracted {
	var out []Extracted
	var cur *Extracted
	section := sectionNone

	flush := func() {
		if cur == nil || (cur.Title == "" && cur.Description == "") {
			return
		}
		cur.Description = strings.TrimSpace(cur.Description)
		cur.Recommendation = strings.TrimSpace(cur.Recommendation)
		cur.ExtractSignals(cur.Title + " " + cur.Description)
		out = append(out, *cur)
	}

	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)

		if b.Heading {
			switch {
			case containsAny(lower, []string{"finding", "issue", "vulnerability"}):
				flush()
				cur = &Extracted{Title: text, Method: MethodSection, Source: source}
				section = sectionFinding
			case section == sectionNone:
			case containsAny(lower, kvSeverityLabels):
				section = sectionSeverity
			case containsAny(lower, []string{"description", "details"}):
				section = sectionDescription
			case containsAny(lower, []string{"recommendation", "remediation"}):
				section = sectionRecommendation
			}
			continue
		}

		if cur == nil {
			continue
		}
		switch section {
		case sectionSeverity:
			cur.Severity = m.severity.Map(text)
		case sectionDescription:
			cur.Description += "\n" + text
		case sectionRecommendation:
			cur.Recommendation += "\n" + text
		}
	}
	flush()
	return out
}
