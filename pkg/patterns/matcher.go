package patterns

import (
	"strings"

	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// maxContinuationLines bounds the context collected after a matched line.
const maxContinuationLines = 4

// titleWords is the number of words kept when a narrative title is
// synthesized from its sentence.
const titleWords = 8

// Matcher extracts candidate findings from plain text.
type Matcher struct {
	severity *SeverityMapper
}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{severity: NewSeverityMapper()}
}

// ExtractFindings scans text line by line for "severity: title[: description]"
// entries. When no line matches anywhere, it falls back to sentence-level
// narrative scanning.
func (m *Matcher) ExtractFindings(text string) []Extracted {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var out []Extracted
	for i, line := range lines {
		match := findingStart.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}

		e := Extracted{
			Severity:    severity.FromString(match[findingStart.SubexpIndex("severity")]),
			Title:       strings.TrimSpace(match[findingStart.SubexpIndex("title")]),
			Description: strings.TrimSpace(match[findingStart.SubexpIndex("desc")]),
			LineInText:  i + 1,
			Method:      MethodLine,
		}

		var context []string
		for j := i + 1; j < len(lines) && j <= i+maxContinuationLines; j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" || findingStart.MatchString(next) {
				break
			}
			context = append(context, next)
		}
		if e.Description == "" && len(context) > 0 {
			e.Description = strings.Join(context, " ")
		}

		e.ExtractSignals(line + " " + strings.Join(context, " "))
		out = append(out, e)
	}

	if len(out) == 0 {
		out = m.ExtractNarrative(text)
	}
	return out
}

// ExtractNarrative turns every sentence that mentions a vulnerability term
// into a candidate.
func (m *Matcher) ExtractNarrative(text string) []Extracted {
	var out []Extracted
	for _, sent := range sentenceSplit.Split(text, -1) {
		sent = strings.Join(strings.Fields(sent), " ")
		if sent == "" || !vulnerabilityTerm.MatchString(sent) {
			continue
		}
		e := Extracted{
			Description: sent,
			Severity:    m.severity.Map(sent),
			Title:       TitleFromDescription(sent),
			Method:      MethodNarrative,
		}
		e.ExtractSignals(sent)
		out = append(out, e)
	}
	return out
}

// TitleFromDescription synthesizes a title: a recognized vulnerability type
// (plus the first file reference, if any), else the first eight words.
func TitleFromDescription(desc string) string {
	if _, title, ok := ClassifyVulnerability(desc); ok {
		if f := fileReference.FindString(desc); f != "" {
			return title + " in " + f
		}
		return title
	}

	words := strings.Fields(desc)
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}
