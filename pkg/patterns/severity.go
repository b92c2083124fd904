package patterns

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/exploopio/scanlens/pkg/shared/severity"
)

var (
	cvssScore = regexp.MustCompile(`(?i)\bcvss(?:\s*v?[234](?:\.\d)?)?(?:\s+(?:base\s+)?score)?\s*[:=]?\s*(\d{1,2}(?:\.\d+)?)`)
	// A score written right after a vector: "CVSS:3.1/AV:N/... 8.8" or "... (Score: 8.8)".
	vectorScore   = regexp.MustCompile(`(?i)^\S*?(?:\s+|\s*[(\[]\s*)(?:(?:base\s+)?score\s*[:=]?\s*)?(\d{1,2}(?:\.\d+)?)\b`)
	priorityLevel = regexp.MustCompile(`(?i)\b(?:p([0-4])|priority\s*[:\-]?\s*([0-4]))\b`)
)

// severityKeywords are checked from the highest level down; within a level
// the first matching keyword wins.
var severityKeywords = []struct {
	level    severity.Level
	keywords []string
}{
	{severity.Critical, []string{"critical", "severe", "emergency", "urgent", "catastrophic", "extreme", "highest"}},
	{severity.High, []string{"high", "important", "significant", "major", "serious", "elevated"}},
	{severity.Medium, []string{"medium", "moderate", "intermediate", "standard", "normal"}},
	{severity.Low, []string{"low", "minor", "informational", "info", "minimal", "trivial", "lowest"}},
}

type keywordRule struct {
	level   severity.Level
	pattern *regexp.Regexp
}

var keywordRules = func() []keywordRule {
	out := make([]keywordRule, 0, len(severityKeywords))
	for _, sk := range severityKeywords {
		quoted := make([]string, len(sk.keywords))
		for i, k := range sk.keywords {
			quoted[i] = regexp.QuoteMeta(k)
		}
		out = append(out, keywordRule{sk.level, regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)})
	}
	return out
}()

// SeverityMapper resolves free-text severity descriptions.
//
// Precedence: an explicit CVSS score, then a P0-P4 priority, then the keyword
// tables, then severity.Default.
type SeverityMapper struct{}

// NewSeverityMapper creates a mapper.
func NewSeverityMapper() *SeverityMapper {
	return &SeverityMapper{}
}

// Map returns the canonical level for text. It never fails.
func (m *SeverityMapper) Map(text string) severity.Level {
	if l, ok := m.Lookup(text); ok {
		return l
	}
	return severity.Default
}

// Lookup is Map without the default: ok is false when nothing in text
// indicates a severity.
func (m *SeverityMapper) Lookup(text string) (severity.Level, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	for _, idx := range cvssScore.FindAllStringSubmatchIndex(text, -1) {
		// "CVSS:3.1/AV:N/..." is a vector string, not a score.
		if idx[1] < len(text) && text[idx[1]] == '/' {
			if m := vectorScore.FindStringSubmatch(text[idx[1]:]); m != nil {
				if score, err := strconv.ParseFloat(m[1], 64); err == nil && score <= 10 {
					return severity.FromCVSS(score), true
				}
			}
			continue
		}
		if score, err := strconv.ParseFloat(text[idx[2]:idx[3]], 64); err == nil && score <= 10 {
			return severity.FromCVSS(score), true
		}
	}

	if match := priorityLevel.FindStringSubmatch(text); match != nil {
		digit := match[1]
		if digit == "" {
			digit = match[2]
		}
		if p, err := strconv.Atoi(digit); err == nil {
			if l, ok := severity.FromPriority(p); ok {
				return l, true
			}
		}
	}

	for _, kr := range keywordRules {
		if kr.pattern.MatchString(text) {
			return kr.level, true
		}
	}
	return "", false
}
