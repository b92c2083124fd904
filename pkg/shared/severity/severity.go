// Package severity provides the canonical severity levels every normalized
// finding carries, and the mappings from scanner-specific spellings.
//
// Only four levels exist. Informational and unknown inputs collapse into the
// nearest canonical level so downstream sorting never sees a fifth value.
package severity

import "strings"

// Level represents a severity level for security findings.
type Level string

const (
	// Critical - Immediate action required. Actively exploited or trivially exploitable.
	Critical Level = "CRITICAL"

	// High - Serious vulnerability that should be addressed urgently.
	High Level = "HIGH"

	// Medium - Moderate risk, should be addressed in normal development cycle.
	Medium Level = "MEDIUM"

	// Low - Minor issue, address when convenient.
	Low Level = "LOW"
)

// Default is the level used when nothing in the input indicates severity.
const Default = Medium

// AllLevels returns all severity levels in order of priority (highest first).
func AllLevels() []Level {
	return []Level{Critical, High, Medium, Low}
}

// String returns the string representation of the severity level.
func (l Level) String() string {
	return string(l)
}

// IsValid reports whether l is one of the four canonical levels.
func (l Level) IsValid() bool {
	switch l {
	case Critical, High, Medium, Low:
		return true
	}
	return false
}

// Priority returns the numeric priority of the severity level.
// Higher numbers = higher priority. Non-canonical values return 0.
func (l Level) Priority() int {
	switch l {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// IsHigherThan returns true if this severity is higher than the other.
func (l Level) IsHigherThan(other Level) bool {
	return l.Priority() > other.Priority()
}

// IsAtLeast returns true if this severity is at least as high as the other.
func (l Level) IsAtLeast(other Level) bool {
	return l.Priority() >= other.Priority()
}

// Parse maps a scanner severity spelling to a canonical level.
// The boolean is false when the spelling is not recognized.
//
// Handles common formats from different scanners:
//   - Bandit: HIGH, MEDIUM, LOW, UNDEFINED
//   - Checkov / Prowler: critical, high, medium, low, informational
//   - SARIF: error, warning, note, none
func Parse(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "CRIT", "SEVERE", "BLOCKER", "URGENT":
		return Critical, true
	case "HIGH", "ERROR", "MAJOR", "IMPORTANT":
		return High, true
	case "MEDIUM", "MODERATE", "WARNING", "WARN", "MED":
		return Medium, true
	case "LOW", "MINOR", "INFO", "INFORMATIONAL", "NOTE", "NONE", "TRIVIAL":
		return Low, true
	default:
		return "", false
	}
}

// FromString normalizes a scanner severity string, falling back to Default
// for unrecognized or empty input.
func FromString(s string) Level {
	if l, ok := Parse(s); ok {
		return l
	}
	return Default
}

// FromCVSS converts a CVSS score (0.0-10.0) to a severity level.
// Based on CVSS v3.0 severity ratings:
//   - 9.0-10.0: Critical
//   - 7.0-8.9: High
//   - 4.0-6.9: Medium
//   - below 4.0: Low
func FromCVSS(score float64) Level {
	switch {
	case score >= 9.0:
		return Critical
	case score >= 7.0:
		return High
	case score >= 4.0:
		return Medium
	default:
		return Low
	}
}

// FromPriority converts a P0..P4 priority marker to a severity level.
// P0 is Critical, P1 High, P2 Medium, P3 and P4 Low.
func FromPriority(p int) (Level, bool) {
	switch p {
	case 0:
		return Critical, true
	case 1:
		return High, true
	case 2:
		return Medium, true
	case 3, 4:
		return Low, true
	default:
		return "", false
	}
}

// ToCVSSRange returns the CVSS score range for a severity level.
// Returns (min, max) where min is inclusive and max is exclusive.
func (l Level) ToCVSSRange() (float64, float64) {
	switch l {
	case Critical:
		return 9.0, 10.1
	case High:
		return 7.0, 9.0
	case Medium:
		return 4.0, 7.0
	case Low:
		return 0.0, 4.0
	default:
		return 0.0, 0.0
	}
}

// Compare returns:
//
//	-1 if a < b (a is lower severity)
//	 0 if a == b
//	+1 if a > b (a is higher severity)
func Compare(a, b Level) int {
	pa, pb := a.Priority(), b.Priority()
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

// Max returns the higher severity of two levels.
func Max(a, b Level) Level {
	if a.IsHigherThan(b) {
		return a
	}
	return b
}

// CountBySeverity counts findings by severity level.
type CountBySeverity struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Increment increases the count for the given severity.
func (c *CountBySeverity) Increment(level Level) {
	c.Total++
	switch level {
	case Critical:
		c.Critical++
	case High:
		c.High++
	case Medium:
		c.Medium++
	default:
		c.Low++
	}
}

// HighestSeverity returns the highest severity level that has a non-zero count.
// The second result is false when nothing has been counted.
func (c *CountBySeverity) HighestSeverity() (Level, bool) {
	switch {
	case c.Critical > 0:
		return Critical, true
	case c.High > 0:
		return High, true
	case c.Medium > 0:
		return Medium, true
	case c.Low > 0:
		return Low, true
	}
	return "", false
}
