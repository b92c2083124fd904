// Package fingerprint generates stable deduplication keys for normalized
// findings. The same issue reported twice by the same tool, or re-extracted
// from a re-uploaded document, yields the same fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Type represents the type of finding for fingerprint generation.
type Type string

const (
	// TypeSAST is for code findings with a rule and a source location (Bandit).
	TypeSAST Type = "sast"

	// TypeMisconfiguration is for infrastructure/configuration findings (Checkov).
	TypeMisconfiguration Type = "misconfig"

	// TypeCompliance is for cloud posture checks bound to an account/region (Prowler).
	TypeCompliance Type = "compliance"

	// TypeDocument is for findings extracted from prose documents (PDF, DOCX, text).
	TypeDocument Type = "document"

	// TypeGeneric is for findings that don't fit other categories.
	TypeGeneric Type = "generic"
)

// Input contains the data needed to generate a fingerprint.
// Not all fields are required - only the relevant ones for the finding type.
type Input struct {
	Type Type

	Tool     string // Tool that produced the finding
	RuleID   string // Rule/check identifier
	FilePath string // File path where finding was detected
	Line     int

	ResourceType string // e.g., "aws_s3_bucket"
	ResourceName string // Resource identifier or ARN

	Account string // Cloud account (compliance)
	Region  string // Cloud region (compliance)

	Title   string
	Message string
}

// Generate creates a fingerprint for the given input.
// The fingerprint is a SHA256 hash (64 hex characters).
//
// The algorithm varies by finding type:
//   - SAST: tool + file + rule + line
//   - Misconfig: tool + resource + rule + file
//   - Compliance: tool + account + region + rule + resource
//   - Document: tool + normalized title + normalized message prefix
//   - Generic: everything available
func Generate(input Input) string {
	var data string

	switch input.Type {
	case TypeSAST:
		data = fmt.Sprintf("sast:%s:%s:%s:%d",
			normalize(input.Tool),
			normalize(input.FilePath),
			normalize(input.RuleID),
			input.Line,
		)

	case TypeMisconfiguration:
		data = fmt.Sprintf("misconfig:%s:%s:%s:%s:%s",
			normalize(input.Tool),
			normalize(input.ResourceType),
			normalize(input.ResourceName),
			normalize(input.RuleID),
			normalize(input.FilePath),
		)

	case TypeCompliance:
		data = fmt.Sprintf("compliance:%s:%s:%s:%s:%s",
			normalize(input.Tool),
			normalize(input.Account),
			normalize(input.Region),
			normalize(input.RuleID),
			normalize(input.ResourceName),
		)

	case TypeDocument:
		// Extracted prose drifts in whitespace and punctuation between exports
		// of the same document, so only the word sequence is kept.
		data = fmt.Sprintf("document:%s:%s:%s",
			normalize(input.Tool),
			words(input.Title),
			truncate(words(input.Message), 200),
		)

	default:
		data = fmt.Sprintf("generic:%s:%s:%s:%d:%s:%s:%s",
			normalize(input.Tool),
			normalize(input.RuleID),
			normalize(input.FilePath),
			input.Line,
			normalize(input.ResourceName),
			normalize(input.Title),
			normalize(input.Message),
		)
	}

	return Hash(data)
}

// Hash computes SHA256 hash of the input string.
// Returns 64 hex characters.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// normalize cleans up a string for consistent fingerprinting.
// - Trims whitespace
// - Converts to lowercase for case-insensitive matching
// - Normalizes path separators
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.TrimPrefix(s, "./")
	return s
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func words(s string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(s), " "), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DetectType attempts to detect the finding type from available data.
func DetectType(input Input) Type {
	if input.Account != "" || input.Region != "" {
		return TypeCompliance
	}
	if input.ResourceType != "" || input.ResourceName != "" {
		return TypeMisconfiguration
	}
	if input.FilePath != "" && input.RuleID != "" && input.Line > 0 {
		return TypeSAST
	}
	if input.RuleID == "" && input.Title != "" {
		return TypeDocument
	}
	return TypeGeneric
}

// GenerateAuto automatically detects the type and generates a fingerprint.
func GenerateAuto(input Input) string {
	if input.Type == "" {
		input.Type = DetectType(input)
	}
	return Generate(input)
}
