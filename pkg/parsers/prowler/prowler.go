// Package prowler parses Prowler cloud posture reports.
//
// Two parsers share the tool name: V2Parser reads the legacy 2.x JSON and CSV
// outputs, V3Parser reads 3.x JSON with per-framework compliance mappings.
// Passed checks are dropped by both.
package prowler

import (
	"strings"

	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

// ToolName is the registered tool name.
const ToolName = "prowler"

const statusPass = "PASS"

func mapSeverity(s string) severity.Level {
	if lvl, ok := severity.Parse(s); ok {
		return lvl
	}
	return severity.Medium
}

func isPass(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), statusPass)
}

func setIf(f *finding.Finding, key, value string) {
	if value != "" {
		f.SetMeta(key, value)
	}
}
