package checkov

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report is the output of one Checkov framework run. Multi-framework scans
// produce a JSON array of reports.
type Report struct {
	CheckType string  `json:"check_type"`
	Results   Results `json:"results"`
	Summary   Summary `json:"summary"`
}

// Results groups checks by outcome.
type Results struct {
	FailedChecks  []Check `json:"failed_checks"`
	PassedChecks  []Check `json:"passed_checks"`
	SkippedChecks []Check `json:"skipped_checks"`
}

// Summary is the per-run tally.
type Summary struct {
	Passed         int    `json:"passed"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	ParsingErrors  int    `json:"parsing_errors"`
	ResourceCount  int    `json:"resource_count"`
	CheckovVersion string `json:"checkov_version"`
}

// Check is one policy evaluation.
type Check struct {
	CheckID       string          `json:"check_id"`
	BCCheckID     string          `json:"bc_check_id"`
	CheckName     string          `json:"check_name"`
	Description   string          `json:"description"`
	Severity      *string         `json:"severity"`
	Resource      string          `json:"resource"`
	ResourceType  string          `json:"resource_type"`
	FilePath      string          `json:"file_path"`
	FileLineRange []int           `json:"file_line_range"`
	Guideline     string          `json:"guideline"`
	CodeBlock     [][]any         `json:"code_block"`
	CheckResult   json.RawMessage `json:"check_result"`
}

// ParseReports decodes a Checkov JSON document, either a single report
// object or an array of them.
func ParseReports(data []byte) ([]Report, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if trimmed[0] == '[' {
		var reports []Report
		if err := json.Unmarshal(trimmed, &reports); err != nil {
			return nil, err
		}
		return reports, nil
	}
	var r Report
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, err
	}
	return []Report{r}, nil
}
