package sarif

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/shared/severity"
)

const semgrepSARIF = `{
  "$schema": "https://json.schemastore.org/sarif-2.1.0.json",
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {
      "name": "Semgrep",
      "version": "1.50.0",
      "rules": [
        {"id": "python.sqli", "name": "SQLi", "shortDescription": {"text": "SQL injection"},
         "helpUri": "https://semgrep.dev/r/python.sqli",
         "help": {"text": "Use parameterized queries"},
         "properties": {"tags": ["security", "cwe-89"]}},
        {"id": "python.debug", "defaultConfiguration": {"level": "note"}}
      ]
    }},
    "results": [
      {"ruleId": "python.sqli", "level": "error",
       "message": {"text": "User input flows into execute()"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "app/db.py"},
         "region": {"startLine": 12, "endLine": 14, "snippet": {"text": "cur.execute(q)"}}}}],
       "fingerprints": {"matchBasedId/v1": "abc123"}},
      {"ruleId": "python.debug", "message": {"text": "Debug enabled"}},
      {"ruleId": "unknown.rule", "ruleIndex": 0, "level": "warning", "message": {"text": "by index"}}
    ]
  }]
}`

func TestParseAndConvert(t *testing.T) {
	log, err := Parse([]byte(semgrepSARIF))
	require.NoError(t, err)
	assert.Equal(t, "Semgrep", log.ToolName())

	fs := Convert(log, ConvertOptions{Category: "security"})
	require.Len(t, fs, 3)

	first := fs[0]
	assert.Equal(t, "semgrep", first.ToolSource)
	assert.Equal(t, severity.High, first.Severity)
	assert.Equal(t, "SQL injection", first.Title)
	assert.Equal(t, "User input flows into execute()", first.Description)
	assert.Equal(t, "app/db.py", first.FilePath)
	assert.Equal(t, 12, first.LineNumber)
	assert.Equal(t, "python.sqli", first.ToolFindingID)
	assert.Equal(t, "Use parameterized queries", first.Remediation)
	assert.Equal(t, []string{"https://semgrep.dev/r/python.sqli", "REF: CWE-89"}, first.References)
	assert.Equal(t, "abc123", first.Metadata["sarif_fingerprint"])
	assert.Equal(t, "cur.execute(q)", first.Metadata["code_snippet"])
	assert.Equal(t, "security", first.Category)
	assert.NotEmpty(t, first.Fingerprint)
	require.NoError(t, first.Validate())

	assert.Equal(t, severity.Low, fs[1].Severity)
	assert.Equal(t, "python.debug", fs[1].Title)

	assert.Equal(t, "SQL injection", fs[2].Title)
	assert.Equal(t, severity.Medium, fs[2].Severity)
}

func TestConvert_CheckovStyle(t *testing.T) {
	doc := `{"$schema":"https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
	  "version":"2.1.0",
	  "runs":[{"tool":{"driver":{"name":"Checkov"}},
	    "results":[{"ruleId":"CKV_AWS_20","level":"warning",
	      "message":{"text":"S3 bucket has public ACL"},
	      "properties":{"severity":"critical","resource":"aws_s3_bucket.data","guideline":"https://docs/x"},
	      "fingerprints":{"long":"` + strings.Repeat("f", 80) + `"}}]}]}`

	log, err := Parse([]byte(doc))
	require.NoError(t, err)

	fs := Convert(log, ConvertOptions{ToolSource: "checkov", TitleFromRuleID: true, Category: "infrastructure"})
	require.Len(t, fs, 1)

	f := fs[0]
	assert.Equal(t, "checkov", f.ToolSource)
	assert.Equal(t, "CKV_AWS_20", f.Title)
	assert.Equal(t, severity.Critical, f.Severity)
	assert.Equal(t, "aws_s3_bucket.data", f.ResourceName)
	assert.Equal(t, "https://docs/x", f.Metadata["guideline"])
	assert.Len(t, f.Metadata["sarif_fingerprint"], 64)
	_, hasSeverity := f.Metadata["severity"]
	assert.False(t, hasSeverity)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"runs": [`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"foo": 1}`))
	assert.Error(t, err)
}

func TestLooksLikeSARIF(t *testing.T) {
	assert.True(t, LooksLikeSARIF([]byte(`{"$schema": "https://json.schemastore.org/sarif-2.1.0.json"`)))
	assert.True(t, LooksLikeSARIF([]byte(`{"version":"2.1.0","runs":[{"tool":{"driver":{}}}]}`)))
	assert.False(t, LooksLikeSARIF([]byte(`{"results": []}`)))
}

func TestMapLevel(t *testing.T) {
	assert.Equal(t, severity.High, MapLevel("ERROR"))
	assert.Equal(t, severity.Medium, MapLevel("warning"))
	assert.Equal(t, severity.Low, MapLevel("note"))
	assert.Equal(t, severity.Low, MapLevel("none"))
	assert.Equal(t, severity.Medium, MapLevel(""))
}
