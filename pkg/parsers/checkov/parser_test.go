package checkov

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

const jsonReport = `{
  "check_type": "terraform",
  "results": {
    "passed_checks": [
      {"check_id": "CKV_AWS_20", "check_name": "S3 Bucket has an ACL defined which allows public READ access."}
    ],
    "failed_checks": [
      {
        "check_id": "CKV_AWS_18",
        "bc_check_id": "BC_AWS_S3_13",
        "check_name": "Ensure the S3 bucket has access logging enabled",
        "severity": "HIGH",
        "resource": "aws_s3_bucket.data",
        "file_path": "/main.tf",
        "file_line_range": [12, 20],
        "guideline": "https://docs.prismacloud.io/en/policy/s3-13",
        "code_block": [[12, "resource \"aws_s3_bucket\" \"data\" {\n"], [13, "  bucket = \"data\"\n"]]
      },
      {
        "check_id": "CKV_AWS_21",
        "check_name": "Ensure all data stored in the S3 bucket have versioning enabled",
        "severity": null,
        "resource": "aws_s3_bucket.data",
        "file_path": "/main.tf",
        "file_line_range": [12, 20]
      }
    ]
  },
  "summary": {"passed": 1, "failed": 2, "checkov_version": "2.3.12"}
}`

const sarifReport = `{
  "$schema": "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "Checkov", "rules": [{"id": "CKV_K8S_8", "name": "Liveness Probe Should be Configured"}]}},
    "results": [
      {
        "ruleId": "CKV_K8S_8",
        "level": "error",
        "message": {"text": "Liveness Probe Should be Configured"},
        "locations": [{"physicalLocation": {"artifactLocation": {"uri": "deploy.yaml"}, "region": {"startLine": 4}}}],
        "properties": {"severity": "low", "resource": "Deployment.default.web"}
      },
      {
        "ruleId": "CKV_K8S_9",
        "level": "warning",
        "message": {"text": "Readiness Probe Should be Configured"}
      }
    ]
  }]
}`

func parse(t *testing.T, doc string, progress core.ProgressFunc) ([]*finding.Finding, error) {
	t.Helper()
	return core.Collect(NewParser().ParseStream(context.Background(), core.NewBytesSource([]byte(doc), 128), progress))
}

func TestCanParse(t *testing.T) {
	p := NewParser()
	assert.Equal(t, 1.0, p.CanParse([]byte(jsonReport), "checkov_results.json"))
	assert.GreaterOrEqual(t, p.CanParse([]byte(jsonReport), "results.json"), 0.7)
	assert.GreaterOrEqual(t, p.CanParse([]byte(sarifReport), "results.sarif"), 0.6)
	assert.InDelta(t, 0.2, p.CanParse([]byte(`{"results":[]}`), "bandit.json"), 1e-9)
	assert.Equal(t, 0.0, p.CanParse([]byte("a,b,c"), "report.csv"))
}

func TestParseStream_JSON(t *testing.T) {
	var last core.ParseProgress
	findings, err := parse(t, jsonReport, func(p core.ParseProgress) { last = p })
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, severity.High, f.Severity)
	assert.Equal(t, "Ensure the S3 bucket has access logging enabled", f.Title)
	assert.Equal(t, f.Title, f.Description)
	assert.Equal(t, "checkov", f.ToolSource)
	assert.Equal(t, "CKV_AWS_18", f.ToolFindingID)
	assert.Equal(t, "infrastructure", f.Category)
	assert.Equal(t, "aws_s3_bucket.data", f.ResourceName)
	assert.Equal(t, "terraform", f.ResourceType)
	assert.Equal(t, "/main.tf", f.FilePath)
	assert.Equal(t, 12, f.LineNumber)
	assert.Equal(t, []string{"https://docs.prismacloud.io/en/policy/s3-13"}, f.References)
	assert.Equal(t, "BC_AWS_S3_13", f.Metadata["bc_check_id"])
	assert.Equal(t, "2.3.12", f.Metadata["checkov_version"])
	assert.Equal(t, "12: resource \"aws_s3_bucket\" \"data\" {\n13:   bucket = \"data\"", f.Metadata["code_snippet"])
	assert.Equal(t, "terraform", f.Metadata["tool_resource_type"])
	assert.Equal(t, "/main.tf", f.Metadata["tool_file_path"])
	assert.NoError(t, f.Validate())

	assert.Equal(t, severity.Medium, findings[1].Severity)

	assert.True(t, last.Done)
	assert.Equal(t, 2, last.FindingsCount)
	assert.Equal(t, int64(len(jsonReport)), last.BytesProcessed)
}

func TestParseStream_JSONList(t *testing.T) {
	doc := `[` + jsonReport + `,{"check_type":"dockerfile","results":{"failed_checks":[{"check_id":"CKV_DOCKER_2","check_name":"Ensure that HEALTHCHECK instructions have been added","severity":"LOW","resource":"Dockerfile."}]}}]`
	findings, err := parse(t, doc, nil)
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "dockerfile", findings[2].ResourceType)
	assert.Equal(t, severity.Low, findings[2].Severity)
}

func TestParseStream_EmptyScan(t *testing.T) {
	findings, err := parse(t, `{"passed":0,"failed":0,"skipped":0,"parsing_errors":0,"resource_count":0,"checkov_version":"2.3.1"}`, nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestParseStream_SARIF(t *testing.T) {
	findings, err := parse(t, sarifReport, nil)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, severity.Low, f.Severity, "properties.severity overrides level")
	assert.Equal(t, "CKV_K8S_8", f.Title)
	assert.Equal(t, "Liveness Probe Should be Configured", f.Description)
	assert.Equal(t, "checkov", f.ToolSource)
	assert.Equal(t, "infrastructure", f.Category)
	assert.Equal(t, "deploy.yaml", f.FilePath)
	assert.Equal(t, 4, f.LineNumber)
	assert.Equal(t, "Deployment.default.web", f.ResourceName)
	assert.Equal(t, "sarif", f.Metadata["format"])

	assert.Equal(t, severity.Medium, findings[1].Severity)
	assert.Equal(t, "CKV_K8S_9", findings[1].Title)
}

func TestParseStream_Malformed(t *testing.T) {
	findings, err := parse(t, `{"check_type":"terraform","results":{"failed_checks":[{"check_id":`, nil)
	require.Error(t, err)
	assert.True(t, serrors.IsParseError(err))
	assert.Empty(t, findings)
}

func TestParseStream_TooLarge(t *testing.T) {
	p := NewParser()
	p.Meta.MaxFileSize = 64
	doc := strings.Repeat(" ", 100) + jsonReport
	_, err := core.Collect(p.ParseStream(context.Background(), core.NewBytesSource([]byte(doc), 32), nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTooLarge)
}

func TestValidateFormat(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.ValidateFormat([]byte(jsonReport)))
	assert.Empty(t, p.ValidateFormat([]byte(sarifReport)))
	assert.NotEmpty(t, p.ValidateFormat([]byte(`{"results":[]}`)))
}
