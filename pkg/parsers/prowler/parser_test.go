package prowler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/finding"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

const v2JSON = `{
  "prowler_version": "2.9.0",
  "findings": [
    {"check_id": "check11", "check_title": "Avoid the use of the root account", "level": "Critical",
     "service": "iam", "region": "us-east-1", "account_id": "123456789012", "scored": false,
     "status": "FAIL", "result_extended": "Root user in the account was last accessed 2 days ago"},
    {"check_id": "check12", "check_title": "Ensure MFA is enabled", "level": "High", "status": "PASS"},
    {"check_id": "check13", "level": "Info", "status": "FAIL"}
  ]
}`

const v2CSV = "\xef\xbb\xbfCHECK_ID,CHECK_TITLE,LEVEL,SERVICE,REGION,ACCOUNT_ID,STATUS,RESULT_EXTENDED\n" +
	"check11,Avoid the use of the root account,High,iam,us-east-1,123456789012,FAIL,Root user used recently\n" +
	"check12,Ensure MFA is enabled,Medium,iam,,123456789012,PASS,ok\n" +
	"check13,Ensure credentials unused for 90 days,Informational,iam,,123456789012,FAIL,\"User bob, unused\"\n"

const v3JSON = `{
  "prowler_version": "3.2.1",
  "findings": [
    {
      "check_id": "iam_root_mfa_enabled",
      "check_title": "Ensure MFA is enabled for the root account",
      "severity": "critical",
      "status": "FAIL",
      "service_name": "iam",
      "resource_id": "arn:aws:iam::123456789012:root",
      "resource_type": "AwsIamUser",
      "region": "us-east-1",
      "description": "The root account has no MFA device",
      "risk": "Full account compromise",
      "remediation": {"recommendation": {"text": "Enable MFA for the root account", "url": "https://docs.aws.amazon.com/iam"}},
      "compliance": {"CIS-1.5": ["1.5"], "PCI-DSS": ["8.3.1", "8.3.2"]},
      "resource_details": {"arn": "arn:aws:iam::123456789012:root"}
    },
    {"check_id": "s3_bucket_public_access", "severity": "low", "status": "PASS"},
    {"check_id": "ec2_ebs_default_encryption", "severity": "informational", "status": "FAIL"}
  ]
}`

func collect(t *testing.T, p core.Parser, doc string, chunk int, progress core.ProgressFunc) ([]*finding.Finding, error) {
	t.Helper()
	return core.Collect(p.ParseStream(context.Background(), core.NewBytesSource([]byte(doc), chunk), progress))
}

func TestV2CanParse(t *testing.T) {
	p := NewV2Parser(&core.NopLogger{})

	tests := []struct {
		name     string
		preview  string
		filename string
		min, max float64
	}{
		{"json with name", v2JSON, "prowler-output.json", 1.0, 1.0},
		{"json without name", v2JSON, "output.json", 0.7, 0.7},
		{"csv", v2CSV, "prowler-output.csv", 0.9, 0.9},
		{"csv without headers", "a,b,c\n", "data.csv", 0.1, 0.1},
		{"v3 json", v3JSON, "report.json", 0.1, 0.1},
		{"unrelated", "<xml/>", "report.xml", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CanParse([]byte(tt.preview), tt.filename)
			assert.GreaterOrEqual(t, got, tt.min-1e-9)
			assert.LessOrEqual(t, got, tt.max+1e-9)
		})
	}
}

func TestV2ParseStream_JSON(t *testing.T) {
	var last core.ParseProgress
	findings, err := collect(t, NewV2Parser(&core.NopLogger{}), v2JSON, 32, func(p core.ParseProgress) { last = p })
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, severity.Critical, f.Severity)
	assert.Equal(t, "Avoid the use of the root account", f.Title)
	assert.Equal(t, "Root user in the account was last accessed 2 days ago", f.Description)
	assert.Equal(t, "prowler", f.ToolSource)
	assert.Equal(t, "compliance", f.Category)
	assert.Equal(t, "check11", f.ToolFindingID)
	assert.Equal(t, "us-east-1", f.ResourceName)
	assert.Equal(t, "iam", f.Metadata["service"])
	assert.Equal(t, "123456789012", f.Metadata["account_id"])
	assert.Equal(t, false, f.Metadata["scored"])
	assert.Equal(t, "2.9.0", f.Metadata["prowler_version"])
	assert.Equal(t, true, f.Metadata["v2_format"])
	assert.NoError(t, f.Validate())

	g := findings[1]
	assert.Equal(t, severity.Low, g.Severity)
	assert.Equal(t, "check13", g.Title)
	assert.Equal(t, "global", g.Metadata["region"])
	assert.Equal(t, true, g.Metadata["scored"])

	assert.True(t, last.Done)
	assert.Equal(t, 2, last.FindingsCount)
}

func TestV2ParseStream_CSV(t *testing.T) {
	var last core.ParseProgress
	findings, err := collect(t, NewV2Parser(&core.NopLogger{}), v2CSV, 16, func(p core.ParseProgress) { last = p })
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, severity.High, f.Severity)
	assert.Equal(t, "Avoid the use of the root account", f.Title)
	assert.Equal(t, "check11", f.ToolFindingID)
	assert.Equal(t, "us-east-1", f.Metadata["region"])
	assert.Equal(t, true, f.Metadata["csv_format"])

	g := findings[1]
	assert.Equal(t, severity.Low, g.Severity)
	assert.Equal(t, "User bob, unused", g.Description)
	assert.Equal(t, "global", g.ResourceName)

	assert.True(t, last.Done)
	assert.Equal(t, 2, last.FindingsCount)
	assert.Equal(t, "csv", last.CurrentSection)
}

func TestV2ParseStream_ProgressCadence(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"findings":[`)
	for i := 0; i < 250; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"check_id":"check%d","level":"Low","status":"FAIL"}`, i)
	}
	b.WriteString(`,{"check_id":"ok","status":"PASS"}]}`)

	var counts []int
	findings, err := collect(t, NewV2Parser(&core.NopLogger{}), b.String(), 4096, func(p core.ParseProgress) {
		counts = append(counts, p.FindingsCount)
	})
	require.NoError(t, err)
	assert.Len(t, findings, 250)
	assert.Equal(t, []int{100, 200, 250}, counts)
}

func TestV2ParseStream_CSVProgressCadence(t *testing.T) {
	var b strings.Builder
	b.WriteString("CHECK_ID,LEVEL,STATUS\n")
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&b, "check%d,Medium,FAIL\n", i)
	}

	var counts []int
	findings, err := collect(t, NewV2Parser(&core.NopLogger{}), b.String(), 256, func(p core.ParseProgress) {
		counts = append(counts, p.FindingsCount)
	})
	require.NoError(t, err)
	assert.Len(t, findings, 150)
	assert.Equal(t, []int{100, 150}, counts)
}

func TestV2ParseStream_Empty(t *testing.T) {
	var done bool
	findings, err := collect(t, NewV2Parser(&core.NopLogger{}), "  \n", 8, func(p core.ParseProgress) { done = p.Done })
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.True(t, done)
}

func TestV3CanParse(t *testing.T) {
	p := NewV3Parser(&core.NopLogger{})
	assert.InDelta(t, 1.0, p.CanParse([]byte(v3JSON), "prowler-output.json"), 1e-9)
	assert.InDelta(t, 0.9, p.CanParse([]byte(v3JSON), "output.json"), 1e-9)
	assert.InDelta(t, 0.3, p.CanParse([]byte("CHECK_ID,LEVEL"), "prowler.csv"), 1e-9)
	assert.Equal(t, 0.0, p.CanParse([]byte("plain text"), "notes.txt"))
}

func TestV3ParseStream(t *testing.T) {
	var last core.ParseProgress
	findings, err := collect(t, NewV3Parser(&core.NopLogger{}), v3JSON, 64, func(p core.ParseProgress) { last = p })
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, severity.Critical, f.Severity)
	assert.Equal(t, "Ensure MFA is enabled for the root account", f.Title)
	assert.Equal(t, "The root account has no MFA device", f.Description)
	assert.Equal(t, "compliance", f.Category)
	assert.Equal(t, "arn:aws:iam::123456789012:root", f.ResourceName)
	assert.Equal(t, "AwsIamUser", f.ResourceType)
	assert.Equal(t, "Enable MFA for the root account", f.Remediation)
	assert.Equal(t, "iam", f.Metadata["service_name"])
	assert.Equal(t, "AwsIamUser", f.Metadata["tool_resource_type"])
	assert.Equal(t, "Full account compromise", f.Metadata["risk"])
	assert.Equal(t, "aws", f.Metadata["provider"])
	assert.Equal(t, "3.2.1", f.Metadata["prowler_version"])
	assert.Equal(t, map[string][]string{
		"CIS-1.5": {"1.5"},
		"PCI-DSS": {"8.3.1", "8.3.2"},
	}, f.Metadata["compliance"])
	assert.Equal(t, []string{"cis-1.5", "pci-dss"}, f.Tags)
	assert.NoError(t, f.Validate())

	g := findings[1]
	assert.Equal(t, severity.Low, g.Severity)
	assert.Equal(t, "ec2_ebs_default_encryption", g.Title)
	assert.Equal(t, "global", g.Metadata["region"])
	assert.Equal(t, map[string][]string{}, g.Metadata["compliance"])

	assert.True(t, last.Done)
	assert.Equal(t, 2, last.FindingsCount)
}

func TestV3ParseStream_Truncated(t *testing.T) {
	doc := `{"findings":[{"check_id":"a","status":"FAIL"},{"check_id":"b","status":"FAIL","compliance":{"CIS":["1.1"`
	findings, err := collect(t, NewV3Parser(&core.NopLogger{}), doc, 16, nil)
	require.Error(t, err)
	assert.True(t, serrors.IsParseError(err))
	require.Len(t, findings, 1)
	assert.Equal(t, "a", findings[0].Title)
}

func TestValidateFormat(t *testing.T) {
	assert.Empty(t, NewV2Parser(nil).ValidateFormat([]byte(v2CSV)))
	assert.Empty(t, NewV2Parser(nil).ValidateFormat([]byte(v2JSON)))
	assert.NotEmpty(t, NewV2Parser(nil).ValidateFormat([]byte(`{"results":[]}`)))
	assert.Empty(t, NewV3Parser(nil).ValidateFormat([]byte(v3JSON)))
	assert.NotEmpty(t, NewV3Parser(nil).ValidateFormat([]byte(v2CSV)))
}
