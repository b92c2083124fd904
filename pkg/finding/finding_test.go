package finding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/shared/severity"
)

func TestNew(t *testing.T) {
	f := New("bandit", severity.High, "SQL injection", "String-built query")

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "bandit", f.ToolSource)
	assert.NotNil(t, f.Metadata)
}

func TestSetMeta_ReservedKeys(t *testing.T) {
	f := New("checkov", severity.Low, "t", "d")
	f.SetMeta("severity", "HIGH")
	f.SetMeta("Title", "raw")
	f.SetMeta("check_id", "CKV_AWS_20")
	f.SetMeta("ignored", nil)

	assert.Equal(t, "HIGH", f.Metadata["tool_severity"])
	assert.Equal(t, "raw", f.Metadata["tool_Title"])
	assert.Equal(t, "CKV_AWS_20", f.Metadata["check_id"])
	assert.NotContains(t, f.Metadata, "severity")
	assert.NotContains(t, f.Metadata, "ignored")
	require.NoError(t, f.Validate())
}

func TestNormalize(t *testing.T) {
	f := &Finding{
		Severity:    "warning",
		Title:       "  ",
		Description: "",
		ToolSource:  "text",
		LineNumber:  -3,
		Metadata:    map[string]any{"title": "x", "file_path": "y", "cwe": "CWE-89"},
		Tags:        []string{"Web App", "web-app", "", "SQL"},
		References:  []string{"https://cwe.mitre.org/data/definitions/89.html", "OWASP A03", " "},
	}
	f.Normalize()

	assert.Equal(t, severity.Medium, f.Severity)
	assert.Equal(t, UntitledTitle, f.Title)
	assert.Equal(t, UntitledTitle, f.Description)
	assert.Equal(t, 0, f.LineNumber)
	assert.NotEmpty(t, f.ID)
	assert.Len(t, f.Fingerprint, 64)
	assert.Equal(t, map[string]any{"tool_title": "x", "tool_file_path": "y", "cwe": "CWE-89"}, f.Metadata)
	assert.Equal(t, []string{"sql", "web-app"}, f.Tags)
	assert.Equal(t, []string{"https://cwe.mitre.org/data/definitions/89.html", "REF: OWASP A03"}, f.References)
	require.NoError(t, f.Validate())
}

func TestNormalize_TruncatesTitle(t *testing.T) {
	f := &Finding{Severity: severity.Low, Title: strings.Repeat("é", 400), Description: "d", ToolSource: "pdf"}
	f.Normalize()

	assert.LessOrEqual(t, len(f.Title), MaxTitleLength)
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 400), f.Title))
}

func TestNormalize_FingerprintStable(t *testing.T) {
	mk := func() *Finding {
		return (&Finding{
			Severity: severity.High, Title: "Use of assert", Description: "d",
			ToolSource: "bandit", ToolFindingID: "B101", FilePath: "app.py", LineNumber: 7,
		}).Normalize()
	}
	a, b := mk(), mk()

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		f       Finding
		wantErr string
	}{
		{"bad severity", Finding{Severity: "info", Title: "t", Description: "d", ToolSource: "x"}, "severity"},
		{"empty title", Finding{Severity: severity.Low, Description: "d", ToolSource: "x"}, "title"},
		{"empty description", Finding{Severity: severity.Low, Title: "t", ToolSource: "x"}, "description"},
		{"no tool", Finding{Severity: severity.Low, Title: "t", Description: "d"}, "tool_source"},
		{"shadowing", Finding{Severity: severity.Low, Title: "t", Description: "d", ToolSource: "x", Metadata: map[string]any{"category": 1}}, "shadows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSortBySeverity(t *testing.T) {
	fs := []*Finding{
		{Title: "a", Severity: severity.Low},
		{Title: "b", Severity: severity.Critical},
		{Title: "c", Severity: severity.Low},
		{Title: "d", Severity: severity.High},
	}
	SortBySeverity(fs)

	var titles []string
	for _, f := range fs {
		titles = append(titles, f.Title)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, titles)

	sum := Summary(fs)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Low)
}
