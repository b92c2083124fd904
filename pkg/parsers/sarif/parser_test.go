package sarif

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/shared/severity"
)

const semgrepLog = `{
  "$schema": "https://json.schemastore.org/sarif-2.1.0.json",
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "Semgrep", "rules": [{
      "id": "python.lang.security.audit.eval-detected",
      "name": "eval-detected",
      "shortDescription": {"text": "Detected use of eval"},
      "helpUri": "https://semgrep.dev/r/python.lang.security.audit.eval-detected",
      "defaultConfiguration": {"level": "warning"}
    }]}},
    "results": [
      {
        "ruleId": "python.lang.security.audit.eval-detected",
        "message": {"text": "Detected the use of eval(). This can be dangerous."},
        "locations": [{"physicalLocation": {"artifactLocation": {"uri": "app/handler.py"}, "region": {"startLine": 42}}}]
      },
      {
        "ruleId": "python.lang.security.audit.eval-detected",
        "level": "error",
        "message": {"text": "Detected the use of eval() on request data."}
      }
    ]
  }]
}`

func TestCanParse(t *testing.T) {
	p := NewParser()
	assert.InDelta(t, 0.8, p.CanParse([]byte(semgrepLog), "semgrep.sarif"), 1e-9)
	assert.InDelta(t, 0.6, p.CanParse([]byte(semgrepLog), "semgrep.json"), 1e-9)
	assert.InDelta(t, 0.1, p.CanParse([]byte(`{"results":[]}`), "bandit.json"), 1e-9)
	assert.Equal(t, 0.0, p.CanParse([]byte("CHECK_ID,LEVEL"), "prowler.csv"))
}

func TestParseStream(t *testing.T) {
	var last core.ParseProgress
	findings, err := core.Collect(NewParser().ParseStream(context.Background(),
		core.NewBytesSource([]byte(semgrepLog), 100), func(p core.ParseProgress) { last = p }))
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, "semgrep", f.ToolSource)
	assert.Equal(t, severity.Medium, f.Severity, "rule default level applies")
	assert.Equal(t, "python.lang.security.audit.eval-detected", f.ToolFindingID)
	assert.Equal(t, "app/handler.py", f.FilePath)
	assert.Equal(t, 42, f.LineNumber)
	assert.Equal(t, "security", f.Category)
	assert.Contains(t, f.References, "https://semgrep.dev/r/python.lang.security.audit.eval-detected")
	assert.NoError(t, f.Validate())

	assert.Equal(t, severity.High, findings[1].Severity)

	assert.True(t, last.Done)
	assert.Equal(t, 2, last.FindingsCount)
	assert.Equal(t, "runs", last.CurrentSection)
}

func TestParseStream_Invalid(t *testing.T) {
	_, err := core.Collect(NewParser().ParseStream(context.Background(), core.NewBytesSource([]byte(`{"foo": 1}`), 16), nil))
	require.Error(t, err)
	assert.True(t, serrors.IsParseError(err))
}

func TestValidateFormat(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.ValidateFormat([]byte(semgrepLog)))
	assert.NotEmpty(t, p.ValidateFormat([]byte(`{"results":[]}`)))
}
