package parsers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/core"
	serrors "github.com/exploopio/scanlens/pkg/errors"
	"github.com/exploopio/scanlens/pkg/registry"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.WithLogger(&core.NopLogger{}))
	require.NoError(t, RegisterBuiltins(reg, &core.NopLogger{}))
	return reg
}

func TestRegisterBuiltins(t *testing.T) {
	reg := newRegistry(t)
	assert.Equal(t, 9, reg.Len())
	assert.Equal(t,
		[]string{"bandit", "checkov", "docx", "pdf", "prowler", "sarif", "spreadsheet", "text"},
		reg.SupportedTools())

	err := RegisterBuiltins(reg, &core.NopLogger{})
	require.Error(t, err)
	assert.True(t, serrors.IsRegistrationError(err))
	assert.Equal(t, 9, reg.Len())
}

func TestRegisterBuiltins_Selection(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		name     string
		preview  string
		filename string
		want     string
	}{
		{"bandit", `{"errors":[],"generated_at":"2024-01-01T00:00:00Z","metrics":{},"results":[{"test_id":"B101","issue_severity":"LOW","issue_confidence":"HIGH"}]}`, "bandit.json", "bandit"},
		{"checkov", `{"check_type":"terraform","results":{"failed_checks":[{"check_id":"CKV_AWS_18"}]}}`, "checkov.json", "checkov"},
		{"prowler v3", `{"prowler_version":"3.2.0","findings":[{"check_id":"x","severity":"high"}]}`, "prowler-output.json", "prowler"},
		{"pdf", "%PDF-1.7\n", "report.pdf", "pdf"},
		{"text", "HIGH: Open redirect - redirect.php accepts any URL\n", "notes.txt", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := reg.CompatibleParsers([]byte(tt.preview), tt.filename)
			require.NotEmpty(t, candidates)
			assert.Equal(t, tt.want, candidates[0].Metadata.ToolName)
		})
	}
}

func TestRegisterBuiltins_ProwlerVersions(t *testing.T) {
	reg := newRegistry(t)

	v2, ok := reg.ParserForTool("prowler", "2.4")
	require.True(t, ok)
	v3, ok := reg.ParserForTool("prowler", "3.1")
	require.True(t, ok)
	assert.NotEqual(t, registry.Identity(v2), registry.Identity(v3))
}

func TestBuiltins_CanParseRange(t *testing.T) {
	random := make([]byte, 4096)
	rand.New(rand.NewSource(7)).Read(random)

	inputs := []struct {
		name    string
		preview []byte
	}{
		{"empty", nil},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80, 0x00, 0x7f, 0xfe}},
		{"truncated json", []byte(`{"results":[{"test_id":"B101","issue_severity":"HI`)},
		{"zip header without parts", []byte("PK\x03\x04\x14\x00\x00\x00")},
		{"utf-16 bom", []byte{0xff, 0xfe, 'H', 0, 'I', 0, 'G', 0, 'H', 0, ':', 0, ' ', 0, 'x', 0}},
		{"random", random},
		{"pdf magic only", []byte("%PDF-")},
		{"sarif shell", []byte(`{"$schema":"sarif","version":"2.1.0","runs":[`)},
	}
	filenames := []string{"", "report", "bandit_report.json", "checkov.sarif", "prowler-output.csv",
		"scan.pdf", "report.docx", "book.xlsx", "notes.txt", "archive.zip"}

	for _, p := range Builtins(&core.NopLogger{}) {
		tool := p.Metadata().ToolName
		for _, in := range inputs {
			for _, name := range filenames {
				score := p.CanParse(in.preview, name)
				assert.GreaterOrEqual(t, score, 0.0, "%s: %s as %q", tool, in.name, name)
				assert.LessOrEqual(t, score, 1.0, "%s: %s as %q", tool, in.name, name)
			}
		}
	}
}
