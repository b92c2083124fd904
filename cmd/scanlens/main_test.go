package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const banditReport = `{"errors":[],"generated_at":"2024-03-01T10:00:00Z","metrics":{},"results":[` +
	`{"filename":"app.py","issue_confidence":"HIGH","issue_severity":"HIGH","issue_text":"Use of exec detected.","line_number":3,"test_id":"B102","test_name":"exec_used"}]}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), append([]string{"--log-level", "error"}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_Text(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "bandit-report.json", banditReport)
	notes := writeFile(t, dir, "notes.txt", "HIGH: SQL Injection in login.php - user input reaches the query at line 7 (CWE-89)\n")

	out, err := run(t, "parse", "--concurrency", "2", report, notes)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "bandit-report.json: bandit"), out)
	assert.Contains(t, out, "HIGH     exec_used  (app.py:3)")
	assert.Contains(t, out, "notes.txt: text")
	assert.Contains(t, out, "SQL Injection in login.php  (login.php:7)")
}

func TestParse_JSON(t *testing.T) {
	report := writeFile(t, t.TempDir(), "bandit-report.json", banditReport)

	out, err := run(t, "parse", "--json", report)
	require.NoError(t, err)

	var results []struct {
		File     string `json:"file"`
		Tool     string `json:"tool"`
		Status   string `json:"status"`
		Findings []struct {
			Title    string `json:"title"`
			Severity string `json:"severity"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "bandit", results[0].Tool)
	assert.Equal(t, "success", results[0].Status)
	require.Len(t, results[0].Findings, 1)
	assert.Equal(t, "exec_used", results[0].Findings[0].Title)
	assert.Equal(t, "HIGH", results[0].Findings[0].Severity)
}

func TestParse_MissingFile(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "bandit-report.json", banditReport)

	out, err := run(t, "parse", report, filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files could not be parsed")
	assert.Contains(t, out, "exec_used")
	assert.Contains(t, out, "missing.json: error:")
}

func TestDetect(t *testing.T) {
	report := writeFile(t, t.TempDir(), "bandit-report.json", banditReport)

	out, err := run(t, "detect", "--json", report)
	require.NoError(t, err)

	var got struct {
		Format struct {
			FormatType string `json:"format_type"`
		} `json:"format"`
		Selected   string `json:"selected"`
		Candidates []struct {
			Tool string `json:"tool"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "json", got.Format.FormatType)
	assert.Equal(t, "bandit", got.Selected)
	require.NotEmpty(t, got.Candidates)
	assert.Equal(t, "bandit", got.Candidates[0].Tool)
}

func TestParsers(t *testing.T) {
	out, err := run(t, "parsers")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 10)
	assert.True(t, strings.HasPrefix(lines[0], "TOOL"))
	assert.True(t, strings.HasPrefix(lines[1], "bandit"))
	assert.Equal(t, 2, strings.Count(out, "\nprowler "))
	assert.True(t, strings.HasPrefix(lines[9], "text"))
}

func TestInvalidFlags(t *testing.T) {
	_, err := run(t, "parse", "--concurrency", "0", "x.json")
	require.Error(t, err)

	_, err = run(t, "--log-format", "xml", "parsers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}
