package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a11y-lens/backend/config"
	"github.com/a11y-lens/backend/normalizer"
	"github.com/a11y-lens/backend/proxy"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	normalizeFlags.fallback = false

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNormalizeFromStdin(t *testing.T) {
	out, _, err := runCLI(t, `{"aria":{"issues":1,"total":4},"altText":{"issues":0,"total":2},"structure":{"issues":1,"total":2}}`, "normalize")
	require.NoError(t, err)

	var results normalizer.AnalysisResults
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, 75, results.ARIA.Score)
	assert.Equal(t, 100, results.AltText.Score)
	assert.Equal(t, 50, results.Structure.Score)
	assert.Equal(t, 75, results.OverallScore)
}

func TestNormalizeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"url":"https://example.com","files":[]}`), 0644))

	out, _, err := runCLI(t, "", "normalize", path)
	require.NoError(t, err)

	var results normalizer.AnalysisResults
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, 100, results.OverallScore)
	assert.Equal(t, normalizer.WebsiteAnalysisLabel, results.Files[0])
}

func TestNormalizeMalformed(t *testing.T) {
	_, _, err := runCLI(t, "not json", "normalize")
	var malformed *normalizer.MalformedInputError
	assert.ErrorAs(t, err, &malformed)

	out, stderr, err := runCLI(t, "not json", "normalize", "--fallback")
	require.NoError(t, err)
	assert.Contains(t, stderr, "malformed")

	var results normalizer.AnalysisResults
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, normalizer.SampleResults().OverallScore, results.OverallScore)
}

func TestNewBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	b := newBackend(cfg, zap.NewNop())
	httpBackend, ok := b.(*proxy.HTTPBackend)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8000/analyze", httpBackend.Endpoint())

	cfg.Backend.Script = "/opt/analyzer/run.sh"
	b = newBackend(cfg, zap.NewNop())
	processBackend, ok := b.(*proxy.ProcessBackend)
	require.True(t, ok)
	assert.Equal(t, "/opt/analyzer/run.sh", processBackend.Script)
	assert.Equal(t, cfg.BackendTimeout(), processBackend.Timeout)
}
