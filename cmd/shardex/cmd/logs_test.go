package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T) string {
	t.Helper()
	lines := []string{
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"index opened","root":"/tmp/x"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"lock busy","criteria":"1"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"commit failed","criteria":"0"}`,
	}
	path := filepath.Join(t.TempDir(), "shardex.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestLogsCmd_Tail(t *testing.T) {
	// Given: a log file with three entries
	path := writeLog(t)

	// When: showing the last two lines
	out, err := runCLI(t, "logs", "--file", path, "-n", "2")

	// Then: only those are rendered
	require.NoError(t, err)
	assert.NotContains(t, out, "index opened")
	assert.Contains(t, out, "WARN  [1] lock busy")
	assert.Contains(t, out, "ERROR [0] commit failed")
}

func TestLogsCmd_Filters(t *testing.T) {
	path := writeLog(t)

	tests := []struct {
		name    string
		args    []string
		want    string
		notWant string
	}{
		{"level", []string{"--level", "error"}, "commit failed", "lock busy"},
		{"criteria", []string{"--criteria", "1"}, "lock busy", "commit failed"},
		{"grep", []string{"--grep", "opened"}, "index opened", "lock busy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--file", path}, tt.args...)

			out, err := runCLI(t, args...)

			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
			assert.NotContains(t, out, tt.notWant)
		})
	}
}

func TestLogsCmd_Errors(t *testing.T) {
	_, err := runCLI(t, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")

	_, err = runCLI(t, "logs", "--file", writeLog(t), "--grep", "(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --grep pattern")
}
