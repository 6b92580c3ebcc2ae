package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attrMap(attrs []slog.Attr) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.Any()
	}
	return m
}

func TestFormatForCLI_ShardError(t *testing.T) {
	// Given: a commit failure on shard "gold" wrapped by the caller
	err := fmt.Errorf("close: %w", ShardError("gold", "commit", errors.New("disk full")))

	// When: formatting for the terminal
	result := FormatForCLI(err)

	// Then: the shard and the root cause are shown
	assert.Contains(t, result, "Error: ")
	assert.Contains(t, result, "Shard: gold")
	assert.Contains(t, result, "Cause: disk full")
	assert.Contains(t, result, "Code: "+ErrCodeShardOperation)
}

func TestFormatForCLI_WithSuggestion(t *testing.T) {
	err := ConfigError("no shards configured", nil).
		WithSuggestion("Run 'shardex init'")

	result := FormatForCLI(err)

	assert.Contains(t, result, "no shards configured")
	assert.Contains(t, result, "Hint: Run 'shardex init'")
	assert.NotContains(t, result, "Shard:")
	assert.NotContains(t, result, "Cause:")
}

func TestFormatForCLI_StandardError(t *testing.T) {
	// Given: a plain error
	err := errors.New("unknown flag: --nope")

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: it prints as an internal error with the original text
	assert.Contains(t, result, "unknown flag: --nope")
	assert.Contains(t, result, ErrCodeInternal)
	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 3)
}

func TestFormatForCLI_Nil(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_BasicError(t *testing.T) {
	// Given: an IndexError with details
	err := New(ErrCodeFileNotFound, "file not found", nil).
		WithDetail("path", "/foo/bar.txt").
		WithSuggestion("Check the file path")

	// When: formatting as JSON
	data, jsonErr := FormatJSON(err)

	// Then: valid JSON with the expected fields
	require.NoError(t, jsonErr)
	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, ErrCodeFileNotFound, result["code"])
	assert.Equal(t, "file not found", result["message"])
	assert.Equal(t, string(CategoryIO), result["category"])
	assert.Equal(t, "Check the file path", result["suggestion"])
	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/foo/bar.txt", details["path"])
}

func TestFormatJSON_StandardAndNil(t *testing.T) {
	data, err := FormatJSON(errors.New("generic error"))
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, ErrCodeInternal, result["code"])

	data, err = FormatJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestLogAttrs_IndexError(t *testing.T) {
	// Given: a held lock on shard "1" with an extra detail
	err := New(ErrCodeLockHeld, "write lock held", nil).
		WithDetail("criteria", "1").
		WithDetail("lock", "write.lock")

	// When: building log attributes
	attrs := LogAttrs(fmt.Errorf("open: %w", err))

	// Then: code, criteria, retryable and details are present
	m := attrMap(attrs)
	assert.Equal(t, "error", attrs[0].Key)
	assert.Equal(t, ErrCodeLockHeld, m["error_code"])
	assert.Equal(t, "1", m["criteria"])
	assert.Equal(t, true, m["retryable"])
	assert.Equal(t, "write.lock", m["lock"])
}

func TestLogAttrs_StandardError(t *testing.T) {
	attrs := LogAttrs(errors.New("plain"))

	require.Len(t, attrs, 1)
	assert.Equal(t, "plain", attrs[0].Value.String())
	assert.Nil(t, LogAttrs(nil))
}
