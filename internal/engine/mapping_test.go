package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndexMapping_RejectsUnknownAnalyzer(t *testing.T) {
	cfg := DefaultWriterConfig()
	cfg.Analyzer = "klingon"

	_, err := newIndexMapping(cfg)

	assert.Error(t, err)
}

func TestKeywordFields_Deduplicated(t *testing.T) {
	cfg := WriterConfig{RoutingField: "status", SoftDeletesField: "deleted", KeywordFields: []string{"status", "tenant", ""}}

	assert.Equal(t, []string{KeyField, "status", "deleted", "tenant"}, keywordFields(cfg))
}

func TestEncodeDoc_RoundTripsThroughSource(t *testing.T) {
	body, src, err := encodeDoc("a", map[string]any{"status": "gold", "n": 3.0})
	require.NoError(t, err)

	assert.Equal(t, "a", body[KeyField])
	assert.Equal(t, "gold", body["status"])

	sd, err := decodeSource(src)
	require.NoError(t, err)
	assert.Equal(t, "a", sd.ID)
	assert.Equal(t, 3.0, sd.Fields["n"])
}

func TestParseCommitName(t *testing.T) {
	tests := []struct {
		name string
		gen  int64
		ok   bool
	}{
		{"commit-1.json", 1, true},
		{"commit-42.json", 42, true},
		{"pending-commit-3.json", 0, false},
		{"commit-x.json", 0, false},
		{"commit-0.json", 0, false},
		{"index/commit-1.json", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, ok := parseCommitName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.gen, gen)
		})
	}
}

func TestBodyFor_KeywordValuesIndexedAsText(t *testing.T) {
	fields := map[string]any{"deleted": true, "status": 2.0, "tags": []any{"x", 3.0}, "n": 3.0}
	keywords := map[string]bool{"deleted": true, "status": true, "tags": true}

	body := bodyFor("a", fields, nil, keywords)

	assert.Equal(t, "true", body["deleted"])
	assert.Equal(t, "2", body["status"])
	assert.Equal(t, []any{"x", "3"}, body["tags"])
	assert.Equal(t, 3.0, body["n"])
	assert.Equal(t, true, fields["deleted"], "source fields are left alone")
}
