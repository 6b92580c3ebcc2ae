package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_SemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	assert.Regexp(t, semver, Version)
}

func TestString(t *testing.T) {
	// Given: build variables as set by ldflags
	defer func(v, c, d string) { Version, Commit, Date = v, c, d }(Version, Commit, Date)
	Version, Commit, Date = "1.2.3", "abc1234", "2026-10-19T00:00:00Z"

	// When: rendering the version line
	s := String()

	// Then: every field is present and the line is closed
	assert.True(t, strings.HasPrefix(s, "shardex 1.2.3 (commit: abc1234, built: 2026-10-19T00:00:00Z, go: "+runtime.Version()))
	assert.True(t, strings.HasSuffix(s, ")"))
	assert.Equal(t, "1.2.3", Short())
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, deps()[bleveModule], info.Bleve)
	assert.Equal(t, deps()[segmentModule], info.Segment)
}

func TestGetInfo_JSON(t *testing.T) {
	// Given: build info with no module data
	info := GetInfo()
	info.Bleve, info.Segment = "", ""

	// When: encoding it
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: the module fields are omitted and the rest is snake_case
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "go_version")
	assert.NotContains(t, m, "bleve")
	assert.NotContains(t, m, "segment_format")
}
