package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReflectsPackageVars(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = oldVersion, oldCommit, oldDate }()

	Version, Commit, BuildDate = "1.2.3", "abc123", "2026-01-01"

	info := Get()
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-01", info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "wazero", info.Engine)
}

func TestStringReturnsVersionOnly(t *testing.T) {
	info := Info{Version: "1.2.3", Commit: "abc123"}
	assert.Equal(t, "1.2.3", info.String())
}

func TestFullIncludesEveryField(t *testing.T) {
	info := Info{
		Version:   "1.2.3",
		Commit:    "abc123",
		BuildDate: "2026-01-01",
		GoVersion: "go1.24",
		Platform:  "linux/amd64",
		Engine:    "wazero",
	}
	assert.Equal(t, "1.2.3 (abc123) built 2026-01-01 go1.24 linux/amd64 wazero", info.Full())
}
