// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"runtime/debug"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
	origRead    func() (*debug.BuildInfo, bool)
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = buildInfo
	origRead = readBuildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	buildInfo = origInfo
	readBuildInfo = origRead

	os.Exit(exitCode)
}

func resetInfo() {
	buildInfo = Info{Name: "spotmeter", Time: unknown, Commit: unknown, Version: unknown}
}

func TestInitialize(t *testing.T) {
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }

	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
		want        Info
	}{
		{
			"Missing BuildName",
			"",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			"BuildName is not set",
			Info{"spotmeter", "2025-04-13", "abcdef123", "v1.0.0"},
		},
		{
			"Missing BuildTime",
			"testapp",
			"",
			"abcdef123",
			"v1.0.0",
			"BuildTime is not set",
			Info{"testapp", unknown, "abcdef123", "v1.0.0"},
		},
		{
			"Missing BuildCommit and BuildVersion",
			"testapp",
			"2025-04-13",
			"",
			"",
			"BuildCommit is not set\nBuildVersion is not set",
			Info{"testapp", "2025-04-13", unknown, unknown},
		},
		{
			"Success Case",
			"testapp",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			"",
			Info{"testapp", "2025-04-13", "abcdef123", "v1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetInfo()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg == "" && err != nil {
				t.Errorf("Initialize() unexpected error: %v", err)
			}
			if tt.wantErrMsg != "" && (err == nil || err.Error() != tt.wantErrMsg) {
				t.Errorf("Initialize() error = %v, want %q", err, tt.wantErrMsg)
			}
			if got := Get(); got != tt.want {
				t.Errorf("Get() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInitializeFallsBackToBuildInfo(t *testing.T) {
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.3.1"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123abcd"},
				{Key: "vcs.time", Value: "2025-05-01T10:00:00Z"},
			},
		}, true
	}
	resetInfo()
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	if err := Initialize(); err == nil {
		t.Error("Initialize() expected error for missing ldflags")
	}

	want := Info{"spotmeter", "2025-05-01T10:00:00Z", "0123abcd", "v0.3.1"}
	if got := Get(); got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestInfoString(t *testing.T) {
	s := Info{"spotmeter", "2025-04-13", "abcdef123", "v1.0.0"}.String()
	for _, want := range []string{"spotmeter", "v1.0.0", "abcdef123", "2025-04-13"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
