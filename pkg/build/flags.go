// SPDX-License-Identifier: MIT
//
// Package build holds the version information embedded at link time, for
// example:
//
//	go build -ldflags "-X spotmeter/pkg/build.buildVersion=0.2.0 ..."
//
// Fields that were not set through -ldflags are filled from the module and
// VCS data the Go toolchain records in the binary.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Description is the one-line summary shown in the command help.
const Description = "Ambient loudness meter that keeps playback volume above the room noise"

const unknown = "unknown"

// Info describes the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String returns "name version (commit, time)".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = Info{
		Name:    "spotmeter",
		Time:    unknown,
		Commit:  unknown,
		Version: unknown,
	}
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Initialize copies the ldflags values into the build info. Missing values
// are taken from the embedded build information where possible. The returned
// error lists the ldflags that were not set; the info is usable either way.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is not set", flag))
			return
		}
		*dst = val
	}

	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")

	if len(errs) > 0 {
		fillFromBuildInfo(&buildInfo)
	}
	return errors.Join(errs...)
}

// fillFromBuildInfo replaces unknown fields with VCS and module data.
func fillFromBuildInfo(info *Info) {
	bi, ok := readBuildInfo()
	if !ok {
		return
	}
	if info.Version == unknown && bi.Main.Version != "" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == unknown && s.Value != "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Time == unknown && s.Value != "" {
				info.Time = s.Value
			}
		}
	}
}

// Get returns the current build information.
func Get() Info {
	return buildInfo
}
