// Package version carries build metadata for the bookstore binary.
package version

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	mongoversion "go.mongodb.org/mongo-driver/version"
)

const (
	// Unknown is used when build metadata is not provided.
	Unknown = "unknown"
	// DevelopmentVersion is the default version in local builds.
	DevelopmentVersion = "dev"
)

var (
	// AppVersion is intended to be overridden at build time:
	// go build -ldflags="-X github.com/nimburion/bookstore/pkg/version.AppVersion=v1.2.3"
	AppVersion = DevelopmentVersion

	// GitCommit is intended to be overridden at build time.
	GitCommit = Unknown

	// BuildTime is intended to be overridden at build time (RFC3339 recommended).
	BuildTime = Unknown
)

// Info contains version metadata for the binary.
type Info struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	MongoDriver string `json:"mongo_driver"`
}

// Current returns the current build version metadata.
func Current(serviceName string) Info {
	return Info{
		Service:     normalizeOrDefault(serviceName, Unknown),
		Version:     normalizeOrDefault(AppVersion, DevelopmentVersion),
		Commit:      normalizeOrDefault(GitCommit, Unknown),
		BuildTime:   normalizeOrDefault(BuildTime, Unknown),
		GoVersion:   runtime.Version(),
		MongoDriver: mongoversion.Driver,
	}
}

// ParseBuildTime parses BuildTime as RFC3339 if present.
func (i Info) ParseBuildTime() (time.Time, bool) {
	if i.BuildTime == "" || i.BuildTime == Unknown {
		return time.Time{}, false
	}

	ts, err := time.Parse(time.RFC3339, i.BuildTime)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// String returns a log-friendly representation.
func (i Info) String() string {
	return fmt.Sprintf("%s@%s (commit=%s, build_time=%s)", i.Service, i.Version, i.Commit, i.BuildTime)
}

// Write prints the aligned listing shown by the version command.
func (i Info) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"Service:      %s\nVersion:      %s\nCommit:       %s\nBuild Time:   %s\nGo:           %s\nMongo Driver: %s\n",
		i.Service, i.Version, i.Commit, i.BuildTime, i.GoVersion, i.MongoDriver)
	return err
}

func normalizeOrDefault(v, fallback string) string {
	norm := strings.TrimSpace(v)
	if norm == "" {
		return fallback
	}
	return norm
}
