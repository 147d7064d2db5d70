// Package consts holds the names and build metadata shared by the gormscope
// command and its packages.
package consts

import (
	"sync/atomic"
	"time"
)

const (
	// ServiceName names the service in logs, traces and metrics
	ServiceName = "gormscope"
	// EnvPrefix prefixes the environment variables that override config
	EnvPrefix = "GORMSCOPE_"
	// RequestIDHeader carries the request ID in and out of the API
	RequestIDHeader = "X-Request-ID"
)

// Set through -ldflags by the release build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
	StartedAt time.Time
}

var startedAt atomic.Pointer[time.Time]

// MarkStarted records when the server started. Only the first call counts.
func MarkStarted(t time.Time) {
	startedAt.CompareAndSwap(nil, &t)
}

// StartedAt returns the recorded start time, zero before MarkStarted
func StartedAt() time.Time {
	if t := startedAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Uptime is the time since MarkStarted, zero before it
func Uptime() time.Duration {
	t := StartedAt()
	if t.IsZero() {
		return 0
	}
	return time.Since(t)
}

// Build returns the build metadata together with the start time
func Build() BuildInfo {
	return BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		StartedAt: StartedAt(),
	}
}
