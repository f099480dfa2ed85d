package main

import (
	"strings"
	"testing"
)

func TestCurrentBuildInfo(t *testing.T) {
	info := currentBuildInfo()
	if info.Version == "" || info.Commit == "" {
		t.Errorf("build info incomplete: %+v", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("go version = %q", info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("platform = %q, want os/arch", info.Platform)
	}
}
