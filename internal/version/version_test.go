package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := resolve(bi)
	if info.Version != "dev" {
		t.Fatalf("devel builds should report dev, got %q", info.Version)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" || info.GoVersion != "go1.26.0" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if got, want := info.String(), "dev (0123456789ab-dirty)"; got != want {
		t.Fatalf("String: got %q want %q", got, want)
	}
}

func TestResolvePrefersModuleVersion(t *testing.T) {
	info := resolve(&debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}})
	if info.String() != "v0.3.1" {
		t.Fatalf("got %q", info.String())
	}
	if resolve(nil).Version != "dev" {
		t.Fatalf("nil build info should fall back to dev")
	}
}
