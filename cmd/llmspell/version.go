package main

import (
	"fmt"
	"runtime/debug"
)

// VersionCmd prints the build version, grounded on the teacher's VersionCmd
// (reads the module version from runtime/debug.BuildInfo, falling back to
// "dev" for an unversioned local build).
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("llmspell %s\n", version)
	return nil
}
