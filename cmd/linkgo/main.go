// Package main is the entry point for the linkgo CLI.
package main

import (
	"github.com/hupe1980/linkgo/cmd/linkgo/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
