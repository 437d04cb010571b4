// Package main is the entry point for the flowbroker CLI.
package main

import (
	"os"

	"github.com/pytake/flowbroker/cmd/flowbroker/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
