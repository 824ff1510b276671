// Package main provides the entry point for the docufind CLI.
package main

import (
	"os"

	"github.com/docufind/docufind/cmd/docufind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
