// Package main provides the entry point for the brain CLI.
package main

import (
	"os"

	"github.com/brainsh/brain/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
