// Package main is the entry point for the docai CLI.
package main

import (
	"os"

	"docai/cmd/docai/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
