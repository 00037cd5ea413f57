// Package main provides the entry point for the docquery CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/docquery/cmd/docquery/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
