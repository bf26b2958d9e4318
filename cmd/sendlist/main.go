/*
Package main provides the CLI entry point for sendlist.
*/
package main

import (
	"os"

	"github.com/oarkflow/sendlist/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
