// Package main is the entry point for the shipctl CLI.
// shipctl is the developer terminal tool for interacting with the Bay API.
package main

import (
	"os"

	"shipyard/cmd/shipctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
