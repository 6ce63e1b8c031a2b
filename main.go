package main

import (
	"os"

	"github.com/orb-labs/orchestrator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
