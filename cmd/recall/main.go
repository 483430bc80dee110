package main

import (
	"os"

	"github.com/ampstudio/recall/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
