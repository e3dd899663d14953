package main

import (
	"os"

	"github.com/pressline/pressline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
