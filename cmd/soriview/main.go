package main

import (
	"os"

	"github.com/soriview/soriview/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
