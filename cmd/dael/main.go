package main

import (
	"os"

	"github.com/ploston/dael/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
