package main

import (
	"os"

	"github.com/okian/communityrank/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
