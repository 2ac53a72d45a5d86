package main

import (
	"os"

	"github.com/soulnet-app/soulnet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
