package main

import (
	"os"

	"github.com/smallbiznis/creditledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
