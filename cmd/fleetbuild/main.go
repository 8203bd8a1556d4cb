// Package main is the entry point for the fleetbuild CLI.
package main

import (
	"os"

	"github.com/AndreyAkinshin/fleetbuild/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
