// Package main provides the shelf CLI.
package main

import (
	"os"

	"github.com/mesh-intelligence/cardshelf/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
