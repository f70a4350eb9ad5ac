package main

import (
	"os"

	"pyanalyzer/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
