package main

import (
	"os"

	"aiddflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
