package main

import (
	"os"

	"odf-cleanup/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
