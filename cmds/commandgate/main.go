package main

import (
	"os"

	"github.com/pathwaylabs/commandgate/cmds/commandgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
