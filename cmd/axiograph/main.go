package main

import (
	"os"

	"github.com/josephjohncox/axiograph-sub003/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
