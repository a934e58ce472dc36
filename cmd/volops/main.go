package main

import (
	"os"

	"github.com/volunteermatching/volops/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
